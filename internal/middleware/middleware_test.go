package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
	"github.com/noah-isme/vial-compliance-api/pkg/logger"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = stubValidator{
	"admin-token": {UserID: "u-admin", Role: models.RoleAdmin},
	"ana-token":   {UserID: "u-ana", Role: models.RoleNormal, DNI: "12345678"},
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/users/:id", handlers...)
	return router
}

func serve(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := newRouter(JWT(tokens), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	recorder := serve(router, "/users/u-ana", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, recorder))

	recorder = serve(router, "/users/u-ana", "Token ana-token")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = serve(router, "/users/u-ana", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestJWTAttachesClaims(t *testing.T) {
	var actor service.Actor
	var logged string
	router := newRouter(JWT(tokens), func(c *gin.Context) {
		actor, _ = CurrentActor(c)
		logged = c.GetString(logger.UserIDKey)
		c.Status(http.StatusNoContent)
	})

	recorder := serve(router, "/users/u-ana", "bearer ana-token")
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, service.Actor{UserID: "u-ana", Role: models.RoleNormal, DNI: "12345678"}, actor)
	assert.Equal(t, "u-ana", logged)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	var authenticated bool
	router := newRouter(OptionalJWT(tokens), func(c *gin.Context) {
		_, authenticated = CurrentUser(c)
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(router, "/users/x", "Bearer forged").Code)
	assert.False(t, authenticated)
	assert.Equal(t, http.StatusNoContent, serve(router, "/users/x", "Bearer admin-token").Code)
	assert.True(t, authenticated)
}

func TestRBAC(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	router := newRouter(JWT(tokens), RBAC(string(models.RoleAdmin), Self), ok)

	assert.Equal(t, http.StatusNoContent, serve(router, "/users/anyone", "Bearer admin-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/users/u-ana", "Bearer ana-token").Code)

	recorder := serve(router, "/users/u-admin", "Bearer ana-token")
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, recorder))
}

func TestRequireRolesWithoutAuthentication(t *testing.T) {
	router := newRouter(RequireRoles(models.RoleInspector, models.RoleJudge), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/users/x", "").Code)
}

func TestAuditContextCarriesClientDetails(t *testing.T) {
	var info service.RequestInfo
	router := newRouter(AuditContext(), func(c *gin.Context) {
		info = service.RequestInfoFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/x", nil)
	req.Header.Set("User-Agent", "vialctl/1.0")
	req.RemoteAddr = "10.1.2.3:5555"
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "vialctl/1.0", info.UserAgent)
	assert.Equal(t, "10.1.2.3", info.IP)
}

func TestResponseMeta(t *testing.T) {
	var meta map[string]interface{}
	router := newRouter(WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "as_of", "2024-01-10")
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})

	serve(router, "/users/x", "")
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "2024-01-10", meta["as_of"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	metrics := service.NewMetricsService()
	router := newRouter(Metrics(metrics), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(router, "/users/x", "")
	serve(router, "/users/y", "")
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
