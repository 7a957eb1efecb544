package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vial-compliance-api/internal/middleware"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (service.Actor, bool) {
	return middleware.CurrentActor(c)
}

// pageParams reads page and limit (or the older page_size) query params.
func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	raw := c.Query("limit")
	if raw == "" {
		raw = c.DefaultQuery("page_size", "20")
	}
	size, _ = strconv.Atoi(raw)
	return page, size
}
