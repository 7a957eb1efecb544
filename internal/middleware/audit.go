package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vial-compliance-api/internal/service"
)

// AuditContext copies the caller address and user agent onto the request
// context so service-level audit rows can record them.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestInfo(c.Request.Context(), service.RequestInfo{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
