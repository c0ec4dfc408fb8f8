package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dentalogic/clinic-api/internal/middleware"
	"github.com/dentalogic/clinic-api/internal/models"
)

// claimsFromContext returns the JWT claims injected by the auth middleware,
// or nil when the route was reached without authentication.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
