package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/response"
)

// SelfRole is a pseudo-role accepted by RBAC. It grants access when the
// :id route param matches the authenticated user instead of a real role.
const SelfRole = "SELF"

type roleGuard struct {
	roles     map[models.UserRole]struct{}
	allowSelf bool
}

func newRoleGuard(allowed []string) roleGuard {
	g := roleGuard{roles: make(map[models.UserRole]struct{}, len(allowed))}
	for _, a := range allowed {
		if a == SelfRole {
			g.allowSelf = true
			continue
		}
		g.roles[models.UserRole(a)] = struct{}{}
	}
	return g
}

func (g roleGuard) permits(claims *models.JWTClaims, targetID string) bool {
	if _, ok := g.roles[claims.Role]; ok {
		return true
	}
	return g.allowSelf && targetID != "" && targetID == claims.UserID
}

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	guard := newRoleGuard(allowed)
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if !guard.permits(claims, c.Param("id")) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
