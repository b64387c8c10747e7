package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/response"
)

// RequireRoles lets the request through only for the listed staff roles.
// SUPERADMIN is always allowed.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleSuperAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
