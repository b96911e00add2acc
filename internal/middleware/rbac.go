package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
	"github.com/noah-isme/workshop-scheduler/pkg/response"
)

// RequireRoles lets a request through only when the caller holds one of roles.
// Admins always pass.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
