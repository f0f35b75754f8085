package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
	"github.com/oculoscan/oculoscan-api/pkg/response"
)

// RequireRoles allows only the listed roles through. It reads the resolved
// actor, so role changes in the user store take effect immediately.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actorValue, exists := c.Get(ContextActorKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		actor := actorValue.(*models.Actor)

		if _, ok := allowed[actor.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
