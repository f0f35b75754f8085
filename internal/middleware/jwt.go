package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oculoscan/oculoscan-api/internal/service"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
	"github.com/oculoscan/oculoscan-api/pkg/response"
)

// ContextActorKey is the gin context key storing the resolved Actor.
const ContextActorKey = "currentActor"

// JWT protects routes by requiring a valid access token. The actor's role is
// re-resolved from the user store on every request; the role claim inside the
// token is never trusted for authorization.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		actor, err := authService.ResolveActor(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, actor)
		c.Next()
	}
}
