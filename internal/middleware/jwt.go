package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// ContextUserKey is the gin context key storing the validated JWT claims.
const ContextUserKey = "currentUser"

// JWT requires a valid bearer token and stores its claims in the context.
// The claims' user id is the owner scope for everything downstream.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abortUnauthorized(c *gin.Context, msg string) {
	response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, msg))
	c.Abort()
}
