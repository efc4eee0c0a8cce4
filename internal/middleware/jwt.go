package middleware

import (
	"net/http"
	"slices"
	"strings"

	"medportal/internal/service"
	v1 "medportal/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

// TokenParser validates access tokens.
type TokenParser interface {
	ParseAccessToken(token string) (*service.UserClaims, error)
}

func abortWith(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, v1.NewErrorBody(msg, nil))
}

// JWTMiddleware puts the caller of a valid Bearer access token into the
// request context and rejects everything else with 401.
func JWTMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = strings.TrimSpace(parts[1])
			}
		}

		if tokenString == "" {
			abortWith(c, http.StatusUnauthorized, "Authorization header missing")
			return
		}

		claims, err := parser.ParseAccessToken(tokenString)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "Invalid access token")
			return
		}

		ctx := service.WithCaller(c.Request.Context(), &service.Caller{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole must run after JWTMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := service.GetCaller(c.Request.Context())
		if caller == nil {
			abortWith(c, http.StatusUnauthorized, "missing authentication")
			return
		}
		if !slices.Contains(roles, caller.Role) {
			abortWith(c, http.StatusForbidden, "access denied for role "+caller.Role)
			return
		}
		c.Next()
	}
}
