package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"policyrag/internal/config"
	"policyrag/internal/pkg/jwtutil"
	"policyrag/internal/transport/http/response"
)

// Auth checks the bearer credential before the pipeline runs. The check
// mode follows the configuration: JWT validation, bcrypt-hashed API key,
// plain API key, or (with nothing configured) any non-empty token.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		if token == "" {
			response.Error(c, 401, response.CodeUnauthorized, "empty bearer token")
			c.Abort()
			return
		}

		switch {
		case cfg.JWTSecret != "":
			if _, err := jwtutil.ParseToken(cfg.JWTSecret, token); err != nil {
				response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
				c.Abort()
				return
			}
		case cfg.APIKeyHash != "":
			if err := bcrypt.CompareHashAndPassword([]byte(cfg.APIKeyHash), []byte(token)); err != nil {
				response.Error(c, 401, response.CodeUnauthorized, "invalid api key")
				c.Abort()
				return
			}
		case cfg.APIKey != "":
			if subtle.ConstantTimeCompare([]byte(cfg.APIKey), []byte(token)) != 1 {
				response.Error(c, 401, response.CodeUnauthorized, "invalid api key")
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
