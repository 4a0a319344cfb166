package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/pkg/auth"
	"github.com/redis/go-redis/v9"
)

// RevokedKeyPrefix prefixes the Redis keys of revoked admin token ids
const RevokedKeyPrefix = "quakealert:revoked:"

// ErrTokenRevoked is returned by CheckRevoked for a token on the revocation list
var ErrTokenRevoked = errors.New("token has been revoked")

// CheckRevoked looks jti up in the Redis revocation list written by `quakectl revoke`.
// A nil rdb disables the list. Lookup failures are returned so callers can fail closed.
func CheckRevoked(ctx context.Context, rdb *redis.Client, jti string) error {
	if rdb == nil {
		return nil
	}
	exists, err := rdb.Exists(ctx, RevokedKeyPrefix+jti).Result()
	if err != nil {
		return fmt.Errorf("check token revocation: %w", err)
	}
	if exists > 0 {
		return ErrTokenRevoked
	}
	return nil
}

// AdminAuth validates admin JWT tokens from the Authorization header.
// When rdb is set, tokens whose id was revoked in Redis are rejected.
func AdminAuth(jwtManager *auth.JWTManager, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortUnauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		if err := CheckRevoked(c.Request.Context(), rdb, claims.ID); err != nil {
			if errors.Is(err, ErrTokenRevoked) {
				abortUnauthorized(c, "Token has been revoked")
				return
			}
			// fail closed
			c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
			return
		}

		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: msg})
}
