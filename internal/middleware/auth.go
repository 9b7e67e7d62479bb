package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/guardian/pkg/auth"
	"github.com/redis/go-redis/v9"
)

// BlacklistPrefix is the Redis key prefix of revoked tokens, written by the account service
const BlacklistPrefix = "blacklist:"

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(jwtManager *auth.JWTManager, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format. Use: Bearer <token>"})
			return
		}
		tokenString := parts[1]

		revoked, err := IsRevoked(c, rdb, tokenString)
		if err != nil {
			// Fail closed
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Auth server error"})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// IsRevoked checks the token blacklist. A nil client means no blacklist.
func IsRevoked(c *gin.Context, rdb *redis.Client, token string) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	n, err := rdb.Exists(c.Request.Context(), BlacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
