package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"techdocs-rag-platform/internal/auth"
	"techdocs-rag-platform/utils"
)

type AuthMiddleware struct {
	rdb *redis.Client
}

func NewAuthMiddleware(rdb *redis.Client) *AuthMiddleware {
	return &AuthMiddleware{rdb: rdb}
}

// RequireAuth validates the bearer token and puts the claims on the
// context. Every document, chat, and graph route runs behind this so
// owner scoping is always available downstream.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"unauthorized", "Authentication token is required", nil)
			c.Abort()
			return
		}

		claims, err := auth.ValidateAccessToken(tokenString, a.rdb)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"invalid_token", "Invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// GetUserID returns the authenticated user's id, or empty when the
// request did not pass RequireAuth.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get("user_id"); exists {
		if str, ok := id.(string); ok {
			return str
		}
	}
	return ""
}
