package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"pulse/db"
	"pulse/models"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware - аутентификация запросов.
// Токены выпускает внешний провайдер, здесь они только резолвятся:
// 1. X-User-ID заголовок (для простых тестов)
// 2. Authorization: Bearer <token> - поиск в user_tokens
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Сначала проверяем X-User-ID заголовок
		userIDHeader := c.GetHeader("X-User-ID")
		if userIDHeader != "" {
			userID, err := strconv.ParseInt(userIDHeader, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID format"})
				c.Abort()
				return
			}
			c.Set("user_id", userID)
			c.Next()
			return
		}

		// Затем проверяем Authorization Bearer token
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")

			var row models.UserTokens
			err := db.GetReadOnlyDB(c.Request.Context()).Where("token = ?", token).First(&row).Error
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				c.Abort()
				return
			}
			c.Set("user_id", row.UserID)
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required: provide X-User-ID header or Authorization Bearer token"})
		c.Abort()
	}
}

// OptionalAuthMiddleware - middleware для опциональной аутентификации
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDHeader := c.GetHeader("X-User-ID")
		if userIDHeader != "" {
			if userID, err := strconv.ParseInt(userIDHeader, 10, 64); err == nil {
				c.Set("user_id", userID)
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			var row models.UserTokens
			if err := db.GetReadOnlyDB(c.Request.Context()).Where("token = ?", token).First(&row).Error; err == nil {
				c.Set("user_id", row.UserID)
			}
		}

		c.Next()
	}
}
