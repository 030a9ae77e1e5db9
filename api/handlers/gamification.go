package handlers

import (
	"net/http"

	"pulse/config"
	"pulse/services"

	"github.com/gin-gonic/gin"
)

var gamificationService *services.GamificationService

// SetupGamification связывает handlers с сервисом прогресса
func SetupGamification(gs *services.GamificationService) {
	gamificationService = gs
}

func gamification() *services.GamificationService {
	if gamificationService == nil {
		var dailyCap int64 = 200
		if config.AppConfig != nil {
			dailyCap = config.AppConfig.Feed.DailyXPCap
		}
		gamificationService = services.NewGamificationService(nil, dailyCap)
	}
	return gamificationService
}

// CheckIn - ежедневная отметка; повторный вызов в тот же день возвращает
// текущее состояние без изменений
func CheckIn(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	state, granted, err := gamification().CheckIn(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":   state,
		"granted": granted,
	})
}

// GetProgress возвращает XP, уровень и прогресс до следующего уровня
func GetProgress(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	progress, err := gamification().Progress(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get progress"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GetMomentum возвращает momentum-оценку пользователя
func GetMomentum(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	score, err := gamification().Momentum(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute momentum"})
		return
	}
	c.JSON(http.StatusOK, score)
}

// CompleteTask засчитывает выполненную задачу дня и начисляет XP
// с учетом дневного лимита
func CompleteTask(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	granted, err := gamification().CompleteTask(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted_xp": granted})
}

// ResetProgress обнуляет прогресс пользователя (отказ от цели)
func ResetProgress(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := gamification().ResetProgress(c.Request.Context(), userID.(int64)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Progress reset"})
}
