package handlers

import (
	"net/http"

	"pulse/models"
	"pulse/services"

	"github.com/gin-gonic/gin"
)

// TogglePostInteraction переключает реакцию зрителя на пост.
// Ответ отражает оптимистичное состояние; сверка с хранилищем идет в фоне.
func TogglePostInteraction(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}

	var req struct {
		PostID int64  `json:"post_id" binding:"required"`
		Kind   string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	kind := models.InteractionKind(req.Kind)
	switch kind {
	case models.InteractionLike, models.InteractionBookmark, models.InteractionRepost:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown interaction kind"})
		return
	}

	session.Toggle(req.PostID, kind)
	c.JSON(http.StatusAccepted, session.Snapshot())
}

var followService = services.NewFollowService()

// FollowUser подписывает текущего пользователя на другого
func FollowUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		TargetID int64 `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := followService.Follow(c.Request.Context(), userID.(int64), req.TargetID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Followed"})
}

// UnfollowUser снимает подписку
func UnfollowUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		TargetID int64 `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := followService.Unfollow(c.Request.Context(), userID.(int64), req.TargetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unfollow"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed"})
}

// GetFollowees возвращает список подписок пользователя
func GetFollowees(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	followees, err := followService.GetFollowees(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get followees"})
		return
	}
	c.JSON(http.StatusOK, followees)
}

// GetFollowers возвращает список подписчиков пользователя
func GetFollowers(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	followers, err := followService.GetFollowers(c.Request.Context(), userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get followers"})
		return
	}
	c.JSON(http.StatusOK, followers)
}
