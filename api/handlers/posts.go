package handlers

import (
	"net/http"
	"strconv"

	"pulse/models"
	"pulse/services"

	"github.com/gin-gonic/gin"
)

// CreatePost создает пост через сессию ленты: плейсхолдер появляется
// в окне сразу, ответ не ждет подтверждения хранилища
func CreatePost(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}

	var req struct {
		Content    string             `json:"content" binding:"required"`
		Visibility string             `json:"visibility"`
		Media      []models.PostMedia `json:"media"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	visibility := models.Visibility(req.Visibility)
	switch visibility {
	case models.VisibilityPublic, models.VisibilityFollowers, models.VisibilityPrivate:
	case "":
		visibility = models.VisibilityPublic
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown visibility"})
		return
	}

	session.CreatePost(req.Content, visibility, req.Media)
	c.JSON(http.StatusAccepted, session.Snapshot())
}

// DeletePost удаляет пост оптимистично: из окна он исчезает сразу
func DeletePost(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}

	postID, err := strconv.ParseInt(c.Param("post_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	session.DeletePost(postID)
	c.JSON(http.StatusAccepted, session.Snapshot())
}

// RecordPostView фиксирует просмотр поста (дедупликация на сессию)
func RecordPostView(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}

	var req struct {
		PostID int64 `json:"post_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session.RecordView(req.PostID)
	c.JSON(http.StatusOK, gin.H{"message": "View recorded"})
}

// GetQueueStats возвращает статистику очереди пересчета рейтинга
// (админский эндпоинт)
func GetQueueStats(c *gin.Context) {
	if services.QueueServiceInstance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue service not available"})
		return
	}

	queueLength, err := services.QueueServiceInstance.GetQueueStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get queue stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue_length": queueLength,
		"workers":      services.QUEUE_WORKER_COUNT,
	})
}
