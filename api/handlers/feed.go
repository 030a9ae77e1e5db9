package handlers

import (
	"net/http"
	"time"

	"pulse/api/middleware"
	"pulse/config"
	"pulse/services"

	"github.com/gin-gonic/gin"
)

var (
	feedStore      services.PostStore
	feedSessionCfg services.SessionConfig
)

// SetupFeedEngine связывает handlers с хранилищем и настройками движка.
// Вызывается один раз при старте (и из тестового бутстрапа).
func SetupFeedEngine(store services.PostStore, cfg services.SessionConfig) {
	feedStore = store
	feedSessionCfg = cfg
}

func engineStore() services.PostStore {
	if feedStore == nil {
		feedStore = services.NewGormPostStore(nil)
	}
	return feedStore
}

func engineConfig() services.SessionConfig {
	if feedSessionCfg.PageSize > 0 {
		return feedSessionCfg
	}
	if config.AppConfig != nil {
		return services.SessionConfig{
			PageSize:             config.AppConfig.Feed.PageSize,
			QueryTimeout:         config.AppConfig.Feed.QueryTimeout,
			PollInterval:         config.AppConfig.Feed.PollInterval,
			ResyncAfterRollbacks: config.AppConfig.Feed.ResyncAfterRollbacks,
		}
	}
	return services.SessionConfig{}
}

// sessionForRequest достает сессию по id из пути и проверяет владельца
func sessionForRequest(c *gin.Context) (*services.FeedSession, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	session, ok := services.GlobalSessionManager.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	if session.UserID != userID.(int64) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session belongs to another user"})
		return nil, false
	}
	return session, true
}

// OpenFeedSession открывает сессию ленты для зрителя
func OpenFeedSession(c *gin.Context) {
	start := time.Now()
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	session := services.GlobalSessionManager.Open(engineStore(), userID.(int64), engineConfig())
	middleware.RecordFeedOperation("open_session", "ok", "pulse", time.Since(start))

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"snapshot":   session.Snapshot(),
	})
}

// CloseFeedSession закрывает сессию и освобождает подписки
func CloseFeedSession(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}
	services.GlobalSessionManager.Close(session.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

// GetFeedSnapshot возвращает текущее окно ленты
func GetFeedSnapshot(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// SetFeedTab переключает активный таб ленты
func SetFeedTab(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}

	var req struct {
		Tab string `json:"tab" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	tab, valid := services.ParseFeedTab(req.Tab)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tab"})
		return
	}

	session.SetTab(tab)
	c.JSON(http.StatusOK, session.Snapshot())
}

// LoadMoreFeed подгружает следующую страницу
func LoadMoreFeed(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}
	session.LoadMore()
	c.JSON(http.StatusOK, session.Snapshot())
}

// LoadNewFeed перезагружает голову ленты и сбрасывает счетчик новых
func LoadNewFeed(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}
	session.LoadNew()
	c.JSON(http.StatusOK, session.Snapshot())
}

// ResyncFeed принудительно пересинхронизирует сессию с хранилищем
func ResyncFeed(c *gin.Context) {
	session, ok := sessionForRequest(c)
	if !ok {
		return
	}
	session.Resync()
	c.JSON(http.StatusOK, session.Snapshot())
}
