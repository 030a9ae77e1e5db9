package routes

import (
	"pulse/api/handlers"
	"pulse/api/middleware"

	"github.com/gin-gonic/gin"
)

func PublicApi(router *gin.Engine) *gin.RouterGroup {
	publicEndpoints := router.Group("/api/v1/")
	publicEndpoints.Use(middleware.AuthMiddleware())
	{
		// Сессии ленты
		publicEndpoints.POST("feed/session", handlers.OpenFeedSession)
		publicEndpoints.GET("feed/session/:session_id", handlers.GetFeedSnapshot)
		publicEndpoints.DELETE("feed/session/:session_id", handlers.CloseFeedSession)
		publicEndpoints.POST("feed/session/:session_id/tab", handlers.SetFeedTab)
		publicEndpoints.POST("feed/session/:session_id/more", handlers.LoadMoreFeed)
		publicEndpoints.POST("feed/session/:session_id/new", handlers.LoadNewFeed)
		publicEndpoints.POST("feed/session/:session_id/resync", handlers.ResyncFeed)

		// Посты и реакции внутри сессии
		publicEndpoints.POST("feed/session/:session_id/posts", handlers.CreatePost)
		publicEndpoints.DELETE("feed/session/:session_id/posts/:post_id", handlers.DeletePost)
		publicEndpoints.POST("feed/session/:session_id/toggle", handlers.TogglePostInteraction)
		publicEndpoints.POST("feed/session/:session_id/view", handlers.RecordPostView)

		// Подписки
		publicEndpoints.POST("follows/add", handlers.FollowUser)
		publicEndpoints.POST("follows/delete", handlers.UnfollowUser)
		publicEndpoints.GET("follows/list", handlers.GetFollowees)
		publicEndpoints.GET("follows/followers", handlers.GetFollowers)

		// Геймификация
		publicEndpoints.POST("gamification/checkin", handlers.CheckIn)
		publicEndpoints.POST("gamification/task-complete", handlers.CompleteTask)
		publicEndpoints.GET("gamification/progress", handlers.GetProgress)
		publicEndpoints.GET("gamification/momentum", handlers.GetMomentum)
		publicEndpoints.POST("gamification/reset", handlers.ResetProgress)

		// Realtime
		publicEndpoints.GET("ws/feed", handlers.WSFeedHandler)

		// Админские эндпоинты
		publicEndpoints.GET("admin/queue/stats", handlers.GetQueueStats)
	}
	return publicEndpoints
}
