package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"pulse/api/handlers"
	"pulse/api/middleware"
	"pulse/api/routes"
	"pulse/config"
	"pulse/db"
	"pulse/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	log.Println("Starting server...")

	err = db.ConnectDB()
	if err != nil {
		panic("Failed to connect to the database: " + err.Error())
	}

	// Redis и RabbitMQ - деградируемые зависимости: без них лента живет
	// на прямых запросах к БД и внутрипроцессных событиях
	var cache *services.FeedCache
	if err := services.InitRedis(); err != nil {
		log.Printf("Warning: Redis unavailable, ranking cache disabled: %v", err)
	} else {
		cache = services.NewFeedCache(services.RedisClient)
		services.InitQueueService(cache)
		services.QueueServiceInstance.StartWorkers(context.Background())
	}

	if err := services.InitRabbitMQ(config.AppConfig.RabbitMQ.URL); err != nil {
		log.Printf("Warning: RabbitMQ unavailable, cross-instance events disabled: %v", err)
	} else {
		if err := services.StartInsertEventConsumer(context.Background(), "pulse_feed_events"); err != nil {
			log.Printf("Warning: failed to start insert event consumer: %v", err)
		}
	}

	store := services.NewGormPostStore(cache)
	gamification := services.NewGamificationService(cache, config.AppConfig.Feed.DailyXPCap)
	handlers.SetupFeedEngine(store, services.SessionConfig{
		PageSize:             config.AppConfig.Feed.PageSize,
		QueryTimeout:         config.AppConfig.Feed.QueryTimeout,
		PollInterval:         config.AppConfig.Feed.PollInterval,
		ResyncAfterRollbacks: config.AppConfig.Feed.ResyncAfterRollbacks,
		OnPostConfirmed:      gamification.PostConfirmed,
	})
	handlers.SetupGamification(gamification)

	router := gin.Default()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware("pulse"))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.PublicApi(router)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Backend.Host, config.AppConfig.Backend.Port)
	if config.AppConfig.Backend.Port == 0 {
		addr = ":8080"
	}
	if err := router.Run(addr); err != nil {
		panic(err)
	}
}
