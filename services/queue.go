package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pulse/models"

	"github.com/go-redis/redis/v8"
)

const (
	RANK_UPDATE_QUEUE  = "rank_update_queue"
	QUEUE_WORKER_COUNT = 5
)

// RankUpdateTask - задача обновления предрассчитанного рейтинга
type RankUpdateTask struct {
	Post   models.Post `json:"post"`
	Action string      `json:"action"` // "create", "delete"
}

type QueueService struct {
	cache *FeedCache
}

func NewQueueService(cache *FeedCache) *QueueService {
	return &QueueService{cache: cache}
}

// QueueServiceInstance глобальный экземпляр сервиса очередей
var QueueServiceInstance *QueueService

// InitQueueService инициализирует сервис очередей
func InitQueueService(cache *FeedCache) {
	QueueServiceInstance = NewQueueService(cache)
}

// StartWorkers запускает воркеры для обработки очереди
func (qs *QueueService) StartWorkers(ctx context.Context) {
	for i := 0; i < QUEUE_WORKER_COUNT; i++ {
		go qs.worker(ctx, i)
	}
}

// worker обрабатывает задачи из очереди
func (qs *QueueService) worker(ctx context.Context, workerID int) {
	log.Printf("Rank update worker %d started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Rank update worker %d stopping", workerID)
			return
		default:
			// Блокирующий вызов с таймаутом
			result, err := RedisClient.BLPop(ctx, 5*time.Second, RANK_UPDATE_QUEUE).Result()
			if err != nil {
				if err == redis.Nil {
					// Таймаут - продолжаем
					continue
				}
				log.Printf("Worker %d error getting task: %v", workerID, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) < 2 {
				continue
			}

			var task RankUpdateTask
			if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
				log.Printf("Worker %d error unmarshaling task: %v", workerID, err)
				continue
			}

			qs.processTask(ctx, &task, workerID)
		}
	}
}

func (qs *QueueService) processTask(ctx context.Context, task *RankUpdateTask, workerID int) {
	switch task.Action {
	case "create":
		qs.cache.AddPost(ctx, &task.Post)
	case "delete":
		qs.cache.RemovePost(ctx, task.Post.ID)
	default:
		log.Printf("Worker %d unknown action: %s", workerID, task.Action)
	}
}

// EnqueueRankUpdate добавляет задачу обновления рейтинга в очередь.
// Если Redis-очередь недоступна, обновляем кеш синхронно.
func (qs *QueueService) EnqueueRankUpdate(ctx context.Context, post models.Post, action string) error {
	if RedisClient == nil {
		qs.processTask(ctx, &RankUpdateTask{Post: post, Action: action}, -1)
		return nil
	}

	task := RankUpdateTask{Post: post, Action: action}
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := RedisClient.RPush(ctx, RANK_UPDATE_QUEUE, taskData).Err(); err != nil {
		// Fallback - обновляем синхронно
		log.Printf("DEBUG: rank queue unavailable, applying update synchronously: %v", err)
		qs.processTask(ctx, &task, -1)
	}
	return nil
}

// GetQueueStats возвращает длину очереди
func (qs *QueueService) GetQueueStats(ctx context.Context) (int64, error) {
	if RedisClient == nil {
		return 0, fmt.Errorf("redis not available")
	}
	return RedisClient.LLen(ctx, RANK_UPDATE_QUEUE).Result()
}
