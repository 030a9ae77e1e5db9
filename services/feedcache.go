package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pulse/db"
	"pulse/models"

	"github.com/go-redis/redis/v8"
)

const (
	RANK_CACHE_TTL  = 24 * time.Hour // TTL предрассчитанного рейтинга
	MAX_RANK_SIZE   = 1000           // максимум постов в рейтинге
	RANK_KEY        = "ranked_posts" // ключ sorted set с relevance-рейтингом
	MOMENTUM_PREFIX = "momentum:"    // кеш momentum-оценок
)

// FeedCache держит предрассчитанный for-you рейтинг в Redis sorted set.
// Score - relevance: свежесть + вклад вовлеченности. Это "внешняя
// scoring-функция" с точки зрения движка ленты.
type FeedCache struct {
	client *redis.Client
}

func NewFeedCache(client *redis.Client) *FeedCache {
	return &FeedCache{client: client}
}

// relevanceScore - простая комбинация свежести и вовлеченности
func relevanceScore(post *models.Post) float64 {
	engagement := float64(post.LikeCount + post.RepostCount*2)
	return float64(post.CreatedAt.Unix()) + engagement*60
}

// RankedPostIDs возвращает страницу рейтинга (лучшие первыми)
func (fc *FeedCache) RankedPostIDs(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	if fc.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	start := int64(offset)
	stop := start + int64(limit) - 1
	members, err := fc.client.ZRevRange(ctx, RANK_KEY, start, stop).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddPost добавляет/обновляет пост в рейтинге. Рейтинг общий для всех
// зрителей, поэтому непубличные посты в него не попадают.
func (fc *FeedCache) AddPost(ctx context.Context, post *models.Post) {
	if fc.client == nil {
		return
	}
	if post.Visibility != models.VisibilityPublic {
		return
	}
	pipe := fc.client.Pipeline()
	pipe.ZAdd(ctx, RANK_KEY, &redis.Z{
		Score:  relevanceScore(post),
		Member: strconv.FormatInt(post.ID, 10),
	})
	// Ограничиваем размер рейтинга
	pipe.ZRemRangeByRank(ctx, RANK_KEY, 0, -MAX_RANK_SIZE-1)
	pipe.Expire(ctx, RANK_KEY, RANK_CACHE_TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		fmt.Println("failed to update rank cache:", err)
	}
}

// RemovePost убирает пост из рейтинга
func (fc *FeedCache) RemovePost(ctx context.Context, postID int64) {
	if fc.client == nil {
		return
	}
	fc.client.ZRem(ctx, RANK_KEY, strconv.FormatInt(postID, 10))
}

// Rebuild перестраивает рейтинг из БД - эскейп-хетч при дрифте кеша
func (fc *FeedCache) Rebuild(ctx context.Context) error {
	if fc.client == nil {
		return fmt.Errorf("redis not available")
	}

	var posts []models.Post
	err := db.GetReadOnlyDB(ctx).
		Where("visibility = ?", models.VisibilityPublic).
		Order("created_at DESC").Order("id ASC").
		Limit(MAX_RANK_SIZE).
		Find(&posts).Error
	if err != nil {
		return fmt.Errorf("failed to load posts for rank rebuild: %w", err)
	}

	pipe := fc.client.Pipeline()
	pipe.Del(ctx, RANK_KEY)
	for i := range posts {
		pipe.ZAdd(ctx, RANK_KEY, &redis.Z{
			Score:  relevanceScore(&posts[i]),
			Member: strconv.FormatInt(posts[i].ID, 10),
		})
	}
	pipe.Expire(ctx, RANK_KEY, RANK_CACHE_TTL)
	_, err = pipe.Exec(ctx)
	return err
}

// CacheMomentum кеширует momentum-оценку на короткий срок
func (fc *FeedCache) CacheMomentum(ctx context.Context, userID int64, data []byte) {
	if fc.client == nil {
		return
	}
	key := fmt.Sprintf("%s%d", MOMENTUM_PREFIX, userID)
	fc.client.Set(ctx, key, data, 5*time.Minute)
}

func (fc *FeedCache) GetMomentum(ctx context.Context, userID int64) ([]byte, error) {
	if fc.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	key := fmt.Sprintf("%s%d", MOMENTUM_PREFIX, userID)
	return fc.client.Get(ctx, key).Bytes()
}
