package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"pulse/db"
	"pulse/models"

	"gorm.io/gorm"
)

// GormPostStore - боевая реализация PostStore поверх Postgres (gorm)
// с предрассчитанным for-you рейтингом в Redis.
type GormPostStore struct {
	cache *FeedCache // nil - рейтинг недоступен, фетчер уйдет в фоллбек
}

func NewGormPostStore(cache *FeedCache) *GormPostStore {
	return &GormPostStore{cache: cache}
}

func (s *GormPostStore) QueryPosts(ctx context.Context, filter PostFilter, order PostOrder, offset, limit int) ([]models.Post, error) {
	query := db.GetReadOnlyDB(ctx).Model(&models.Post{}).Preload("Media")

	// Непубличные посты не утекают в чужие ленты
	if filter.ViewerID > 0 {
		query = query.Where("visibility = ? OR author_id = ?", models.VisibilityPublic, filter.ViewerID)
	} else {
		query = query.Where("visibility = ?", models.VisibilityPublic)
	}
	if len(filter.AuthorIDs) > 0 {
		query = query.Where("author_id IN ?", filter.AuthorIDs)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at > ?", filter.Since)
	}

	switch order {
	case OrderEngagement:
		query = query.Order("(like_count + repost_count) DESC").Order("created_at DESC").Order("id ASC")
	default:
		// стабильный порядок для offset-пагинации при конкурентных вставках
		query = query.Order("created_at DESC").Order("id ASC")
	}

	var posts []models.Post
	err := query.Offset(offset).Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	return posts, nil
}

func (s *GormPostStore) RankedPostIDs(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("ranking cache not available")
	}
	return s.cache.RankedPostIDs(ctx, userID, offset, limit)
}

// PostsByIDs гидрирует посты, сохраняя порядок входного списка id.
// Рейтинг может отставать от БД, поэтому видимость перепроверяется здесь.
func (s *GormPostStore) PostsByIDs(ctx context.Context, viewerID int64, ids []int64) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	var posts []models.Post
	err := db.GetReadOnlyDB(ctx).Preload("Media").
		Where("id IN ?", ids).
		Where("visibility = ? OR author_id = ?", models.VisibilityPublic, viewerID).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate posts: %w", err)
	}
	byID := make(map[int64]models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (s *GormPostStore) FolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := db.GetReadOnlyDB(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get followees: %w", err)
	}
	return ids, nil
}

func (s *GormPostStore) ViewerInteractions(ctx context.Context, userID int64, postIDs []int64) (map[int64]map[models.InteractionKind]bool, error) {
	result := make(map[int64]map[models.InteractionKind]bool)
	if len(postIDs) == 0 {
		return result, nil
	}
	var rows []models.Interaction
	err := db.GetReadOnlyDB(ctx).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer interactions: %w", err)
	}
	for _, row := range rows {
		if result[row.PostID] == nil {
			result[row.PostID] = make(map[models.InteractionKind]bool)
		}
		result[row.PostID][row.Kind] = true
	}
	return result, nil
}

func (s *GormPostStore) InsertPost(ctx context.Context, post *models.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.UpdatedAt = time.Now()

	if err := db.GetWriteDB(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	log.Printf("DEBUG: Post created in DB with ID=%d", post.ID)

	// Раздаем событие вставки realtime-подписчикам; фоновая очередь
	// обновит предрассчитанный рейтинг
	_ = PublishInsertEvent(ctx, InsertEvent{
		PostID:     post.ID,
		AuthorID:   post.AuthorID,
		Visibility: post.Visibility,
		CreatedAt:  post.CreatedAt,
	})
	if QueueServiceInstance != nil {
		go QueueServiceInstance.EnqueueRankUpdate(context.Background(), *post, "create")
	}
	return nil
}

func (s *GormPostStore) DeletePost(ctx context.Context, authorID, postID int64) error {
	var post models.Post
	err := db.GetWriteDB(ctx).Where("id = ? AND author_id = ?", postID, authorID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// строки уже нет - запрошенное состояние достигнуто
		return ErrAlreadyApplied
	}
	if err != nil {
		return fmt.Errorf("failed to load post for delete: %w", err)
	}
	if err := db.GetWriteDB(ctx).Delete(&post).Error; err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if QueueServiceInstance != nil {
		go QueueServiceInstance.EnqueueRankUpdate(context.Background(), post, "delete")
	}
	return nil
}

// counterColumn - имя зеркалируемого счетчика для вида реакции
func counterColumn(kind models.InteractionKind) string {
	switch kind {
	case models.InteractionLike:
		return "like_count"
	case models.InteractionBookmark:
		return "bookmark_count"
	case models.InteractionRepost:
		return "repost_count"
	default:
		return ""
	}
}

// InsertInteraction пишет строку реакции и зеркальный счетчик в одной
// транзакции: видимая строка без инкремента (и наоборот) недопустима
func (s *GormPostStore) InsertInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error {
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Interaction{
			UserID:    userID,
			PostID:    postID,
			Kind:      kind,
			CreatedAt: time.Now(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// реакция уже стоит - идемпотентный конфликт
				return ErrAlreadyApplied
			}
			return fmt.Errorf("failed to insert interaction: %w", err)
		}

		column := counterColumn(kind)
		if err := tx.Model(&models.Post{}).
			Where("id = ?", postID).
			UpdateColumn(column, gorm.Expr(column+" + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump %s: %w", column, err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyApplied) {
		return ErrAlreadyApplied
	}
	return err
}

func (s *GormPostStore) DeleteInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error {
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("user_id = ? AND post_id = ? AND kind = ?", userID, postID, kind).
			Delete(&models.Interaction{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete interaction: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// реакции и так нет
			return ErrAlreadyApplied
		}

		column := counterColumn(kind)
		if err := tx.Model(&models.Post{}).
			Where("id = ? AND "+column+" > 0", postID).
			UpdateColumn(column, gorm.Expr(column+" - 1")).Error; err != nil {
			return fmt.Errorf("failed to drop %s: %w", column, err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyApplied) {
		return ErrAlreadyApplied
	}
	return err
}

func (s *GormPostStore) RecordView(ctx context.Context, userID, postID int64) error {
	view := models.PostView{UserID: userID, PostID: postID, CreatedAt: time.Now()}
	if err := db.GetWriteDB(ctx).Create(&view).Error; err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return db.GetWriteDB(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (s *GormPostStore) NewestCreatedAt(ctx context.Context) (time.Time, error) {
	var newest sql.NullTime
	err := db.GetReadOnlyDB(ctx).Model(&models.Post{}).
		Select("MAX(created_at)").Scan(&newest).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get newest post time: %w", err)
	}
	if !newest.Valid {
		return time.Time{}, nil
	}
	return newest.Time, nil
}

func (s *GormPostStore) SubscribeInserts(ctx context.Context) (<-chan InsertEvent, func(), error) {
	ch, cancel := GlobalInsertHub.Subscribe()
	return ch, cancel, nil
}
