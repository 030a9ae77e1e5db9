package services

import (
	"context"
	"errors"
	"time"

	"pulse/models"
)

type FeedTab string

const (
	TabForYou    FeedTab = "for-you"
	TabFollowing FeedTab = "following"
	TabTrending  FeedTab = "trending"
)

func ParseFeedTab(s string) (FeedTab, bool) {
	switch FeedTab(s) {
	case TabForYou, TabFollowing, TabTrending:
		return FeedTab(s), true
	default:
		return "", false
	}
}

// ErrAlreadyApplied - идемпотентный конфликт: запрошенное состояние уже
// достигнуто (дубликат вставки реакции или удаление отсутствующей строки).
// Вызывающие обязаны трактовать его как успех.
var ErrAlreadyApplied = errors.New("already applied")

// ErrNotFound - строка не найдена или нет доступа
var ErrNotFound = errors.New("not found")

type PostOrder string

const (
	OrderRecency    PostOrder = "recency"    // created_at DESC, id ASC
	OrderEngagement PostOrder = "engagement" // like+repost DESC, затем recency
)

// PostFilter - предикат выборки постов. Чужие посты видны только public;
// собственные посты зрителя - с любой видимостью.
type PostFilter struct {
	ViewerID  int64     // ненулевой - "public или свой" вместо только public
	AuthorIDs []int64   // непустой - только эти авторы
	Since     time.Time // ненулевой - только посты новее этого времени
}

// InsertEvent - событие вставки поста из realtime-канала.
// Передаются только метаданные, контент подтягивается при loadNew.
type InsertEvent struct {
	PostID     int64             `json:"post_id"`
	AuthorID   int64             `json:"author_id"`
	Visibility models.Visibility `json:"visibility"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PostStore - порт внешнего хранилища постов. Движок ленты не знает,
// что за ним стоит (в проде - Postgres + Redis, в тестах - фейк).
type PostStore interface {
	// QueryPosts возвращает страницу постов по предикату и порядку
	QueryPosts(ctx context.Context, filter PostFilter, order PostOrder, offset, limit int) ([]models.Post, error)

	// RankedPostIDs - предрассчитанный relevance-рейтинг для for-you
	// (аналог серверной scoring-функции)
	RankedPostIDs(ctx context.Context, userID int64, offset, limit int) ([]int64, error)

	// PostsByIDs гидрирует посты по id, сохраняя порядок входного списка.
	// Видимость проверяется так же, как в QueryPosts: чужие - только public.
	PostsByIDs(ctx context.Context, viewerID int64, ids []int64) ([]models.Post, error)

	// FolloweeIDs - follow-набор пользователя
	FolloweeIDs(ctx context.Context, userID int64) ([]int64, error)

	// ViewerInteractions - какие реакции зритель уже поставил на эти посты
	ViewerInteractions(ctx context.Context, userID int64, postIDs []int64) (map[int64]map[models.InteractionKind]bool, error)

	InsertPost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, authorID, postID int64) error

	// InsertInteraction/DeleteInteraction меняют и строку реакции, и счетчик
	// на посте. Дубликат возвращает ErrAlreadyApplied.
	InsertInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error
	DeleteInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error

	RecordView(ctx context.Context, userID, postID int64) error

	// NewestCreatedAt - только метка времени самого свежего поста,
	// дешевый запрос для poll-фоллбека
	NewestCreatedAt(ctx context.Context) (time.Time, error)

	// SubscribeInserts возвращает канал событий вставки и функцию отписки
	SubscribeInserts(ctx context.Context) (<-chan InsertEvent, func(), error)
}
