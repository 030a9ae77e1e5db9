package services

import (
	"context"
	"log"
	"time"

	"pulse/models"
)

const trendingWindow = 24 * time.Hour

// FeedFetcher выполняет ранжированные запросы по табам с многоуровневым
// фоллбеком: лента не должна быть пустой, пока в хранилище есть публичный
// контент. Фетчер без состояния, курсор ему передает сессия.
type FeedFetcher struct {
	store        PostStore
	queryTimeout time.Duration
}

func NewFeedFetcher(store PostStore, queryTimeout time.Duration) *FeedFetcher {
	if queryTimeout <= 0 {
		queryTimeout = 3 * time.Second
	}
	return &FeedFetcher{store: store, queryTimeout: queryTimeout}
}

// Fetch возвращает страницу постов для таба. Ошибки любого уровня гасятся
// и приводят к следующему уровню фоллбека; пустой список - "нет контента",
// а не ошибка.
func (f *FeedFetcher) Fetch(ctx context.Context, tab FeedTab, viewerID int64, offset, limit int) []models.Post {
	switch tab {
	case TabFollowing:
		return f.fetchFollowing(ctx, viewerID, offset, limit)
	case TabTrending:
		return f.fetchTrending(ctx, viewerID, offset, limit)
	default:
		return f.fetchForYou(ctx, viewerID, offset, limit)
	}
}

// fetchForYou: tier 1 - предрассчитанный relevance-рейтинг,
// tier 2 - глобальная лента по свежести
func (f *FeedFetcher) fetchForYou(ctx context.Context, viewerID int64, offset, limit int) []models.Post {
	qctx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	ids, err := f.store.RankedPostIDs(qctx, viewerID, offset, limit)
	if err == nil && len(ids) > 0 {
		posts, err := f.store.PostsByIDs(qctx, viewerID, ids)
		if err == nil && len(posts) > 0 {
			return posts
		}
		if err != nil {
			log.Printf("DEBUG: for-you hydration failed, falling back to global: %v", err)
		}
	} else if err != nil {
		log.Printf("DEBUG: for-you ranked query failed, falling back to global: %v", err)
	}
	feedFallbacksTotal.WithLabelValues(string(TabForYou)).Inc()

	return f.fetchGlobal(ctx, viewerID, offset, limit)
}

// fetchFollowing: посты follow-набора по свежести; пустой follow-набор
// или ошибка - глобальная лента
func (f *FeedFetcher) fetchFollowing(ctx context.Context, viewerID int64, offset, limit int) []models.Post {
	qctx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	followees, err := f.store.FolloweeIDs(qctx, viewerID)
	if err != nil {
		log.Printf("DEBUG: follow set query failed, falling back to global: %v", err)
	}
	if err == nil && len(followees) > 0 {
		posts, err := f.store.QueryPosts(qctx, PostFilter{ViewerID: viewerID, AuthorIDs: followees}, OrderRecency, offset, limit)
		if err == nil && len(posts) > 0 {
			return posts
		}
		if err != nil {
			log.Printf("DEBUG: following query failed, falling back to global: %v", err)
		}
	}
	feedFallbacksTotal.WithLabelValues(string(TabFollowing)).Inc()

	return f.fetchGlobal(ctx, viewerID, offset, limit)
}

// fetchTrending: вовлеченность за последние 24 часа; при ошибке
// оконного запроса - глобальная лента
func (f *FeedFetcher) fetchTrending(ctx context.Context, viewerID int64, offset, limit int) []models.Post {
	qctx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	since := time.Now().Add(-trendingWindow)
	posts, err := f.store.QueryPosts(qctx, PostFilter{ViewerID: viewerID, Since: since}, OrderEngagement, offset, limit)
	if err == nil && len(posts) > 0 {
		return posts
	}
	if err != nil {
		log.Printf("DEBUG: trending query failed, falling back to global: %v", err)
	}
	feedFallbacksTotal.WithLabelValues(string(TabTrending)).Inc()

	return f.fetchGlobal(ctx, viewerID, offset, limit)
}

// fetchGlobal - последний уровень фоллбека: все публичные посты по
// свежести. Если и он падает, возвращаем пустую страницу, не ошибку.
func (f *FeedFetcher) fetchGlobal(ctx context.Context, viewerID int64, offset, limit int) []models.Post {
	qctx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	posts, err := f.store.QueryPosts(qctx, PostFilter{ViewerID: viewerID}, OrderRecency, offset, limit)
	if err != nil {
		log.Printf("ERROR: global feed query failed, returning empty page: %v", err)
		return []models.Post{}
	}
	return posts
}
