package services

import (
	"context"
	"sync"
	"time"

	"pulse/models"
)

// fakePostStore - управляемое хранилище для тестов движка: позволяет
// подсунуть контент, уронить отдельные запросы и заблокировать сетевые
// операции реакций для проверки коалесцирования.
type fakePostStore struct {
	mu sync.Mutex

	posts     []models.Post
	rankedIDs []int64
	followees []int64

	rankedErr error
	queryErr  error
	followErr error

	insertInteractionErr error
	deleteInteractionErr error

	// gate блокирует Insert/DeleteInteraction до закрытия канала;
	// arrived сигналит о каждом входе в сетевую операцию
	gate    chan struct{}
	arrived chan struct{}

	// queryGate блокирует ровно один следующий QueryPosts (после
	// срабатывания снимается сам); queryArrived сигналит о входе
	queryGate    chan struct{}
	queryArrived chan struct{}

	// postGate блокирует Insert/DeletePost; postArrived сигналит о входе
	postGate      chan struct{}
	postArrived   chan struct{}
	deletePostErr error

	insertCalls int
	deleteCalls int

	interactions map[int64]map[models.InteractionKind]bool
	views        []int64

	hub *InsertEventHub
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{
		interactions: make(map[int64]map[models.InteractionKind]bool),
		hub:          NewInsertEventHub(),
	}
}

// visibleTo повторяет предикат видимости боевого хранилища:
// чужие посты - только public, свои - любые
func visibleTo(p models.Post, viewerID int64) bool {
	return p.Visibility == models.VisibilityPublic || p.AuthorID == viewerID
}

func (f *fakePostStore) QueryPosts(ctx context.Context, filter PostFilter, order PostOrder, offset, limit int) ([]models.Post, error) {
	f.mu.Lock()
	queryGate := f.queryGate
	f.queryGate = nil
	queryArrived := f.queryArrived
	f.mu.Unlock()
	if queryGate != nil {
		if queryArrived != nil {
			queryArrived <- struct{}{}
		}
		<-queryGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	matched := make([]models.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if !visibleTo(p, filter.ViewerID) {
			continue
		}
		if len(filter.AuthorIDs) > 0 {
			found := false
			for _, id := range filter.AuthorIDs {
				if p.AuthorID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if !filter.Since.IsZero() && !p.CreatedAt.After(filter.Since) {
			continue
		}
		matched = append(matched, p)
	}

	if offset >= len(matched) {
		return []models.Post{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]models.Post, end-offset)
	copy(page, matched[offset:end])
	return page, nil
}

func (f *fakePostStore) RankedPostIDs(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rankedErr != nil {
		return nil, f.rankedErr
	}
	if offset >= len(f.rankedIDs) {
		return []int64{}, nil
	}
	end := offset + limit
	if end > len(f.rankedIDs) {
		end = len(f.rankedIDs)
	}
	return append([]int64{}, f.rankedIDs[offset:end]...), nil
}

func (f *fakePostStore) PostsByIDs(ctx context.Context, viewerID int64, ids []int64) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	byID := make(map[int64]models.Post, len(f.posts))
	for _, p := range f.posts {
		if !visibleTo(p, viewerID) {
			continue
		}
		byID[p.ID] = p
	}
	result := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (f *fakePostStore) FolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.followErr != nil {
		return nil, f.followErr
	}
	return append([]int64{}, f.followees...), nil
}

func (f *fakePostStore) ViewerInteractions(ctx context.Context, userID int64, postIDs []int64) (map[int64]map[models.InteractionKind]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[int64]map[models.InteractionKind]bool)
	for _, id := range postIDs {
		if kinds, ok := f.interactions[id]; ok {
			copied := make(map[models.InteractionKind]bool, len(kinds))
			for k, v := range kinds {
				copied[k] = v
			}
			result[id] = copied
		}
	}
	return result, nil
}

func (f *fakePostStore) waitPostGate() {
	f.mu.Lock()
	gate := f.postGate
	arrived := f.postArrived
	f.mu.Unlock()
	if arrived != nil {
		arrived <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakePostStore) InsertPost(ctx context.Context, post *models.Post) error {
	f.waitPostGate()
	f.mu.Lock()
	if f.queryErr != nil {
		f.mu.Unlock()
		return f.queryErr
	}
	maxID := int64(0)
	for _, p := range f.posts {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	post.ID = maxID + 1
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	f.posts = append([]models.Post{*post}, f.posts...)
	event := InsertEvent{PostID: post.ID, AuthorID: post.AuthorID, Visibility: post.Visibility, CreatedAt: post.CreatedAt}
	f.mu.Unlock()

	f.hub.Publish(event)
	return nil
}

func (f *fakePostStore) DeletePost(ctx context.Context, authorID, postID int64) error {
	f.waitPostGate()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deletePostErr != nil {
		return f.deletePostErr
	}
	if f.queryErr != nil {
		return f.queryErr
	}
	for i, p := range f.posts {
		if p.ID == postID && p.AuthorID == authorID {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return nil
		}
	}
	return ErrAlreadyApplied
}

func (f *fakePostStore) waitGate() {
	f.mu.Lock()
	gate := f.gate
	arrived := f.arrived
	f.mu.Unlock()
	if arrived != nil {
		arrived <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakePostStore) InsertInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error {
	f.waitGate()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertInteractionErr != nil {
		return f.insertInteractionErr
	}
	if f.interactions[postID] == nil {
		f.interactions[postID] = make(map[models.InteractionKind]bool)
	}
	if f.interactions[postID][kind] {
		return ErrAlreadyApplied
	}
	f.interactions[postID][kind] = true
	return nil
}

func (f *fakePostStore) DeleteInteraction(ctx context.Context, userID, postID int64, kind models.InteractionKind) error {
	f.waitGate()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteInteractionErr != nil {
		return f.deleteInteractionErr
	}
	if f.interactions[postID] == nil || !f.interactions[postID][kind] {
		return ErrAlreadyApplied
	}
	f.interactions[postID][kind] = false
	return nil
}

func (f *fakePostStore) RecordView(ctx context.Context, userID, postID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, postID)
	return nil
}

func (f *fakePostStore) NewestCreatedAt(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest time.Time
	for _, p := range f.posts {
		if p.CreatedAt.After(newest) {
			newest = p.CreatedAt
		}
	}
	return newest, nil
}

func (f *fakePostStore) SubscribeInserts(ctx context.Context) (<-chan InsertEvent, func(), error) {
	ch, unsubscribe := f.hub.Subscribe()
	return ch, unsubscribe, nil
}

func (f *fakePostStore) counts() (inserts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertCalls, f.deleteCalls
}

// seedPosts наполняет хранилище постами с убывающей свежестью
func (f *fakePostStore) seedPosts(n int, authorID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := 0; i < n; i++ {
		f.posts = append(f.posts, models.Post{
			ID:         int64(i + 1),
			AuthorID:   authorID,
			Content:    "post",
			Visibility: models.VisibilityPublic,
			CreatedAt:  now.Add(-time.Duration(i) * time.Minute),
		})
	}
}
