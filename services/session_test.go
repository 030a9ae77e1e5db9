package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pulse/models"

	"github.com/stretchr/testify/require"
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		PageSize:             10,
		QueryTimeout:         time.Second,
		PollInterval:         time.Hour, // poll в этих тестах не участвует
		ResyncAfterRollbacks: 3,
	}
}

func waitLoaded(t *testing.T, s *FeedSession, itemCount int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.State == string(StateLoaded) && len(snap.Items) == itemCount
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionInitialLoad(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(25, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()

	waitLoaded(t, s, 10)
	snap := s.Snapshot()
	require.Equal(t, string(TabForYou), snap.Tab)
	require.True(t, snap.HasMore)
	require.Equal(t, 0, snap.NewCount)
}

func TestSessionLoadMore(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(25, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 10)

	s.LoadMore()
	waitLoaded(t, s, 20)

	s.LoadMore()
	waitLoaded(t, s, 25)

	snap := s.Snapshot()
	require.False(t, snap.HasMore)

	// Окно не содержит дублей
	seen := make(map[int64]bool)
	for _, item := range snap.Items {
		require.False(t, seen[item.Post.ID], "duplicate post %d", item.Post.ID)
		seen[item.Post.ID] = true
	}
}

func TestSessionLoadMoreWhileLoadingIsNoop(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(25, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 10)

	// Шквал запросов догрузки: в очередь они не ставятся
	s.LoadMore()
	s.LoadMore()
	s.LoadMore()

	waitLoaded(t, s, 20)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Snapshot().Items, 20)
}

func TestSessionTabSwitch(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(15, 100)
	store.followees = []int64{100}

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 10)

	s.SetTab(TabFollowing)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Tab == string(TabFollowing) && snap.State == string(StateLoaded)
	}, 2*time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.Items, 10)
	seen := make(map[int64]bool)
	for _, item := range snap.Items {
		require.False(t, seen[item.Post.ID])
		seen[item.Post.ID] = true
	}
}

func TestSessionSameTabIsNoop(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(5, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 5)

	s.SetTab(TabForYou)
	require.Equal(t, string(StateLoaded), s.Snapshot().State)
}

func TestSessionCreatePostOptimistic(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	s.CreatePost("hello", models.VisibilityPublic, nil)

	// Пост появляется в голове окна сразу и в итоге подтверждается
	require.Len(t, s.Snapshot().Items, 4)
	require.Eventually(t, func() bool {
		head := s.Snapshot().Items[0]
		return head.Post.ID > 0 && !head.Pending && head.Post.Content == "hello"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionCreatePostRollback(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	store.mu.Lock()
	store.queryErr = errors.New("db down")
	store.mu.Unlock()

	s.CreatePost("doomed", models.VisibilityPublic, nil)
	require.Len(t, s.Snapshot().Items, 4)

	// Плейсхолдер убирается после отказа хранилища
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Items) == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionDeletePostOptimistic(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 1) // посты самого зрителя

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	target := s.Snapshot().Items[1].Post.ID
	s.DeletePost(target)

	require.Len(t, s.Snapshot().Items, 2)
	time.Sleep(50 * time.Millisecond)
	for _, item := range s.Snapshot().Items {
		require.NotEqual(t, target, item.Post.ID)
	}
}

func TestSessionDeleteMissingPostStaysDeleted(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 1)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	target := s.Snapshot().Items[0].Post.ID
	// Пост уже удален с другого устройства
	store.mu.Lock()
	store.posts = store.posts[1:]
	store.mu.Unlock()

	s.DeletePost(target)
	// ErrAlreadyApplied - успех, пост не возвращается в окно
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Snapshot().Items, 2)
}

func TestSessionTabSwitchDropsInFlightPage(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(15, 100)
	store.followees = []int64{100}

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 10)

	// Вторая страница for-you застревает в пути
	gate := make(chan struct{})
	arrived := make(chan struct{}, 1)
	store.mu.Lock()
	store.queryGate = gate
	store.queryArrived = arrived
	store.mu.Unlock()

	s.LoadMore()
	<-arrived

	s.SetTab(TabFollowing)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Tab == string(TabFollowing) && snap.State == string(StateLoaded)
	}, 2*time.Second, 5*time.Millisecond)

	// Запоздавший ответ прошлого таба отбрасывается, не трогая окно
	close(gate)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	require.Equal(t, string(TabFollowing), snap.Tab)
	require.Len(t, snap.Items, 10)
	seen := make(map[int64]bool)
	for _, item := range snap.Items {
		require.False(t, seen[item.Post.ID], "duplicate post %d", item.Post.ID)
		seen[item.Post.ID] = true
	}
}

func TestSessionStaleDeleteRollbackSkipsNewTab(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 1) // посты самого зрителя

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	gate := make(chan struct{})
	arrived := make(chan struct{}, 1)
	store.mu.Lock()
	store.postGate = gate
	store.postArrived = arrived
	store.deletePostErr = errors.New("db down")
	store.mu.Unlock()

	target := s.Snapshot().Items[1].Post.ID
	s.DeletePost(target)
	<-arrived

	// Пока удаление в пути, зритель уходит на другой таб
	s.SetTab(TabFollowing)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Tab == string(TabFollowing) && snap.State == string(StateLoaded)
	}, 2*time.Second, 5*time.Millisecond)

	// Откат неудавшегося удаления не вставляет строку в чужое окно
	close(gate)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.Items, 3)
	seen := make(map[int64]bool)
	for _, item := range snap.Items {
		require.False(t, seen[item.Post.ID], "duplicate post %d", item.Post.ID)
		seen[item.Post.ID] = true
	}
}

func TestSessionStaleCreateConfirmLeavesNewTabCursor(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	gate := make(chan struct{})
	arrived := make(chan struct{}, 1)
	store.mu.Lock()
	store.postGate = gate
	store.postArrived = arrived
	store.mu.Unlock()

	s.CreatePost("late confirm", models.VisibilityPublic, nil)
	<-arrived

	s.SetTab(TabTrending)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Tab == string(TabTrending) && snap.State == string(StateLoaded)
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.posts) == 4
	}, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	confirmedID := store.posts[0].ID
	store.mu.Unlock()

	// Подтверждение из прошлого таба не попадает в окно и не помечает
	// id виденным в курсоре нового таба - иначе loadNew его отфильтрует
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Snapshot().Items, 3)
	s.mu.Lock()
	_, marked := s.cursor.seenIDs[confirmedID]
	s.mu.Unlock()
	require.False(t, marked)
}

func TestSessionCreatePostConfirmCallback(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	var mu sync.Mutex
	var confirmedUser, confirmedPost int64
	cfg := testSessionConfig()
	cfg.OnPostConfirmed = func(userID, postID int64) {
		mu.Lock()
		confirmedUser, confirmedPost = userID, postID
		mu.Unlock()
	}

	s := NewFeedSession(store, 1, cfg)
	defer s.Close()
	waitLoaded(t, s, 3)

	s.CreatePost("rewarded", models.VisibilityPublic, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return confirmedPost > 0
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int64(1), confirmedUser)
}

func TestSessionCreatePostRollbackSkipsCallback(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	var calls int64
	cfg := testSessionConfig()
	cfg.OnPostConfirmed = func(userID, postID int64) {
		atomic.AddInt64(&calls, 1)
	}

	s := NewFeedSession(store, 1, cfg)
	defer s.Close()
	waitLoaded(t, s, 3)

	store.mu.Lock()
	store.queryErr = errors.New("db down")
	store.mu.Unlock()

	s.CreatePost("doomed", models.VisibilityPublic, nil)
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Items) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// Откат не награждается
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestSessionToggleReflectsInSnapshot(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	target := s.Snapshot().Items[0].Post.ID
	s.Toggle(target, models.InteractionLike)

	snap := s.Snapshot()
	require.True(t, snap.Items[0].Liked)
	require.Equal(t, int64(1), snap.Items[0].Post.LikeCount)
}

func TestSessionRecordViewDeduplicates(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 3)

	target := s.Snapshot().Items[0].Post.ID
	s.RecordView(target)
	s.RecordView(target)
	s.RecordView(target)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.views) == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.views, 1)
}

func TestSessionResyncAfterRollbackThreshold(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(5, 100)

	cfg := testSessionConfig()
	cfg.ResyncAfterRollbacks = 2
	s := NewFeedSession(store, 1, cfg)
	defer s.Close()
	waitLoaded(t, s, 5)

	store.mu.Lock()
	store.insertInteractionErr = errors.New("network down")
	store.mu.Unlock()

	s.Toggle(1, models.InteractionLike)
	require.Eventually(t, func() bool {
		return s.coord.Rollbacks() == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Toggle(2, models.InteractionLike)

	// Второй откат пробивает порог: счетчик откатов обнуляется resync-ом
	require.Eventually(t, func() bool {
		return s.coord.Rollbacks() == 0 && s.Snapshot().State == string(StateLoaded)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionNewCountFromRealtime(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(5, 100)

	s := NewFeedSession(store, 1, testSessionConfig())
	defer s.Close()
	waitLoaded(t, s, 5)

	store.hub.Publish(InsertEvent{
		PostID: 99, AuthorID: 2,
		Visibility: models.VisibilityPublic,
		CreatedAt:  time.Now().Add(time.Minute),
	})

	require.Eventually(t, func() bool {
		return s.Snapshot().NewCount == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Счетчик не трогает окно
	require.Len(t, s.Snapshot().Items, 5)
}

func TestSessionManagerLifecycle(t *testing.T) {
	store := newFakePostStore()
	store.seedPosts(3, 100)

	sm := NewSessionManager()
	s := sm.Open(store, 1, testSessionConfig())

	got, ok := sm.Get(s.ID)
	require.True(t, ok)
	require.Equal(t, s.ID, got.ID)

	sm.Close(s.ID)
	_, ok = sm.Get(s.ID)
	require.False(t, ok)
}
