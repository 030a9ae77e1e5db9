package services

import (
	"context"
	"log"
	"sync"
	"time"

	"pulse/models"
)

// RealtimeDeltaTracker сливает push- и poll-источники изменений в один
// счетчик newCount. Видимое окно он не трогает никогда - это ключевое
// свойство, оберегающее позицию скролла. Контент не буферизуется,
// только id; полный контент заберет loadNew.
type RealtimeDeltaTracker struct {
	mu           sync.Mutex
	store        PostStore
	viewerID     int64
	tab          FeedTab
	followSet    map[int64]struct{}
	newCount     int
	buffered     map[int64]struct{}
	newestLoaded time.Time
	lastPollSeen time.Time
	pollInterval time.Duration
	cancel       context.CancelFunc
}

func NewRealtimeDeltaTracker(store PostStore, viewerID int64, pollInterval time.Duration) *RealtimeDeltaTracker {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &RealtimeDeltaTracker{
		store:        store,
		viewerID:     viewerID,
		tab:          TabForYou,
		followSet:    make(map[int64]struct{}),
		buffered:     make(map[int64]struct{}),
		pollInterval: pollInterval,
	}
}

// Start подписывается на push-канал и запускает poll-бэкстоп.
// Ошибка подписки - молчаливая деградация до poll-only режима.
func (t *RealtimeDeltaTracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	events, unsubscribe, err := t.store.SubscribeInserts(ctx)
	if err != nil {
		log.Printf("DEBUG: insert subscription failed, poll-only mode: %v", err)
	} else {
		go func() {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-events:
					if !ok {
						return
					}
					t.onInsertEvent(event)
				}
			}
		}()
	}

	go t.pollLoop(ctx)
}

func (t *RealtimeDeltaTracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// onInsertEvent инкрементит счетчик, если событие проходит фильтр
// активного таба и пост не от самого зрителя
func (t *RealtimeDeltaTracker) onInsertEvent(event InsertEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.AuthorID == t.viewerID {
		return
	}
	if !t.passesFilter(event) {
		return
	}
	if !t.newestLoaded.IsZero() && !event.CreatedAt.After(t.newestLoaded) {
		return
	}
	if _, ok := t.buffered[event.PostID]; ok {
		return
	}
	t.buffered[event.PostID] = struct{}{}
	t.newCount++
	realtimeEventsTotal.WithLabelValues("push").Inc()
}

// passesFilter - предикат активного таба: following пропускает только
// follow-набор, остальные табы - публичные посты
func (t *RealtimeDeltaTracker) passesFilter(event InsertEvent) bool {
	if t.tab == TabFollowing {
		_, ok := t.followSet[event.AuthorID]
		return ok
	}
	return event.Visibility == models.VisibilityPublic || event.Visibility == ""
}

// pollLoop - бэкстоп свежести: дешевый запрос только за меткой времени
// самого нового поста. Ошибки глотаются до следующего тика.
func (t *RealtimeDeltaTracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newest, err := t.store.NewestCreatedAt(ctx)
			if err != nil {
				continue
			}
			t.mu.Lock()
			if !newest.IsZero() && newest.After(t.newestLoaded) && newest.After(t.lastPollSeen) {
				t.lastPollSeen = newest
				t.newCount++
				realtimeEventsTotal.WithLabelValues("poll").Inc()
			}
			t.mu.Unlock()
		}
	}
}

func (t *RealtimeDeltaTracker) NewCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newCount
}

// NoteLoaded фиксирует метку времени головы загруженного окна -
// базовую линию для "новее загруженного"
func (t *RealtimeDeltaTracker) NoteLoaded(head time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if head.After(t.newestLoaded) {
		t.newestLoaded = head
	}
}

// ResetCounts обнуляет счетчик и буфер id; вызывается из loadNew
// после полной перезагрузки головы
func (t *RealtimeDeltaTracker) ResetCounts(head time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newCount = 0
	t.buffered = make(map[int64]struct{})
	t.newestLoaded = head
	t.lastPollSeen = time.Time{}
}

// SetTab переключает предикат фильтра и сбрасывает счетчик
func (t *RealtimeDeltaTracker) SetTab(tab FeedTab) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tab = tab
	t.newCount = 0
	t.buffered = make(map[int64]struct{})
	t.newestLoaded = time.Time{}
	t.lastPollSeen = time.Time{}
}

// UpdateFollowSet обновляет follow-набор для предиката following
func (t *RealtimeDeltaTracker) UpdateFollowSet(ids []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.followSet = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		t.followSet[id] = struct{}{}
	}
}
