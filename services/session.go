package services

import (
	"context"
	"log"
	"sync"
	"time"

	"pulse/models"

	"github.com/google/uuid"
)

type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateLoading     SessionState = "loading"
	StateLoaded      SessionState = "loaded"
	StateLoadingMore SessionState = "loading_more"
)

// SessionConfig - настройки движка, приходят из config.FeedConfig
type SessionConfig struct {
	PageSize             int
	QueryTimeout         time.Duration
	PollInterval         time.Duration
	ResyncAfterRollbacks int

	// OnPostConfirmed вызывается после подтверждения вставки поста
	// хранилищем (геймификация начисляет XP за публикацию)
	OnPostConfirmed func(userID, postID int64)
}

// FeedSession - один открытый экран ленты. Владеет курсором, таблицей
// pending-мутаций и подпиской на realtime; все это умирает вместе с
// сессией. Состояния пишутся только под mu, между сессиями общей
// памяти нет - они сверяются только через хранилище.
type FeedSession struct {
	ID     string
	UserID int64

	mu         sync.Mutex
	tab        FeedTab
	state      SessionState
	items      []models.FeedItem
	cursor     *PaginationCursor
	generation uint64
	viewed     map[int64]struct{}
	nextTempID int64

	store   PostStore
	fetcher *FeedFetcher
	delta   *RealtimeDeltaTracker
	coord   *MutationCoordinator
	cfg     SessionConfig

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFeedSession(store PostStore, userID int64, cfg SessionConfig) *FeedSession {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &FeedSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		state:      StateIdle,
		cursor:     NewPaginationCursor(cfg.PageSize),
		viewed:     make(map[int64]struct{}),
		nextTempID: -1,
		store:      store,
		fetcher:    NewFeedFetcher(store, cfg.QueryTimeout),
		delta:      NewRealtimeDeltaTracker(store, userID, cfg.PollInterval),
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.coord = NewMutationCoordinator(store, userID, cfg.QueryTimeout, s.adjustCounter, s.onRollback)

	s.delta.Start(ctx)
	s.refreshFollowSet()
	s.SetTab(TabForYou)
	return s
}

// Close освобождает подписки сессии
func (s *FeedSession) Close() {
	s.cancel()
	s.delta.Stop()
}

// SetTab переключает таб: свежий курсор, окно очищается, результаты
// запросов прошлого таба отсекаются по generation-токену
func (s *FeedSession) SetTab(tab FeedTab) {
	s.mu.Lock()
	if tab == s.tab && s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.tab = tab
	s.generation++
	gen := s.generation
	s.cursor.Reset()
	s.items = nil
	s.state = StateLoading
	offset := s.cursor.Offset()
	limit := s.cursor.PageSize()
	s.mu.Unlock()

	s.delta.SetTab(tab)
	if tab == TabFollowing {
		s.refreshFollowSet()
	}

	go s.fetchPage(gen, tab, offset, limit, true, true)
}

// LoadMore догружает следующую страницу. No-op, если загрузка уже идет
// или страниц больше нет - запросы не ставятся в очередь.
func (s *FeedSession) LoadMore() {
	s.mu.Lock()
	if s.state != StateLoaded || !s.cursor.HasMore() {
		s.mu.Unlock()
		return
	}
	s.state = StateLoadingMore
	gen := s.generation
	tab := s.tab
	offset := s.cursor.Offset()
	limit := s.cursor.PageSize()
	s.mu.Unlock()

	go s.fetchPage(gen, tab, offset, limit, false, false)
}

// LoadNew - полная перезагрузка головы вместо хирургического мержа
// буферизованных вставок: дороже, но не воюет с авторитетным порядком
func (s *FeedSession) LoadNew() {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	tab := s.tab
	s.cursor.Reset()
	s.state = StateLoading
	offset := s.cursor.Offset()
	limit := s.cursor.PageSize()
	s.mu.Unlock()

	go s.fetchPage(gen, tab, offset, limit, true, true)
}

// Resync - эскейп-хетч при подозрении на дрифт клиента и хранилища:
// членство реакций пересеивается заново, окно перезагружается
func (s *FeedSession) Resync() {
	log.Printf("DEBUG: session %s forcing full resync", s.ID)
	feedResyncsTotal.Inc()
	s.coord.ResetAfterResync()
	s.LoadNew()
}

// fetchPage выполняет сетевую часть без блокировок и применяет результат
// только если generation все еще актуален
func (s *FeedSession) fetchPage(gen uint64, tab FeedTab, offset, limit int, replace, resetDelta bool) {
	posts := s.fetcher.Fetch(s.ctx, tab, s.UserID, offset, limit)

	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	membership, err := s.store.ViewerInteractions(s.ctx, s.UserID, ids)
	if err != nil {
		log.Printf("DEBUG: viewer interactions load failed: %v", err)
		membership = nil
	}

	s.mu.Lock()
	if gen != s.generation {
		// результат устаревшего запроса - отбрасываем, не применяя
		s.mu.Unlock()
		staleFetchDropsTotal.Inc()
		return
	}
	fresh := s.cursor.Append(posts)
	s.cursor.MarkPage(len(posts))
	if replace {
		s.items = make([]models.FeedItem, 0, len(fresh))
	}
	var head time.Time
	for _, p := range fresh {
		s.items = append(s.items, models.FeedItem{Post: p})
	}
	for _, item := range s.items {
		if item.Post.CreatedAt.After(head) {
			head = item.Post.CreatedAt
		}
	}
	s.state = StateLoaded
	s.mu.Unlock()

	if membership != nil {
		s.coord.SeedMembership(membership)
	}
	if resetDelta {
		s.delta.ResetCounts(head)
	} else {
		s.delta.NoteLoaded(head)
	}
}

// Toggle - optimistic-переключение реакции на пост
func (s *FeedSession) Toggle(postID int64, kind models.InteractionKind) {
	s.coord.Toggle(s.ctx, postID, kind)
}

// CreatePost немедленно вставляет плейсхолдер в голову окна и заменяет
// его подтвержденной строкой, когда хранилище ответит
func (s *FeedSession) CreatePost(content string, visibility models.Visibility, media []models.PostMedia) {
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	clientRef := uuid.NewString()

	s.mu.Lock()
	gen := s.generation
	tempID := s.nextTempID
	s.nextTempID--
	placeholder := models.FeedItem{
		Post: models.Post{
			ID:         tempID,
			AuthorID:   s.UserID,
			Content:    content,
			Visibility: visibility,
			Media:      media,
			CreatedAt:  time.Now(),
		},
		Pending: true,
	}
	s.items = append([]models.FeedItem{placeholder}, s.items...)
	s.mu.Unlock()

	go func() {
		post := &models.Post{
			AuthorID:   s.UserID,
			Content:    content,
			Visibility: visibility,
			Media:      media,
		}
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.QueryTimeout)
		defer cancel()
		err := s.store.InsertPost(opCtx, post)

		s.mu.Lock()
		if gen != s.generation {
			// таб сменился, пока вставка была в пути: плейсхолдера в окне
			// уже нет, и курсор нового таба трогать нельзя
			s.mu.Unlock()
			if err != nil {
				log.Printf("ERROR: optimistic post create (ref %s) rolled back: %v", clientRef, err)
				optimisticRollbacksTotal.WithLabelValues("create_post").Inc()
				return
			}
			staleFetchDropsTotal.Inc()
			if s.cfg.OnPostConfirmed != nil {
				s.cfg.OnPostConfirmed(s.UserID, post.ID)
			}
			return
		}
		idx := s.indexOfLocked(tempID)
		if err != nil {
			// откат: плейсхолдер убирается, модальных ошибок нет
			if idx >= 0 {
				s.items = append(s.items[:idx], s.items[idx+1:]...)
			}
			s.mu.Unlock()
			log.Printf("ERROR: optimistic post create (ref %s) rolled back: %v", clientRef, err)
			optimisticRollbacksTotal.WithLabelValues("create_post").Inc()
			return
		}
		if idx >= 0 {
			s.items[idx] = models.FeedItem{Post: *post}
		}
		s.cursor.MarkSeen(post.ID)
		s.viewed[post.ID] = struct{}{}
		s.mu.Unlock()

		if s.cfg.OnPostConfirmed != nil {
			s.cfg.OnPostConfirmed(s.UserID, post.ID)
		}
	}()
}

// DeletePost немедленно убирает пост из окна и возвращает его на место
// при ошибке хранилища
func (s *FeedSession) DeletePost(postID int64) {
	s.mu.Lock()
	gen := s.generation
	idx := s.indexOfLocked(postID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()

	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.QueryTimeout)
		defer cancel()
		err := s.store.DeletePost(opCtx, s.UserID, postID)
		if err == nil || err == ErrAlreadyApplied {
			return
		}
		s.mu.Lock()
		if gen != s.generation {
			// окно принадлежит уже другому табу - возвращать строку некуда
			s.mu.Unlock()
			staleFetchDropsTotal.Inc()
			log.Printf("ERROR: optimistic post delete %d rolled back: %v", postID, err)
			optimisticRollbacksTotal.WithLabelValues("delete_post").Inc()
			return
		}
		pos := idx
		if pos > len(s.items) {
			pos = len(s.items)
		}
		s.items = append(s.items[:pos], append([]models.FeedItem{removed}, s.items[pos:]...)...)
		s.mu.Unlock()
		log.Printf("ERROR: optimistic post delete %d rolled back: %v", postID, err)
		optimisticRollbacksTotal.WithLabelValues("delete_post").Inc()
	}()
}

// RecordView репортит просмотр не чаще раза за сессию, даже если пост
// снова попал во вьюпорт
func (s *FeedSession) RecordView(postID int64) {
	s.mu.Lock()
	if _, ok := s.viewed[postID]; ok {
		s.mu.Unlock()
		return
	}
	s.viewed[postID] = struct{}{}
	s.mu.Unlock()

	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.QueryTimeout)
		defer cancel()
		if err := s.store.RecordView(opCtx, s.UserID, postID); err != nil {
			log.Printf("DEBUG: view report for post %d failed: %v", postID, err)
		}
	}()
}

// Snapshot собирает то, что видит UI-слой
func (s *FeedSession) Snapshot() models.FeedSnapshot {
	s.mu.Lock()
	items := make([]models.FeedItem, len(s.items))
	copy(items, s.items)
	snap := models.FeedSnapshot{
		Tab:     string(s.tab),
		State:   string(s.state),
		HasMore: s.cursor.HasMore(),
	}
	s.mu.Unlock()

	for i := range items {
		items[i].Liked, items[i].Bookmarked, items[i].Reposted = s.coord.MembershipFor(items[i].Post.ID)
	}
	snap.Items = items
	snap.NewCount = s.delta.NewCount()
	return snap
}

// indexOfLocked ищет пост в окне; вызывается под mu
func (s *FeedSession) indexOfLocked(postID int64) int {
	for i := range s.items {
		if s.items[i].Post.ID == postID {
			return i
		}
	}
	return -1
}

// adjustCounter зеркалит optimistic-сдвиг счетчика на посте в окне
func (s *FeedSession) adjustCounter(postID int64, kind models.InteractionKind, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(postID)
	if idx < 0 {
		return
	}
	post := &s.items[idx].Post
	bump := func(v int64) int64 {
		v += delta
		if v < 0 {
			v = 0
		}
		return v
	}
	switch kind {
	case models.InteractionLike:
		post.LikeCount = bump(post.LikeCount)
	case models.InteractionBookmark:
		post.BookmarkCount = bump(post.BookmarkCount)
	case models.InteractionRepost:
		post.RepostCount = bump(post.RepostCount)
	}
}

// onRollback проверяет порог откатов; при превышении - принудительный
// resync как защита от постоянного дрифта
func (s *FeedSession) onRollback(total int) {
	if s.cfg.ResyncAfterRollbacks > 0 && total >= s.cfg.ResyncAfterRollbacks {
		go s.Resync()
	}
}

func (s *FeedSession) refreshFollowSet() {
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.QueryTimeout)
		defer cancel()
		ids, err := s.store.FolloweeIDs(opCtx, s.UserID)
		if err != nil {
			log.Printf("DEBUG: follow set refresh failed: %v", err)
			return
		}
		s.delta.UpdateFollowSet(ids)
	}()
}

// SessionManager держит открытые сессии лент. Каждая вкладка браузера
// открывает свою сессию и закрывает ее при уходе.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*FeedSession
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*FeedSession)}
}

var GlobalSessionManager = NewSessionManager()

func (sm *SessionManager) Open(store PostStore, userID int64, cfg SessionConfig) *FeedSession {
	session := NewFeedSession(store, userID, cfg)
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	return session
}

func (sm *SessionManager) Get(sessionID string) (*FeedSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[sessionID]
	return session, ok
}

func (sm *SessionManager) Close(sessionID string) {
	sm.mu.Lock()
	session, ok := sm.sessions[sessionID]
	if ok {
		delete(sm.sessions, sessionID)
	}
	sm.mu.Unlock()
	if ok {
		session.Close()
	}
}
