package services

import (
	"context"
	"log"
	"sync"
	"time"

	"pulse/models"
)

type mutationKey struct {
	postID int64
	kind   models.InteractionKind
}

// PendingMutation - запись optimistic-мутации между "применено локально"
// и "подтверждено или откачено". Запись не может остаться навсегда:
// ее убирает успех, идемпотентный конфликт или откат.
type PendingMutation struct {
	PostID       int64
	Kind         models.InteractionKind
	DesiredState bool // членство, которое запросил последний клик
	PriorState   bool // членство до первого локального применения
	Confirmed    bool // членство, в котором, по нашим данным, уверено хранилище
	Generation   uint64
}

// MutationCoordinator применяет лайки/закладки/репосты локально сразу
// и асинхронно сверяет их с хранилищем. На один ключ (postID, kind) -
// не больше одной сетевой операции в полете; повторные клики по тому же
// ключу только обновляют desiredState (коалесцирование даблкликов).
type MutationCoordinator struct {
	mu         sync.Mutex
	store      PostStore
	viewerID   int64
	timeout    time.Duration
	pending    map[mutationKey]*PendingMutation
	membership map[models.InteractionKind]map[int64]bool
	rollbacks  int
	generation uint64

	// adjustCounter зеркалит счетчик на посте в окне сессии; вызывается
	// всегда вне мьютекса координатора
	adjustCounter func(postID int64, kind models.InteractionKind, delta int64)
	// onRollback дергает сессию для проверки порога принудительного resync
	onRollback func(total int)
}

func NewMutationCoordinator(
	store PostStore,
	viewerID int64,
	timeout time.Duration,
	adjustCounter func(postID int64, kind models.InteractionKind, delta int64),
	onRollback func(total int),
) *MutationCoordinator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MutationCoordinator{
		store:      store,
		viewerID:   viewerID,
		timeout:    timeout,
		pending:    make(map[mutationKey]*PendingMutation),
		membership: newMembershipSets(),
		adjustCounter: adjustCounter,
		onRollback:    onRollback,
	}
}

func newMembershipSets() map[models.InteractionKind]map[int64]bool {
	return map[models.InteractionKind]map[int64]bool{
		models.InteractionLike:     {},
		models.InteractionBookmark: {},
		models.InteractionRepost:   {},
	}
}

// SeedMembership загружает известные реакции зрителя после загрузки
// страницы. Посты с pending-мутацией не перетираются.
func (m *MutationCoordinator) SeedMembership(rows map[int64]map[models.InteractionKind]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for postID, kinds := range rows {
		for kind, member := range kinds {
			if _, busy := m.pending[mutationKey{postID, kind}]; busy {
				continue
			}
			m.membership[kind][postID] = member
		}
	}
}

func (m *MutationCoordinator) IsMember(postID int64, kind models.InteractionKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membership[kind][postID]
}

// MembershipFor возвращает флаги зрителя для поста одним снимком
func (m *MutationCoordinator) MembershipFor(postID int64) (liked, bookmarked, reposted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membership[models.InteractionLike][postID],
		m.membership[models.InteractionBookmark][postID],
		m.membership[models.InteractionRepost][postID]
}

// Toggle переключает реакцию: локальное состояние меняется немедленно,
// сетевая сверка уходит в фон
func (m *MutationCoordinator) Toggle(ctx context.Context, postID int64, kind models.InteractionKind) {
	key := mutationKey{postID, kind}

	m.mu.Lock()
	current := m.membership[kind][postID]
	desired := !current
	m.membership[kind][postID] = desired

	if p, ok := m.pending[key]; ok {
		// операция уже в полете - только обновляем целевое состояние
		p.DesiredState = desired
		m.mu.Unlock()
		m.applyDelta(postID, kind, desired)
		return
	}

	p := &PendingMutation{
		PostID:       postID,
		Kind:         kind,
		DesiredState: desired,
		PriorState:   current,
		Confirmed:    current,
		Generation:   m.generation,
	}
	m.pending[key] = p
	m.mu.Unlock()

	m.applyDelta(postID, kind, desired)
	go m.reconcile(ctx, key)
}

func (m *MutationCoordinator) applyDelta(postID int64, kind models.InteractionKind, member bool) {
	if m.adjustCounter == nil {
		return
	}
	if member {
		m.adjustCounter(postID, kind, +1)
	} else {
		m.adjustCounter(postID, kind, -1)
	}
}

// reconcile доводит хранилище до последнего запрошенного состояния.
// Выполняется в одной горутине на ключ; цикл нужен, потому что desired
// мог измениться, пока операция была в полете.
func (m *MutationCoordinator) reconcile(ctx context.Context, key mutationKey) {
	for {
		m.mu.Lock()
		p, ok := m.pending[key]
		if !ok {
			m.mu.Unlock()
			return
		}
		if p.DesiredState == p.Confirmed {
			// хранилище уже в нужном состоянии
			delete(m.pending, key)
			m.mu.Unlock()
			return
		}
		desired := p.DesiredState
		m.mu.Unlock()

		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		var err error
		if desired {
			err = m.store.InsertInteraction(opCtx, m.viewerID, key.postID, key.kind)
		} else {
			err = m.store.DeleteInteraction(opCtx, m.viewerID, key.postID, key.kind)
		}
		cancel()

		if err == nil || err == ErrAlreadyApplied {
			// идемпотентный конфликт = успех, отката нет
			m.mu.Lock()
			p.Confirmed = desired
			m.mu.Unlock()
			continue
		}

		m.rollback(key, err)
		return
	}
}

// rollback возвращает членство и счетчик к состоянию до мутации.
// Пользовательских диалогов нет - только лог и счетчик откатов,
// по порогу которого сессия инициирует полный resync.
func (m *MutationCoordinator) rollback(key mutationKey, cause error) {
	m.mu.Lock()
	p, ok := m.pending[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, key)
	localNow := m.membership[key.kind][key.postID]
	m.membership[key.kind][key.postID] = p.PriorState
	m.rollbacks++
	total := m.rollbacks
	m.mu.Unlock()

	log.Printf("ERROR: optimistic %s on post %d rolled back: %v", key.kind, key.postID, cause)
	optimisticRollbacksTotal.WithLabelValues(string(key.kind)).Inc()

	if localNow != p.PriorState {
		m.applyDelta(key.postID, key.kind, p.PriorState)
	}
	if m.onRollback != nil {
		m.onRollback(total)
	}
}

// Rollbacks возвращает накопленное число откатов
func (m *MutationCoordinator) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// ResetAfterResync сбрасывает счетчик откатов и забывает членство -
// оно будет заново засеяно из хранилища
func (m *MutationCoordinator) ResetAfterResync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks = 0
	m.generation++
	m.membership = newMembershipSets()
}

// PendingCount - количество незавершенных мутаций (для snapshot/отладки)
func (m *MutationCoordinator) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
