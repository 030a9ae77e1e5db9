package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"pulse/db"
	"pulse/models"

	"gorm.io/gorm"
)

const (
	XP_SOURCE_CHECK_IN     = "check_in"
	XP_SOURCE_POST_CREATED = "post_created"
	XP_SOURCE_TASK_DONE    = "task_completed"

	CHECK_IN_XP       = 10
	POST_CREATED_XP   = 25
	TASK_COMPLETED_XP = 15
)

// GamificationService - переходы состояния прогресса. Все переходы идут
// через чистые scoring-функции; лента сюда не пишет напрямую.
// Дневной лимит применяется ко всем источникам XP единообразно.
type GamificationService struct {
	cache    *FeedCache // nil - momentum не кешируется
	dailyCap int64
}

func NewGamificationService(cache *FeedCache, dailyCap int64) *GamificationService {
	if dailyCap <= 0 {
		dailyCap = 200
	}
	return &GamificationService{cache: cache, dailyCap: dailyCap}
}

func (gs *GamificationService) getOrCreateState(ctx context.Context, userID int64) (*models.UserGamificationState, error) {
	var state models.UserGamificationState
	err := db.GetWriteDB(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.UserGamificationState{UserID: userID, CreatedAt: time.Now()}
		if err := db.GetWriteDB(ctx).Create(&state).Error; err != nil {
			return nil, fmt.Errorf("failed to create gamification state: %w", err)
		}
		return &state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gamification state: %w", err)
	}
	return &state, nil
}

// CheckIn - ежедневная отметка. Повторный вызов в тот же день -
// идемпотентный no-op: серия не меняется, награда не начисляется.
func (gs *GamificationService) CheckIn(ctx context.Context, userID int64) (*models.UserGamificationState, bool, error) {
	state, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	today := time.Now()
	if !CanCheckIn(state.LastCheckInDate, today) {
		return state, false, nil
	}

	newStreak := CalculateNewStreak(state.Streak, state.LastCheckInDate, today)
	state.Streak = newStreak
	checkIn := today
	state.LastCheckInDate = &checkIn
	if newStreak == 1 {
		start := today
		state.StreakStartDate = &start
	}
	state.UpdatedAt = time.Now()

	if err := db.GetWriteDB(ctx).Save(state).Error; err != nil {
		return nil, false, fmt.Errorf("failed to save check-in: %w", err)
	}

	if _, err := gs.GrantXP(ctx, userID, XP_SOURCE_CHECK_IN, CHECK_IN_XP); err != nil {
		// серия уже засчитана, недоначисленный XP не валит чек-ин
		log.Printf("ERROR: check-in XP grant failed for user %d: %v", userID, err)
	}

	gs.invalidateMomentum(ctx, userID)

	// Состояние перечитываем: GrantXP мог поднять XP и уровень
	fresh, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return state, true, nil
	}
	return fresh, true, nil
}

// GrantXP начисляет XP с учетом дневного лимита по журналу xp_grants.
// Журнал - авторитетный источник "сколько уже начислено сегодня".
func (gs *GamificationService) GrantXP(ctx context.Context, userID int64, source string, amount int64) (int64, error) {
	startOfDay := time.Date(
		time.Now().UTC().Year(), time.Now().UTC().Month(), time.Now().UTC().Day(),
		0, 0, 0, 0, time.UTC,
	)

	var alreadyToday int64
	err := db.GetReadOnlyDB(ctx).Model(&models.XpGrant{}).
		Where("user_id = ? AND created_at >= ?", userID, startOfDay).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&alreadyToday).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum today's grants: %w", err)
	}

	granted := DailyXPGrant(amount, alreadyToday, gs.dailyCap)
	if granted == 0 {
		return 0, nil
	}

	grant := models.XpGrant{UserID: userID, Source: source, Amount: granted, CreatedAt: time.Now()}
	if err := db.GetWriteDB(ctx).Create(&grant).Error; err != nil {
		return 0, fmt.Errorf("failed to append xp grant: %w", err)
	}

	state, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return 0, err
	}
	state.XP += granted
	state.Level = LevelFromXP(state.XP)
	state.UpdatedAt = time.Now()
	if err := db.GetWriteDB(ctx).Save(state).Error; err != nil {
		return 0, fmt.Errorf("failed to apply xp grant: %w", err)
	}
	return granted, nil
}

// PostConfirmed начисляет XP за публикацию после подтверждения вставки
// хранилищем. Плейсхолдеры и откаты награды не получают.
func (gs *GamificationService) PostConfirmed(userID, postID int64) {
	if _, err := gs.GrantXP(context.Background(), userID, XP_SOURCE_POST_CREATED, POST_CREATED_XP); err != nil {
		log.Printf("ERROR: post creation XP grant failed for user %d (post %d): %v", userID, postID, err)
	}
}

// CompleteTask начисляет XP за выполненную задачу дня
func (gs *GamificationService) CompleteTask(ctx context.Context, userID int64) (int64, error) {
	granted, err := gs.GrantXP(ctx, userID, XP_SOURCE_TASK_DONE, TASK_COMPLETED_XP)
	if err != nil {
		return 0, err
	}
	gs.invalidateMomentum(ctx, userID)
	return granted, nil
}

// ResetProgress - единственный санкционированный сброс XP
// (отказ от цели/фокуса)
func (gs *GamificationService) ResetProgress(ctx context.Context, userID int64) error {
	state, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return err
	}
	state.XP = 0
	state.Level = 0
	state.Streak = 0
	state.StreakStartDate = nil
	state.LastCheckInDate = nil
	state.UpdatedAt = time.Now()
	if err := db.GetWriteDB(ctx).Save(state).Error; err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	gs.invalidateMomentum(ctx, userID)
	log.Printf("DEBUG: gamification progress reset for user %d", userID)
	return nil
}

// Momentum - производная оценка из серии и недельной дисциплины.
// Не хранится, пересчитывается по требованию с коротким кешем.
func (gs *GamificationService) Momentum(ctx context.Context, userID int64) (models.MomentumScore, error) {
	if gs.cache != nil {
		if data, err := gs.cache.GetMomentum(ctx, userID); err == nil {
			var cached models.MomentumScore
			if json.Unmarshal(data, &cached) == nil {
				return cached, nil
			}
		}
	}

	state, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return models.MomentumScore{}, err
	}

	weekly, err := gs.weeklyCompletionPct(ctx, userID)
	if err != nil {
		log.Printf("DEBUG: weekly completion query failed, using 0: %v", err)
		weekly = 0
	}

	score := MomentumTier(state.Streak, weekly)

	if gs.cache != nil {
		if data, err := json.Marshal(score); err == nil {
			gs.cache.CacheMomentum(ctx, userID, data)
		}
	}
	return score, nil
}

// weeklyCompletionPct - доля дней за последнюю неделю с чек-ином
func (gs *GamificationService) weeklyCompletionPct(ctx context.Context, userID int64) (float64, error) {
	weekAgo := time.Now().AddDate(0, 0, -7)
	var days int64
	err := db.GetReadOnlyDB(ctx).Model(&models.XpGrant{}).
		Where("user_id = ? AND source = ? AND created_at >= ?", userID, XP_SOURCE_CHECK_IN, weekAgo).
		Select("COUNT(DISTINCT DATE(created_at))").
		Scan(&days).Error
	if err != nil {
		return 0, err
	}
	return float64(days) / 7 * 100, nil
}

// Progress - прогресс уровня для UI
func (gs *GamificationService) Progress(ctx context.Context, userID int64) (*models.GamificationProgress, error) {
	state, err := gs.getOrCreateState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.GamificationProgress{
		XP:            state.XP,
		Level:         state.Level,
		NextLevelXP:   XPForLevel(state.Level + 1),
		LevelProgress: LevelProgress(state.XP),
		Streak:        state.Streak,
		CanCheckIn:    CanCheckIn(state.LastCheckInDate, time.Now()),
	}, nil
}

func (gs *GamificationService) invalidateMomentum(ctx context.Context, userID int64) {
	if gs.cache == nil || gs.cache.client == nil {
		return
	}
	key := fmt.Sprintf("%s%d", MOMENTUM_PREFIX, userID)
	gs.cache.client.Del(ctx, key)
}
