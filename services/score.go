package services

import (
	"math"
	"time"

	"pulse/models"
)

// Чистые scoring-функции: безопасны и на клиенте, и на сервере,
// никакого I/O. Невалидные входы зажимаются в допустимый диапазон,
// а не приводят к ошибке - это эвристики, а не критичная логика.

// MomentumTierInfo - фиксированные пороги тиров по композитному score 0..100.
// Пороги заданы по score, а не по сырому streak.
type MomentumTierInfo struct {
	Threshold int
	Name      string
	Color     string
}

var momentumTiers = []MomentumTierInfo{
	{0, "cold", "#9ca3af"},
	{15, "warming", "#60a5fa"},
	{35, "building", "#34d399"},
	{60, "on-fire", "#f59e0b"},
	{85, "unstoppable", "#ef4444"},
}

// dateOf обрезает время до календарной даты в UTC
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween возвращает разницу в целых календарных днях (today - from)
func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}

// CanCheckIn - false только если последний чек-ин был сегодня
func CanCheckIn(lastCheckIn *time.Time, today time.Time) bool {
	if lastCheckIn == nil {
		return true
	}
	return daysBetween(*lastCheckIn, today) != 0
}

// CalculateNewStreak считает новое значение серии.
// Разрыв ровно в 1 день продолжает серию, разрыв 0 - идемпотентный no-op
// (вызывающий не должен начислять награду повторно), все остальное - сброс в 1.
func CalculateNewStreak(currentStreak int, lastCheckIn *time.Time, today time.Time) int {
	if lastCheckIn == nil {
		return 1
	}
	gap := daysBetween(*lastCheckIn, today)
	switch {
	case gap == 0:
		return currentStreak
	case gap == 1:
		return currentStreak + 1
	default:
		// разрыв больше суток или дата из будущего
		return 1
	}
}

// MomentumTier считает композитный score 0..100 из серии и недельной
// дисциплины и выбирает тир: максимальный порог, не превышающий score.
func MomentumTier(streak int, weeklyCompletionPct float64) models.MomentumScore {
	s := float64(streak)
	if s < 0 {
		s = 0
	}
	if s > 30 {
		s = 30
	}
	w := weeklyCompletionPct
	if w < 0 {
		w = 0
	}
	if w > 100 {
		w = 100
	}

	score := int(math.Round(s/30*40 + w/100*60))

	tier := momentumTiers[0]
	for _, t := range momentumTiers {
		if score >= t.Threshold {
			tier = t
		}
	}

	direction := "steady"
	if w >= 60 {
		direction = "up"
	} else if w < 25 && streak == 0 {
		direction = "down"
	}

	return models.MomentumScore{
		Score:     score,
		Tier:      tier.Name,
		Color:     tier.Color,
		Direction: direction,
	}
}

// LevelFromXP - уровень по кривой level = floor(sqrt(xp/50))
func LevelFromXP(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(math.Sqrt(float64(xp) / 50))
}

// XPForLevel - XP, необходимый для достижения уровня
func XPForLevel(level int) int64 {
	if level < 0 {
		level = 0
	}
	return int64(level) * int64(level) * 50
}

// LevelProgress - доля прогресса внутри текущего уровня, зажатая в [0,1]
func LevelProgress(xp int64) float64 {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	floor := XPForLevel(level)
	ceil := XPForLevel(level + 1)
	if ceil == floor {
		return 0
	}
	progress := float64(xp-floor) / float64(ceil-floor)
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}

// DailyXPGrant - сколько XP реально начислить с учетом дневного лимита.
// "Сколько уже начислено сегодня" вызывающий берет из журнала xp_grants,
// эта функция только зажимает значение.
func DailyXPGrant(requestedAmount, alreadyGrantedToday, dailyCap int64) int64 {
	remaining := dailyCap - alreadyGrantedToday
	if remaining < 0 {
		remaining = 0
	}
	if requestedAmount < 0 {
		requestedAmount = 0
	}
	if requestedAmount < remaining {
		return requestedAmount
	}
	return remaining
}
