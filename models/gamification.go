package models

import "time"

// UserGamificationState - прогресс пользователя. Меняется только через
// переходы, санкционированные scoring-слоем, лента сюда не пишет.
type UserGamificationState struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"uniqueIndex" json:"user_id"`
	XP              int64      `gorm:"default:0" json:"xp"`
	Level           int        `gorm:"default:0" json:"level"`
	Streak          int        `gorm:"default:0" json:"streak"`
	StreakStartDate *time.Time `json:"streak_start_date,omitempty"`
	LastCheckInDate *time.Time `json:"last_check_in_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (UserGamificationState) TableName() string {
	return "user_gamification_states"
}

// XpGrant - append-only журнал начислений XP. Дневной лимит считается
// по этому журналу, а не по мутируемому счетчику.
type XpGrant struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index:xp_grant_user_date_idx" json:"user_id"`
	Source    string    `gorm:"size:50" json:"source"` // "check_in", "post_created", "task_completed"
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `gorm:"index:xp_grant_user_date_idx" json:"created_at"`
}

func (XpGrant) TableName() string {
	return "xp_grants"
}

// MomentumScore - производное значение, не хранится
type MomentumScore struct {
	Score     int    `json:"score"` // 0..100
	Tier      string `json:"tier"`
	Color     string `json:"color"`
	Direction string `json:"direction"` // "up", "steady", "down"
}

// GamificationProgress - ответ API с прогрессом уровня
type GamificationProgress struct {
	XP            int64   `json:"xp"`
	Level         int     `json:"level"`
	NextLevelXP   int64   `json:"next_level_xp"`
	LevelProgress float64 `json:"level_progress"`
	Streak        int     `json:"streak"`
	CanCheckIn    bool    `json:"can_check_in"`
}
