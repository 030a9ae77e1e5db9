package models

import "time"

type InteractionKind string

const (
	InteractionLike     InteractionKind = "like"
	InteractionBookmark InteractionKind = "bookmark"
	InteractionRepost   InteractionKind = "repost"
)

// Interaction - реакция пользователя на пост. Уникальность по (user_id, post_id, kind),
// повторная вставка - идемпотентный конфликт, а не ошибка.
type Interaction struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"index:interaction_key_idx,unique" json:"user_id"`
	PostID    int64           `gorm:"index:interaction_key_idx,unique;index" json:"post_id"`
	Kind      InteractionKind `gorm:"size:20;index:interaction_key_idx,unique" json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

func (Interaction) TableName() string {
	return "interactions"
}

// PostView - дедупликация просмотров делается на уровне сессии,
// сюда пишется не больше одной строки за сессию
type PostView struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index" json:"user_id"`
	PostID    int64     `gorm:"index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostView) TableName() string {
	return "post_views"
}
