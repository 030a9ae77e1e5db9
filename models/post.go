package models

import "time"

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// Post - модель поста. Само содержимое неизменяемо, меняются только счетчики,
// которые считаются на сервере и зеркалятся в памяти сессии для optimistic UI.
type Post struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID      int64       `gorm:"index" json:"author_id"`
	Content       string      `gorm:"type:text" json:"content"`
	Visibility    Visibility  `gorm:"type:visibility;default:public" json:"visibility"`
	LikeCount     int64       `gorm:"default:0" json:"like_count"`
	RepostCount   int64       `gorm:"default:0" json:"repost_count"`
	ReplyCount    int64       `gorm:"default:0" json:"reply_count"`
	BookmarkCount int64       `gorm:"default:0" json:"bookmark_count"`
	ViewCount     int64       `gorm:"default:0" json:"view_count"`
	Media         []PostMedia `gorm:"foreignKey:PostID" json:"media,omitempty"`
	CreatedAt     time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

// PostMedia - дескриптор медиа, который отдает внешний media store.
// Механика загрузки вне зоны ответственности сервиса.
type PostMedia struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID int64  `gorm:"index" json:"post_id"`
	URL    string `gorm:"size:512" json:"url"`
	Kind   string `gorm:"size:20" json:"kind"` // "image", "video"
	Order  int    `gorm:"column:media_order" json:"order"`
}

func (PostMedia) TableName() string {
	return "post_media"
}

// FeedItem - пост в загруженном окне сессии вместе с локальным состоянием зрителя
type FeedItem struct {
	Post       Post `json:"post"`
	Liked      bool `json:"liked"`
	Bookmarked bool `json:"bookmarked"`
	Reposted   bool `json:"reposted"`
	// Pending помечает пост-плейсхолдер, еще не подтвержденный хранилищем
	Pending bool `json:"pending,omitempty"`
}

// FeedSnapshot - ответ API для ленты: то, что видит UI-слой
type FeedSnapshot struct {
	Tab      string     `json:"tab"`
	State    string     `json:"state"`
	Items    []FeedItem `json:"items"`
	HasMore  bool       `json:"has_more"`
	NewCount int        `json:"new_count"`
}
