package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulse/db"
	"pulse/models"

	"gorm.io/gorm"
)

// FollowService - направленный граф подписок (без подтверждения,
// в отличие от дружбы). Подписка определяет таб following и предикат
// realtime-трекера.
type FollowService struct{}

func NewFollowService() *FollowService {
	return &FollowService{}
}

// Follow подписывает userID на targetID. Повторная подписка -
// идемпотентный успех.
func (fs *FollowService) Follow(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return fmt.Errorf("cannot follow yourself")
	}

	// Проверяем, что пользователи существуют
	var userCount int64
	err := db.GetReadOnlyDB(ctx).Model(&models.User{}).Where("id IN (?)", []int64{userID, targetID}).Count(&userCount).Error
	if err != nil {
		return fmt.Errorf("error checking users: %w", err)
	}
	if userCount != 2 {
		return fmt.Errorf("one or both users do not exist")
	}

	follow := &models.Follow{
		FollowerID: userID,
		FolloweeID: targetID,
		CreatedAt:  time.Now(),
	}
	err = db.GetWriteDB(ctx).Create(follow).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create follow: %w", err)
	}
	return nil
}

// Unfollow снимает подписку. Отсутствие подписки - тоже успех.
func (fs *FollowService) Unfollow(ctx context.Context, userID, targetID int64) error {
	err := db.GetWriteDB(ctx).Where(
		"follower_id = ? AND followee_id = ?", userID, targetID,
	).Delete(&models.Follow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	return nil
}

// GetFollowees возвращает пользователей, на которых подписан userID
func (fs *FollowService) GetFollowees(ctx context.Context, userID int64) ([]models.User, error) {
	var followees []models.User
	err := db.GetReadOnlyDB(ctx).
		Table("users u").
		Joins("JOIN follows f ON f.followee_id = u.id").
		Where("f.follower_id = ?", userID).
		Select("u.id, u.nickname, u.created_at").
		Find(&followees).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get followees: %w", err)
	}
	return followees, nil
}

// GetFollowers возвращает подписчиков userID
func (fs *FollowService) GetFollowers(ctx context.Context, userID int64) ([]models.User, error) {
	var followers []models.User
	err := db.GetReadOnlyDB(ctx).
		Table("users u").
		Joins("JOIN follows f ON f.follower_id = u.id").
		Where("f.followee_id = ?", userID).
		Select("u.id, u.nickname, u.created_at").
		Find(&followers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	return followers, nil
}
