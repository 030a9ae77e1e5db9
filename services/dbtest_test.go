package services

import (
	"testing"
	"time"

	"pulse/db"
	"pulse/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
)

// setupTestDB поднимает общую in-memory SQLite для тестов пакета
func setupTestDB(t *testing.T) {
	t.Helper()
	if db.ORM == nil {
		require.NoError(t, db.ConnectTestDB())
	}
}

func createTestUser(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{
		Nickname:  gofakeit.Username() + gofakeit.DigitN(8),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.ORM.Create(user).Error)
	return user
}

func createTestPost(t *testing.T, authorID int64) *models.Post {
	t.Helper()
	post := &models.Post{
		AuthorID:   authorID,
		Content:    gofakeit.Sentence(6),
		Visibility: models.VisibilityPublic,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.ORM.Create(post).Error)
	return post
}
