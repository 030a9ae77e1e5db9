package db

import (
	"fmt"

	"gorm.io/gorm"
)

// CreateVisibilityEnum создает тип ENUM visibility, если он не существует
func CreateVisibilityEnum(database *gorm.DB) error {
	createEnumSQL := `
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'visibility') THEN
			CREATE TYPE visibility AS ENUM ('public', 'followers', 'private');
		END IF;
	END
	$$;
	`
	if err := database.Exec(createEnumSQL).Error; err != nil {
		return fmt.Errorf("failed to create visibility enum: %w", err)
	}
	return nil
}

// CreateFeedIndexes создает индексы под запросы ленты.
// Порядок сортировки везде (created_at DESC, id ASC), чтобы offset-пагинация
// была стабильной при конкурентных вставках.
func CreateFeedIndexes(database *gorm.DB) error {
	indexes := []string{
		// глобальная лента по свежести
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at_id ON posts (created_at DESC, id ASC);`,
		// посты авторов из follow-набора
		`CREATE INDEX IF NOT EXISTS idx_posts_author_created_at ON posts (author_id, created_at DESC);`,
		// trending: вовлеченность за окно времени
		`CREATE INDEX IF NOT EXISTS idx_posts_engagement ON posts (created_at, like_count, repost_count);`,
		// журнал XP за день
		`CREATE INDEX IF NOT EXISTS idx_xp_grants_user_created ON xp_grants (user_id, created_at);`,
	}
	for _, sql := range indexes {
		if err := database.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create feed index: %w", err)
		}
	}
	return nil
}
