package db

import (
	"context"
	"fmt"
	"log"
	"pulse/config"
	"pulse/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func ConnectDB() (err error) {
	if ORM != nil {
		log.Println("ORM is already initialized")
		return nil
	}

	if config.AppConfig == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}
	conf := config.AppConfig
	if conf.Databases.Master.Host == "" {
		return fmt.Errorf("Master database configuration is missing")
	}

	// Мастер для записи
	masterDSN := dsnFromConfig(conf.Databases.Master)
	// Реплики для чтения
	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	database, err := gorm.Open(postgres.Open(masterDSN), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		// Уникальные конфликты должны приходить как gorm.ErrDuplicatedKey,
		// на этом построена идемпотентность реакций
		TranslateError: true,
	})
	if err != nil {
		return err
	}

	if len(replicaDSNs) > 0 {
		err = database.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return
		}
	}

	if err = migrate(database); err != nil {
		return err
	}

	ORM = database
	return nil
}

// ConnectTestDB поднимает in-memory SQLite для юнит-тестов пакетов
func ConnectTestDB() error {
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open test database: %w", err)
	}
	if err := autoMigrate(database); err != nil {
		return err
	}
	ORM = database
	return nil
}

func ResetTestDB() {
	ORM = nil
}

func migrate(database *gorm.DB) error {
	if err := CreateVisibilityEnum(database); err != nil {
		return err
	}
	if err := autoMigrate(database); err != nil {
		return err
	}
	return CreateFeedIndexes(database)
}

func autoMigrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.User{}, &models.Migration{}, &models.UserTokens{}, &models.Follow{},
		&models.Post{}, &models.PostMedia{}, &models.Interaction{}, &models.PostView{},
		&models.UserGamificationState{}, &models.XpGrant{},
	)
}

// GetReadOnlyDB возвращает подключение для чтения (реплики)
func GetReadOnlyDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Read)
}

// GetWriteDB возвращает подключение для записи (мастер)
func GetWriteDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Write)
}
