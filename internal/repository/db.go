package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrOwnerMembership reports that a circle's owner membership could not be
	// written; the circle insert was rolled back with it.
	ErrOwnerMembership = errors.New("failed to insert owner membership")
)

// OpenPostgres 初始化 PostgreSQL 连接池，并在配置允许时自动迁移表结构
func OpenPostgres(cfg *config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates or updates every table the services use.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Circle{},
		&model.Membership{},
		&model.Post{},
		&model.Comment{},
		&model.Friendship{},
		&model.DirectMessage{},
		&model.MoodLog{},
		&model.JournalEntry{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// translate maps gorm sentinel errors onto the repository ones.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// validator is implemented by every model row.
type validator interface {
	Validate() error
}

func validateAll[T validator](rows []T) ([]T, error) {
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func validateOne[T validator](row T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, translate(err)
	}
	if err := row.Validate(); err != nil {
		var zero T
		return zero, err
	}
	return row, nil
}
