package database

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/models"
)

// Connect opens the postgres database, ensures the pgvector extension and
// index exist, and migrates the archive schema.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector;").Error; err != nil {
		return nil, errors.Wrap(err, "failed to create vector extension")
	}

	if err := db.AutoMigrate(&models.MediaRecord{}, &models.AudioRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	db.Exec("CREATE INDEX IF NOT EXISTS audio_embedding_idx ON audio_records USING hnsw (embedding vector_cosine_ops);")

	return db, nil
}
