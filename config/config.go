package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob the archive needs. Loaded once at startup and
// passed to constructors; no component reads viper directly.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	Worker   WorkerConfig
	Search   SearchConfig
	Context  ContextConfig
	Server   ServerConfig
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GeminiConfig struct {
	APIKey          string
	VisionModel     string
	EmbeddingModel  string
	EmbedDimensions int
	Timeout         time.Duration
}

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxTags     int
	MaxAttempts int
}

type SearchConfig struct {
	Threshold float32
	Limit     int
}

type ContextConfig struct {
	ImageLimit int
	VideoLimit int
}

type ServerConfig struct {
	Addr       string
	UploadsDir string
}

// Load reads the .env file (if present) and environment variables.
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_USER", "recall")
	viper.SetDefault("DB_NAME", "recall")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("GEMINI_VISION_MODEL", "gemini-2.0-flash")
	viper.SetDefault("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001")
	viper.SetDefault("EMBED_DIMENSIONS", 768)
	viper.SetDefault("GEMINI_TIMEOUT", "60s")

	viper.SetDefault("WORKER_INTERVAL", "15s")
	viper.SetDefault("WORKER_BATCH_SIZE", 10)
	viper.SetDefault("WORKER_MAX_TAGS", 20)
	viper.SetDefault("WORKER_MAX_ATTEMPTS", 5)

	viper.SetDefault("SEARCH_THRESHOLD", 0.7)
	viper.SetDefault("SEARCH_LIMIT", 50)

	viper.SetDefault("CONTEXT_IMAGE_LIMIT", 300)
	viper.SetDefault("CONTEXT_VIDEO_LIMIT", 200)

	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("UPLOADS_DIR", "./uploads")

	viper.SetDefault("LOG_LEVEL", "info")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: Error reading .env file:", err)
	}
	viper.AutomaticEnv()

	return &Config{
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Name:     viper.GetString("DB_NAME"),
			Port:     viper.GetString("DB_PORT"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Gemini: GeminiConfig{
			APIKey:          viper.GetString("GOOGLE_API_KEY"),
			VisionModel:     viper.GetString("GEMINI_VISION_MODEL"),
			EmbeddingModel:  viper.GetString("GEMINI_EMBEDDING_MODEL"),
			EmbedDimensions: viper.GetInt("EMBED_DIMENSIONS"),
			Timeout:         viper.GetDuration("GEMINI_TIMEOUT"),
		},
		Worker: WorkerConfig{
			Interval:    viper.GetDuration("WORKER_INTERVAL"),
			BatchSize:   viper.GetInt("WORKER_BATCH_SIZE"),
			MaxTags:     viper.GetInt("WORKER_MAX_TAGS"),
			MaxAttempts: viper.GetInt("WORKER_MAX_ATTEMPTS"),
		},
		Search: SearchConfig{
			Threshold: float32(viper.GetFloat64("SEARCH_THRESHOLD")),
			Limit:     viper.GetInt("SEARCH_LIMIT"),
		},
		Context: ContextConfig{
			ImageLimit: viper.GetInt("CONTEXT_IMAGE_LIMIT"),
			VideoLimit: viper.GetInt("CONTEXT_VIDEO_LIMIT"),
		},
		Server: ServerConfig{
			Addr:       viper.GetString("SERVER_ADDR"),
			UploadsDir: viper.GetString("UPLOADS_DIR"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}
}
