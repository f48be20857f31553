package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the callscribe server and worker.
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Diarize  DiarizeConfig
	Cache    CacheConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type WorkerConfig struct {
	MaxMemoryMB int
	MaxJobs     int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	UploadDir     string
	MaxFileSizeMB int
}

type PipelineConfig struct {
	FFmpegBin    string
	WhisperBin   string
	WhisperModel string
	EmbedderBin  string
}

type DiarizeConfig struct {
	MinSpeakers int
	MaxSpeakers int
	CacheSize   int
	CacheTTL    time.Duration
}

type CacheConfig struct {
	TranscriptionTTL time.Duration
	AnalysisTTL      time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CALLSCRIBE_PORT", 8080),
			Env:  envString("CALLSCRIBE_ENV", "development"),
		},
		Worker: WorkerConfig{
			MaxMemoryMB: envInt("WORKER_MAX_MEMORY_MB", 3500),
			MaxJobs:     envInt("WORKER_MAX_JOBS", 100),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			UploadDir:     envString("UPLOAD_DIR", "data/uploads"),
			MaxFileSizeMB: envInt("MAX_FILE_SIZE_MB", 200),
		},
		Pipeline: PipelineConfig{
			FFmpegBin:    envString("FFMPEG_BIN", "ffmpeg"),
			WhisperBin:   envString("WHISPER_BIN", "whisper"),
			WhisperModel: envString("WHISPER_MODEL", "medium"),
			EmbedderBin:  envString("EMBEDDER_BIN", "speaker-embed"),
		},
		Diarize: DiarizeConfig{
			MinSpeakers: envInt("DIARIZE_MIN_SPEAKERS", 2),
			MaxSpeakers: envInt("DIARIZE_MAX_SPEAKERS", 4),
			CacheSize:   envInt("DIARIZE_CACHE_SIZE", 100),
			CacheTTL:    envDuration("DIARIZE_CACHE_TTL", 24*time.Hour),
		},
		Cache: CacheConfig{
			TranscriptionTTL: envDuration("CACHE_TRANSCRIPTION_TTL", 24*time.Hour),
			AnalysisTTL:      envDuration("CACHE_ANALYSIS_TTL", 7*24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Worker.MaxMemoryMB <= 0 {
		return fmt.Errorf("WORKER_MAX_MEMORY_MB must be positive, got %d", c.Worker.MaxMemoryMB)
	}
	if c.Worker.MaxJobs <= 0 {
		return fmt.Errorf("WORKER_MAX_JOBS must be positive, got %d", c.Worker.MaxJobs)
	}

	if c.Diarize.MinSpeakers < 1 {
		return fmt.Errorf("DIARIZE_MIN_SPEAKERS must be at least 1, got %d", c.Diarize.MinSpeakers)
	}
	if c.Diarize.MaxSpeakers < c.Diarize.MinSpeakers {
		return fmt.Errorf("DIARIZE_MAX_SPEAKERS (%d) must be >= DIARIZE_MIN_SPEAKERS (%d)",
			c.Diarize.MaxSpeakers, c.Diarize.MinSpeakers)
	}
	if c.Diarize.CacheSize <= 0 {
		return fmt.Errorf("DIARIZE_CACHE_SIZE must be positive, got %d", c.Diarize.CacheSize)
	}

	if c.Storage.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", c.Storage.MaxFileSizeMB)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
