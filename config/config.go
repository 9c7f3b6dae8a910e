package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	JWT    JWTConfig
	Model  ModelConfig
	Redis  RedisConfig
	CORS   CORSConfig
	Admin  AdminConfig
	Upload UploadConfig
}

type ServerConfig struct {
	Port int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type ModelConfig struct {
	URL        string
	APIKey     string
	TimeoutSec int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins string
}

type AdminConfig struct {
	Email    string
	Password string
}

type UploadConfig struct {
	MaxBytes int64
}

func LoadConfig() (*Config, error) {
	// Optional; real deployments set env vars directly.
	_ = godotenv.Load()

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 8)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	modelTimeout, err := getIntEnv("MODEL_TIMEOUT_SEC", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_TIMEOUT_SEC: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	uploadMax, err := getIntEnv("UPLOAD_MAX_BYTES", 5*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_BYTES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "pdm_dev_secret"),
			ExpiryHours: jwtExpiry,
		},
		Model: ModelConfig{
			URL:        getEnv("MODEL_URL", "http://localhost:5000/predict"),
			APIKey:     getEnv("MODEL_API_KEY", ""),
			TimeoutSec: modelTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@pdm.local"),
			Password: getEnv("ADMIN_PASSWORD", "admin1234"),
		},
		Upload: UploadConfig{
			MaxBytes: int64(uploadMax),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
