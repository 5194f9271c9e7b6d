package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Значения по умолчанию для таймингов движка верификации.
const (
	defaultAutoConfirmWindowHours  = 24
	defaultEscalationSLAHours      = 48
	defaultSweepIntervalSeconds    = 300
	defaultJobPollIntervalSeconds  = 15
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Тайминги машины состояний
	AutoConfirmWindow time.Duration
	EscalationSLA     time.Duration
	SweepInterval     time.Duration
	JobPollInterval   time.Duration

	// Cloudflare R2 для файлов доказательств
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	autoConfirmHours, err := intFromEnv("AUTO_CONFIRM_WINDOW_HOURS", defaultAutoConfirmWindowHours)
	if err != nil {
		return nil, err
	}
	escalationHours, err := intFromEnv("ESCALATION_SLA_HOURS", defaultEscalationSLAHours)
	if err != nil {
		return nil, err
	}
	sweepSeconds, err := intFromEnv("SWEEP_INTERVAL_SECONDS", defaultSweepIntervalSeconds)
	if err != nil {
		return nil, err
	}
	pollSeconds, err := intFromEnv("JOB_POLL_INTERVAL_SECONDS", defaultJobPollIntervalSeconds)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		AutoConfirmWindow: time.Duration(autoConfirmHours) * time.Hour,
		EscalationSLA:     time.Duration(escalationHours) * time.Hour,
		SweepInterval:     time.Duration(sweepSeconds) * time.Second,
		JobPollInterval:   time.Duration(pollSeconds) * time.Second,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s environment variable: %q", name, raw)
	}
	return value, nil
}
