package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed into constructors. Nothing in
// the service reads environment variables after Load returns.
type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	PrivateKeyPath string
	PublicKeyPath  string

	ExpSec              int // access token lifetime, seconds
	ExpRefreshDays      int // refresh token lifetime, days
	VerCodeExpSec       int // pending registration TTL, seconds
	MaxTriesEmailCode   int64
	LimitSecondsGetCode int

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		PostgresDSN:  getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=shop sslmode=disable"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: []string{getEnv("KAFKA_BROKER", "localhost:9092")},

		PrivateKeyPath: getEnv("PRIVATE_KEY_PATH", "certs/jwt-private.pem"),
		PublicKeyPath:  getEnv("PUBLIC_KEY_PATH", "certs/jwt-public.pem"),

		ExpSec:              getEnvInt("EXP_SEC", 900),
		ExpRefreshDays:      getEnvInt("EXP_REFRESH_DAYS", 30),
		VerCodeExpSec:       getEnvInt("VER_CODE_EXP_SEC", 300),
		MaxTriesEmailCode:   int64(getEnvInt("MAX_TRIES_EMAIL_CODE", 3)),
		LimitSecondsGetCode: getEnvInt("LIMIT_SECONDS_GET_CODE", 60),

		SMTPHost: getEnv("SMTP_HOST", "localhost"),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"exp_sec", cfg.ExpSec,
		"exp_refresh_days", cfg.ExpRefreshDays)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
