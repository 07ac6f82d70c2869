package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	SessionBackend string // db|redis
	RedisAddr      string
	RedisDB        int
	SessionTTL     time.Duration
	SessionSweep   time.Duration // 0 disables the expired-session sweep

	CORSOrigins []string

	EnableDevRoutes bool
}

func FromEnv() Config {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":3001"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		SessionBackend:  envOr("SESSION_BACKEND", "db"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		RedisDB:         envInt("REDIS_DB", 0),
		SessionTTL:      envDuration("SESSION_TTL", 7*24*time.Hour),
		SessionSweep:    envDuration("SESSION_SWEEP", 0),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),
		EnableDevRoutes: envBool("ENABLE_DEV_ROUTES", false),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
