package app

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables take precedence.
type Config struct {
	AppEnv   string
	HTTPAddr string

	CorpusDriver      string
	CorpusDSN         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	ImportWorkers         int
	ImportMaxUploadMB     int
	ImportRateLimitPerMin int
	CORSAllowedOrigins    []string
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:                envOrDefault("APP_ENV", "development"),
		HTTPAddr:              envOrDefault("HTTP_ADDR", ":8080"),
		CorpusDriver:          strings.ToLower(envOrDefault("CORPUS_DRIVER", "sqlite")),
		CorpusDSN:             os.Getenv("CORPUS_DSN"),
		DBMaxOpenConns:        intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:        intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:     intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		ImportWorkers:         intOrDefault("IMPORT_WORKERS", 4),
		ImportMaxUploadMB:     intOrDefault("IMPORT_MAX_UPLOAD_MB", 32),
		ImportRateLimitPerMin: intOrDefault("IMPORT_RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:    listOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func listOrDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
