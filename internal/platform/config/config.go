package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultAddr          = ":8080"
	defaultSLATopic      = "concilia.sla-status"
	defaultSweepSchedule = "@every 5m"
	defaultWorkers       = 4
)

// Server captures process level configuration. Empty DatabaseURL, RedisURL
// or KafkaBrokers select the in-memory implementation of that concern.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	SLATopic      string
	JWTSigningKey string
	SweepSchedule string
	Workers       int
	EngineConfig  string
	LogLevel      string
	LogFormat     string
}

// LoadDotEnv loads a .env file into the environment when one exists.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getenv("CONCILIA_ADDR", defaultAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		SLATopic:      getenv("SLA_TOPIC", defaultSLATopic),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		SweepSchedule: getenv("SWEEP_SCHEDULE", defaultSweepSchedule),
		Workers:       defaultWorkers,
		EngineConfig:  os.Getenv("ENGINE_CONFIG"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
	}
	if raw := os.Getenv("RECONCILE_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Server{}, fmt.Errorf("RECONCILE_WORKERS must be a positive integer, got %q", raw)
		}
		cfg.Workers = n
	}
	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
