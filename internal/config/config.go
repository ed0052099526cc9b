package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	Port        string
	CORSOrigins []string
	IPRateLimit int

	// Storage
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Identity
	JWTSecret string
	JWTIssuer string
	AdminIDs  []int64

	// Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushConcurrency int
	PushTimeout     time.Duration
	PushTTL         int

	// Scheduling and quotas
	SweepSchedule      string
	ReminderRateLimit  int
	ReminderRateWindow time.Duration
	FiredRetention     time.Duration
}

// Load reads an optional .env file and then the NUDGE_* environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Port:        getenv("NUDGE_PORT", "8080"),
		CORSOrigins: getlist("NUDGE_CORS_ORIGINS"),
		IPRateLimit: getint("NUDGE_IP_RATE_LIMIT", 300),

		DBPath: getenv("NUDGE_DB_PATH", "nudge.db"),

		LogLevel:  getenv("NUDGE_LOG_LEVEL", "info"),
		LogFormat: getenv("NUDGE_LOG_FORMAT", "text"),

		JWTSecret: os.Getenv("NUDGE_JWT_SECRET"),
		JWTIssuer: os.Getenv("NUDGE_JWT_ISSUER"),

		VAPIDPublicKey:  os.Getenv("NUDGE_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("NUDGE_VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getenv("NUDGE_VAPID_SUBJECT", "mailto:admin@localhost"),
		PushConcurrency: getint("NUDGE_PUSH_CONCURRENCY", 8),
		PushTimeout:     getdur("NUDGE_PUSH_TIMEOUT", 5*time.Second),
		PushTTL:         getint("NUDGE_PUSH_TTL", 86400),

		SweepSchedule:      getenv("NUDGE_SWEEP_SCHEDULE", "@every 30s"),
		ReminderRateLimit:  getint("NUDGE_REMINDER_RATE_LIMIT", 5),
		ReminderRateWindow: getdur("NUDGE_REMINDER_RATE_WINDOW", time.Minute),
		FiredRetention:     getdur("NUDGE_FIRED_RETENTION", 30*24*time.Hour),
	}

	for _, s := range getlist("NUDGE_ADMIN_IDS") {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return Config{}, fmt.Errorf("NUDGE_ADMIN_IDS: invalid user id %q", s)
		}
		cfg.AdminIDs = append(cfg.AdminIDs, id)
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("NUDGE_JWT_SECRET is required")
	}
	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return Config{}, errors.New("NUDGE_VAPID_PUBLIC_KEY and NUDGE_VAPID_PRIVATE_KEY must be set together")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		slog.Warn("invalid integer, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
	}
	return def
}

// getlist splits a comma separated variable, dropping blanks.
func getlist(k string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
