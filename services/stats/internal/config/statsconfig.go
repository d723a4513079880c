package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// StatsConfig holds the stats service settings. A zero CacheTTL disables the
// stats cache so every request recomputes from source rows.
type StatsConfig struct {
	JWTSecret      string
	GRPCAddr       string
	CacheTTL       time.Duration
	RedisURL       string
	RateLimitRPS   float64
	RateLimitBurst int
	HealthInterval time.Duration
	DatabaseURL    string
	NATSURL        string
}

func LoadStats() (StatsConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return StatsConfig{}, errors.New("JWT_SECRET is required")
	}
	cfg := StatsConfig{
		JWTSecret:      secret,
		GRPCAddr:       envString("GRPC_ADDR", ":9096"),
		CacheTTL:       envSeconds("STATS_CACHE_TTL_SEC"),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
		HealthInterval: envDuration("HEALTH_INTERVAL", 15*time.Second),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:        strings.TrimSpace(os.Getenv("NATS_URL")),
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envSeconds reads a number of seconds; anything but a positive integer is 0.
func envSeconds(key string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
