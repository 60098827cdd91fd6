package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabasePath          string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	WorkerPoolSize        int
	RatesURL              string
	RateCacheTTLMinutes   int
	SeedAdminPassword     string
}

func Load() Config {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	poolSize, err := strconv.Atoi(getEnv("WORKER_POOL_SIZE", "4"))
	if err != nil || poolSize < 1 {
		poolSize = 4
	}
	rateTTL, err := strconv.Atoi(getEnv("RATE_CACHE_TTL_MINUTES", "60"))
	if err != nil || rateTTL < 1 {
		rateTTL = 60
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabasePath:          getEnv("DATABASE_PATH", "tezgahpos.db"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		WorkerPoolSize:        poolSize,
		RatesURL:              strings.TrimSpace(os.Getenv("RATES_URL")),
		RateCacheTTLMinutes:   rateTTL,
		SeedAdminPassword:     strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
