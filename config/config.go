package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
		log.Warn().Msg(".env file not found, reading configuration from the environment")
	}

	cfg := &Config{
		Exchange: ExchangeConfig{
			APIKey:          os.Getenv("BINANCE_API_KEY"),
			SecretKey:       os.Getenv("BINANCE_SECRET_KEY"),
			BaseURL:         os.Getenv("BINANCE_BASE_URL"),
			HistoryInterval: envOr("HISTORY_INTERVAL", "5m"),
			HistoryLimit:    envInt("HISTORY_LIMIT", 100),
			BackfillDays:    envInt("BACKFILL_DAYS", 7),
			RateLimit:       envFloat("BINANCE_RATE_LIMIT", 10),
			RateBurst:       envInt("BINANCE_RATE_BURST", 20),
			ClearPrices:     envBool("CLEAR_PRICES", false),
		},
		Database: DatabaseConfig{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Engine: EngineConfig{
			AnalysisInterval: envDuration("ANALYSIS_INTERVAL", 5*time.Minute),
			CheckpointPath:   envOr("CHECKPOINT_PATH", "data/policy.json"),
			CheckpointName:   envOr("CHECKPOINT_NAME", "default"),
			CheckpointEvery:  envInt("CHECKPOINT_EVERY", 50),
			LearningRate:     envFloat("LEARNING_RATE", 0.001),
			Epsilon:          envFloat("EPSILON", 1.0),
			Seed:             int64(envInt("POLICY_SEED", 0)),
			OfflineTraining:  envBool("OFFLINE_TRAINING", false),
			OfflineDays:      envInt("OFFLINE_DAYS", 7),
			OfflineEpochs:    envInt("OFFLINE_EPOCHS", 1),
		},
		Sentiment: SentimentConfig{
			URL:      os.Getenv("SENTIMENT_URL"),
			Path:     envOr("SENTIMENT_PATH", "/classify"),
			APIKey:   os.Getenv("SENTIMENT_API_KEY"),
			Timeout:  envDuration("SENTIMENT_TIMEOUT", 10*time.Second),
			CacheTTL: envDuration("SENTIMENT_CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			Prefix:   envOr("REDIS_PREFIX", "trademate"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "console"),
			Output: os.Getenv("LOG_OUTPUT"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
		Symbols: getSymbols(),
	}

	if cfg.Engine.Epsilon < 0 || cfg.Engine.Epsilon > 1 {
		return nil, fmt.Errorf("EPSILON must be within [0, 1], got %v", cfg.Engine.Epsilon)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

// helper to get symbols
func getSymbols() []string {
	symbols := os.Getenv("TRADING_SYMBOLS")
	if symbols == "" {
		return []string{"BTCUSDT", "ETHUSDT"}
	}

	var out []string
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
