package config

import "time"

type Config struct {
	Exchange  ExchangeConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Sentiment SentimentConfig
	Redis     RedisConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Symbols   []string
}

type ExchangeConfig struct {
	APIKey          string
	SecretKey       string
	BaseURL         string
	HistoryInterval string
	HistoryLimit    int
	BackfillDays    int
	ClearPrices     bool
	RateLimit       float64
	RateBurst       int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type EngineConfig struct {
	AnalysisInterval time.Duration
	CheckpointPath   string
	CheckpointName   string
	CheckpointEvery  int
	LearningRate     float64
	Epsilon          float64
	Seed             int64

	// Offline training over stored prices before going live
	OfflineTraining bool
	OfflineDays     int
	OfflineEpochs   int
}

type SentimentConfig struct {
	URL      string
	Path     string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type MetricsConfig struct {
	Addr string
}
