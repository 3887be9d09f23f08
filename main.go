package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeMate/config"
	"TradeMate/internal/handlers"
	"TradeMate/internal/logging"
	"TradeMate/internal/metrics"
	"TradeMate/internal/models"
	"TradeMate/internal/operations/backtest"
	"TradeMate/internal/operations/binance"
	"TradeMate/internal/operations/checkpoint"
	analysisHandlers "TradeMate/internal/operations/handlers"
	"TradeMate/internal/operations/price"
	"TradeMate/internal/repositories"
	"TradeMate/internal/services/agent"
	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/indicators"
	"TradeMate/internal/services/policy"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	db := setupDatabase(cfg.Database)

	priceRepo := repositories.NewPriceRepository(db)
	analysisRepo := repositories.NewAnalysisRepository(db)
	checkpointRepo := repositories.NewCheckpointRepository(db)

	recorder := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Decision engine
	calculator := indicators.NewCalculator(appLogger)
	calculator.OnFailure = recorder.IndicatorFailed
	analyzer := analysis.NewAnalyzer(calculator, appLogger)

	policyConfig := policy.DefaultConfig()
	policyConfig.LearningRate = cfg.Engine.LearningRate
	policyConfig.Epsilon = cfg.Engine.Epsilon
	policyConfig.Seed = cfg.Engine.Seed
	dqn := policy.New(policyConfig, appLogger)

	checkpointer := checkpoint.New(dqn, checkpointRepo, cfg.Engine.CheckpointPath, cfg.Engine.CheckpointName, appLogger)
	checkpointer.OnFailure = recorder.CheckpointFailed
	restored, err := checkpointer.Restore(ctx)
	if err != nil {
		appLogger.Error().Err(err).Msg("failed to restore policy, starting fresh")
	} else if !restored {
		appLogger.Info().Msg("no policy checkpoint found, starting fresh")
	}
	recorder.SetEpsilon(dqn.Epsilon())

	binanceOpts := []binance.Option{
		binance.WithHistory(cfg.Exchange.HistoryInterval, cfg.Exchange.HistoryLimit),
		binance.WithRateLimit(cfg.Exchange.RateLimit, cfg.Exchange.RateBurst),
	}
	if cfg.Exchange.BaseURL != "" {
		binanceOpts = append(binanceOpts, binance.WithBaseURL(cfg.Exchange.BaseURL))
	}
	binanceClient := binance.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, appLogger, binanceOpts...)

	sentimentSource, closeSentiment := setupSentiment(cfg, appLogger)
	defer closeSentiment()

	tradeAgent := agent.New(analyzer, dqn, appLogger,
		agent.WithMarketData(binanceClient),
		agent.WithHistoryFallback(price.NewStoredHistory(priceRepo, cfg.Exchange.HistoryInterval, cfg.Exchange.HistoryLimit)),
		agent.WithSentiment(sentimentSource),
		agent.WithObserver(recorder),
	)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, recorder, appLogger)
	}

	// Price recording
	priceHandler := handlers.NewPriceHandler(binanceClient, priceRepo, cfg.Symbols, cfg.Exchange.BackfillDays, cfg.Exchange.ClearPrices, appLogger)
	priceHandler.OnRecorded(recorder.PricesRecorded)
	if err := priceHandler.Start(ctx); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to start price handler")
	}
	appLogger.Info().Strs("symbols", cfg.Symbols).Msg("price recording started")

	if cfg.Engine.OfflineTraining {
		runOfflineTraining(ctx, cfg, priceRepo, tradeAgent, dqn, checkpointer, appLogger)
		recorder.SetEpsilon(dqn.Epsilon())
	}

	// Online analysis and training
	analysisHandler := analysisHandlers.NewAnalysisHandler(
		tradeAgent,
		dqn,
		analysisRepo,
		checkpointer,
		cfg.Engine.AnalysisInterval,
		cfg.Engine.CheckpointEvery,
		appLogger,
	)
	analysisHandler.SetObserver(recorder)

	done := make(chan struct{})
	go func() {
		analysisHandler.Start(ctx, cfg.Symbols)
		close(done)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	appLogger.Info().Msg("shutting down")
	cancel()
	<-done

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := checkpointer.Save(saveCtx); err != nil {
		appLogger.Error().Err(err).Msg("failed to save policy on shutdown")
	}
	appLogger.Info().Msg("shutdown complete")
}

func setupDatabase(dbConfig config.DatabaseConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Price{}, &models.Analysis{}, &models.PolicyCheckpoint{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	return db
}

// setupSentiment returns the HTTP classifier, optionally behind redis, or a neutral source
func setupSentiment(cfg *config.Config, appLogger zerolog.Logger) (sentiment.Source, func()) {
	if cfg.Sentiment.URL == "" {
		appLogger.Warn().Msg("SENTIMENT_URL not set, sentiment is neutral")
		return sentiment.NeutralSource{}, func() {}
	}

	var source sentiment.Source = sentiment.NewHTTPSource(cfg.Sentiment.URL, cfg.Sentiment.Path, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout)
	if cfg.Redis.Addr == "" {
		return source, func() {}
	}

	cache, err := sentiment.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		appLogger.Error().Err(err).Msg("redis unavailable, sentiment is not cached")
		return source, func() {}
	}
	return sentiment.NewCachedSource(source, cache, cfg.Sentiment.CacheTTL, appLogger), func() { cache.Close() }
}

func serveMetrics(ctx context.Context, addr string, recorder *metrics.Recorder, appLogger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	appLogger.Info().Str("addr", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Error().Err(err).Msg("metrics server failed")
	}
}

func runOfflineTraining(ctx context.Context, cfg *config.Config, priceRepo *repositories.PriceRepository, tradeAgent *agent.Agent, dqn *policy.DQN, checkpointer *checkpoint.Checkpointer, appLogger zerolog.Logger) {
	backtestConfig := backtest.NewConfig()
	backtestConfig.Symbols = cfg.Symbols
	backtestConfig.TimeFrame = cfg.Exchange.HistoryInterval
	backtestConfig.Window = cfg.Exchange.HistoryLimit
	backtestConfig.Epochs = cfg.Engine.OfflineEpochs
	backtestConfig.StartTime = backtestConfig.EndTime.AddDate(0, 0, -cfg.Engine.OfflineDays)

	engine := backtest.NewEngine(priceRepo, tradeAgent, dqn, backtestConfig, appLogger)
	results, err := engine.RunBacktest(ctx)
	if err != nil {
		appLogger.Error().Err(err).Msg("offline training failed")
		return
	}

	appLogger.Info().
		Int("steps", results.TotalSteps).
		Int("trades", results.Trades).
		Float64("hit_rate", results.HitRate).
		Float64("avg_reward", results.AvgReward).
		Float64("max_drawdown", results.MaxDrawdown).
		Float64("sharpe", results.SharpeRatio).
		Int("updates", results.Updates).
		Float64("epsilon", results.FinalEpsilon).
		Interface("paths", results.PathCounts).
		Msg("offline training complete")

	if err := checkpointer.Save(ctx); err != nil {
		appLogger.Error().Err(err).Msg("failed to checkpoint after offline training")
	}
}
