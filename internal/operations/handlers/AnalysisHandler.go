package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"
	"TradeMate/internal/services/agent"
	"TradeMate/internal/services/policy"

	"github.com/rs/zerolog"
)

const (
	DefaultAnalysisInterval = 5 * time.Minute
	DefaultCheckpointEvery  = 50
)

// SignalGenerator produces a trade analysis for a symbol
type SignalGenerator interface {
	GenerateTradeSignal(ctx context.Context, symbol string) (*agent.TradeAnalysis, error)
}

type Trainer interface {
	Train(state []float64, action int, reward float64, nextState []float64) (policy.TrainStats, error)
}

type AnalysisStore interface {
	Create(analysis *models.Analysis) error
	FindPending(symbol string) (*models.Analysis, error)
	MarkRewarded(analysis *models.Analysis, reward float64) error
}

type Checkpointer interface {
	Save(ctx context.Context) error
}

type TrainingObserver interface {
	ObserveTraining(stats policy.TrainStats)
	ObserveReward(action string, reward float64)
}

// AnalysisHandler analyzes symbols on a fixed interval, persists every
// analysis and trains the policy on the return realized since the previous one.
type AnalysisHandler struct {
	generator    SignalGenerator
	trainer      Trainer
	store        AnalysisStore
	checkpointer Checkpointer
	observer     TrainingObserver
	interval     time.Duration
	every        int
	logger       zerolog.Logger

	mu    sync.Mutex
	steps int
}

func NewAnalysisHandler(
	generator SignalGenerator,
	trainer Trainer,
	store AnalysisStore,
	checkpointer Checkpointer,
	interval time.Duration,
	checkpointEvery int,
	logger zerolog.Logger,
) *AnalysisHandler {
	if interval <= 0 {
		interval = DefaultAnalysisInterval
	}
	if checkpointEvery <= 0 {
		checkpointEvery = DefaultCheckpointEvery
	}
	return &AnalysisHandler{
		generator:    generator,
		trainer:      trainer,
		store:        store,
		checkpointer: checkpointer,
		interval:     interval,
		every:        checkpointEvery,
		logger:       logging.Component(logger, "analysis_handler"),
	}
}

func (h *AnalysisHandler) SetObserver(observer TrainingObserver) {
	h.observer = observer
}

// Start blocks until ctx is done
func (h *AnalysisHandler) Start(ctx context.Context, symbols []string) {
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go h.analyzeSymbol(ctx, symbol, &wg)
	}

	wg.Wait()
}

func (h *AnalysisHandler) analyzeSymbol(ctx context.Context, symbol string, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Cycle(ctx, symbol); err != nil {
				h.logger.Error().Err(err).Str("symbol", symbol).Msg("analysis cycle failed")
			}
		}
	}
}

// Cycle runs one analysis for symbol, rewarding the previous analysis first
func (h *AnalysisHandler) Cycle(ctx context.Context, symbol string) error {
	trade, err := h.generator.GenerateTradeSignal(ctx, symbol)
	if err != nil {
		return err
	}

	if err := h.rewardPending(ctx, symbol, trade); err != nil {
		h.logger.Warn().Err(err).Str("symbol", symbol).Msg("could not reward previous analysis")
	}

	record, err := toModel(trade)
	if err != nil {
		return err
	}
	if err := h.store.Create(record); err != nil {
		return fmt.Errorf("failed to store analysis for %s: %w", symbol, err)
	}

	h.logger.Info().
		Str("symbol", symbol).
		Str("recommendation", string(trade.Recommendation)).
		Str("path", string(trade.Path)).
		Float64("price", trade.Price).
		Msg("analysis recorded")
	return nil
}

func (h *AnalysisHandler) rewardPending(ctx context.Context, symbol string, trade *agent.TradeAnalysis) error {
	pending, err := h.store.FindPending(symbol)
	if err != nil || pending == nil {
		return err
	}
	if pending.Price <= 0 {
		return h.store.MarkRewarded(pending, 0)
	}

	var state []float64
	if err := json.Unmarshal([]byte(pending.State), &state); err != nil {
		return fmt.Errorf("corrupt state for analysis %d: %w", pending.ID, err)
	}

	realized := (trade.Price - pending.Price) / pending.Price
	reward := agent.Reward(pending.Action, realized)

	stats, err := h.trainer.Train(state, pending.Action, reward, trade.State.Slice())
	if err != nil {
		return err
	}
	if err := h.store.MarkRewarded(pending, reward); err != nil {
		return err
	}

	if h.observer != nil {
		signal, _ := agent.ActionToSignal(pending.Action)
		h.observer.ObserveReward(string(signal), reward)
		h.observer.ObserveTraining(stats)
	}

	h.logger.Debug().
		Str("symbol", symbol).
		Float64("return", realized).
		Float64("reward", reward).
		Bool("updated", stats.Trained).
		Float64("epsilon", stats.Epsilon).
		Msg("policy trained")

	if stats.Trained {
		h.afterUpdate(ctx)
	}
	return nil
}

func (h *AnalysisHandler) afterUpdate(ctx context.Context) {
	h.mu.Lock()
	h.steps++
	due := h.steps%h.every == 0
	h.mu.Unlock()

	if due && h.checkpointer != nil {
		if err := h.checkpointer.Save(ctx); err != nil {
			h.logger.Error().Err(err).Msg("periodic checkpoint failed")
		}
	}
}

func toModel(trade *agent.TradeAnalysis) (*models.Analysis, error) {
	state, err := json.Marshal(trade.State.Slice())
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	indicators, err := json.Marshal(trade.Indicators)
	if err != nil {
		return nil, fmt.Errorf("failed to encode indicators: %w", err)
	}

	return &models.Analysis{
		Symbol:         trade.Symbol,
		Recommendation: string(trade.Recommendation),
		Path:           string(trade.Path),
		Action:         trade.Action,
		Confidence:     trade.Confidence,
		Price:          trade.Price,
		State:          string(state),
		Indicators:     string(indicators),
		AnalyzedAt:     trade.Timestamp,
	}, nil
}
