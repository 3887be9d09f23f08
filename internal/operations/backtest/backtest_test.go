package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"TradeMate/internal/models"
	"TradeMate/internal/services/agent"
	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/policy"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
)

type fakePrices struct {
	prices []models.Price
}

func (f *fakePrices) GetPricesByTimeFrame(symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	return f.prices, nil
}

// constantAgent always recommends the same action
type constantAgent struct {
	action  int
	failAt  float64
	history []int
}

func (a *constantAgent) Analyze(symbol string, obs *analysis.MarketObservation, history *analysis.PriceHistory, sent *sentiment.Result) (*agent.TradeAnalysis, error) {
	a.history = append(a.history, len(history.Closes))
	if obs.Price == a.failAt {
		return nil, agent.ErrNoAnalysis
	}
	signal, _ := agent.ActionToSignal(a.action)
	var state agent.StateVector
	state[0] = obs.Price
	return &agent.TradeAnalysis{
		Symbol:         symbol,
		Recommendation: signal,
		Path:           agent.PathRL,
		Action:         a.action,
		Price:          obs.Price,
		State:          state,
	}, nil
}

type countingTrainer struct {
	calls int
}

func (c *countingTrainer) Train(state []float64, action int, reward float64, next []float64) (policy.TrainStats, error) {
	c.calls++
	if next[0] <= state[0] {
		return policy.TrainStats{}, errors.New("next state out of order")
	}
	return policy.TrainStats{Trained: true, Epsilon: 0.5}, nil
}

func risingPrices(n int) []models.Price {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prices := make([]models.Price, n)
	// stored newest first to exercise sorting
	for i := 0; i < n; i++ {
		prices[n-1-i] = models.Price{
			Symbol:    "BTCUSDT",
			TimeFrame: models.PriceTimeFrame5m,
			OpenTime:  start.Add(time.Duration(i) * 5 * time.Minute),
			Close:     100 + float64(i),
			Volume:    10,
		}
	}
	return prices
}

func newTestEngine(prices []models.Price, a Analyzer, trainer Trainer) *Engine {
	config := NewConfig()
	config.Symbols = []string{"BTCUSDT"}
	config.Window = 10
	config.KeepSteps = true
	return NewEngine(&fakePrices{prices: prices}, a, trainer, config, zerolog.Nop())
}

func TestRunBacktestRewardsEachDecision(t *testing.T) {
	trainer := &countingTrainer{}
	a := &constantAgent{action: policy.ActionBuy}

	results, err := newTestEngine(risingPrices(30), a, trainer).RunBacktest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if results.TotalSteps != 19 {
		t.Errorf("Expected 19 rewarded steps, got %d", results.TotalSteps)
	}
	if trainer.calls != 19 || results.Updates != 19 {
		t.Errorf("Expected 19 training updates, got %d calls and %d updates", trainer.calls, results.Updates)
	}
	if results.HitRate != 1 || results.Hits != 19 {
		t.Errorf("Expected every BUY on a rising market to hit, got %d hits (%f)", results.Hits, results.HitRate)
	}
	if results.PathCounts["rl"] != 19 || results.Signals["BUY"] != 19 {
		t.Errorf("Unexpected counts: %v %v", results.PathCounts, results.Signals)
	}
	if results.MaxDrawdown != 0 {
		t.Errorf("Expected no drawdown, got %f", results.MaxDrawdown)
	}
	if results.FinalEpsilon != 0.5 {
		t.Errorf("Expected final epsilon 0.5, got %f", results.FinalEpsilon)
	}

	first := results.Steps[0]
	if math.Abs(first.Reward-1.0/110) > 1e-12 {
		t.Errorf("Expected first reward 1/110, got %f", first.Reward)
	}
	for _, n := range a.history {
		if n != 10 {
			t.Fatalf("Expected history window of 10 bars, got %d", n)
		}
	}
}

func TestRunBacktestHoldIsNotATrade(t *testing.T) {
	results, err := newTestEngine(risingPrices(20), &constantAgent{action: policy.ActionHold}, &countingTrainer{}).RunBacktest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if results.Trades != 0 || results.HitRate != 0 {
		t.Errorf("Expected no trades, got %d", results.Trades)
	}
	if results.TotalReward >= 0 {
		t.Errorf("Expected HOLD in a moving market to be penalized, got %f", results.TotalReward)
	}
	if results.MaxDrawdown <= 0 {
		t.Errorf("Expected a drawdown, got %f", results.MaxDrawdown)
	}
}

func TestRunBacktestSkipsUnanalyzableBars(t *testing.T) {
	trainer := &countingTrainer{}
	a := &constantAgent{action: policy.ActionSell, failAt: 115}

	results, err := newTestEngine(risingPrices(20), a, trainer).RunBacktest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// bars 10..19 analyzed, bar 15 fails: pairs 10-14 and 16-19
	if results.TotalSteps != 7 {
		t.Errorf("Expected 7 steps, got %d", results.TotalSteps)
	}
	if results.Hits != 0 {
		t.Errorf("Expected SELL on a rising market never to hit, got %d", results.Hits)
	}
}

func TestRunBacktestNotEnoughBars(t *testing.T) {
	results, err := newTestEngine(risingPrices(5), &constantAgent{}, &countingTrainer{}).RunBacktest(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if results.TotalSteps != 0 || results.SharpeRatio != 0 {
		t.Errorf("Expected empty results, got %+v", results)
	}
}

func TestObservationAt(t *testing.T) {
	closes := []float64{100, 110, 90, 120}
	volumes := []float64{1, 2, 3, 4}

	obs := observationAt("BTCUSDT", closes, volumes, 3, 3)
	if obs.Price != 120 || *obs.High != 120 || *obs.Low != 90 {
		t.Errorf("Unexpected observation: %+v", obs)
	}
	if obs.Change24h != 20 {
		t.Errorf("Expected change 20%%, got %f", obs.Change24h)
	}
	if obs.Volume != 9 {
		t.Errorf("Expected volume 9, got %f", obs.Volume)
	}
}
