package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"
	"TradeMate/internal/services/agent"
	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/policy"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

type PriceSource interface {
	GetPricesByTimeFrame(symbol string, timeFrame string, start, end time.Time) ([]models.Price, error)
}

type Analyzer interface {
	Analyze(symbol string, obs *analysis.MarketObservation, history *analysis.PriceHistory, sent *sentiment.Result) (*agent.TradeAnalysis, error)
}

type Trainer interface {
	Train(state []float64, action int, reward float64, nextState []float64) (policy.TrainStats, error)
}

var timeFrameDurations = map[string]time.Duration{
	models.PriceTimeFrame5m:  5 * time.Minute,
	models.PriceTimeFrame15m: 15 * time.Minute,
	models.PriceTimeFrame1h:  time.Hour,
	models.PriceTimeFrame4h:  4 * time.Hour,
}

// Engine replays stored bars through the agent and trains the policy on the
// return of each decision over the following bar.
type Engine struct {
	priceRepo PriceSource
	agent     Analyzer
	trainer   Trainer
	config    Config
	logger    zerolog.Logger

	steps       []Step
	rewardCurve []RewardPoint
	cumulative  float64
	updates     int
	epsilon     float64
}

func NewEngine(priceRepo PriceSource, analyzer Analyzer, trainer Trainer, config Config, logger zerolog.Logger) *Engine {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Epochs <= 0 {
		config.Epochs = DefaultEpochs
	}
	if config.TimeFrame == "" {
		config.TimeFrame = models.PriceTimeFrame5m
	}
	return &Engine{
		priceRepo: priceRepo,
		agent:     analyzer,
		trainer:   trainer,
		config:    config,
		logger:    logging.Component(logger, "offline_trainer"),
	}
}

func (e *Engine) RunBacktest(ctx context.Context) (*BacktestResults, error) {
	e.logger.Info().
		Time("start", e.config.StartTime).
		Time("end", e.config.EndTime).
		Str("timeframe", e.config.TimeFrame).
		Int("epochs", e.config.Epochs).
		Msg("running offline training")

	series := make(map[string][]models.Price, len(e.config.Symbols))
	for _, symbol := range e.config.Symbols {
		prices, err := e.priceRepo.GetPricesByTimeFrame(symbol, e.config.TimeFrame, e.config.StartTime, e.config.EndTime)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s prices for %s: %w", e.config.TimeFrame, symbol, err)
		}
		sort.Slice(prices, func(i, j int) bool {
			return prices[i].OpenTime.Before(prices[j].OpenTime)
		})
		e.logger.Info().Str("symbol", symbol).Int("bars", len(prices)).Msg("loaded candles")
		series[symbol] = prices
	}

	for epoch := 0; epoch < e.config.Epochs; epoch++ {
		for _, symbol := range e.config.Symbols {
			if err := e.runSymbol(ctx, symbol, series[symbol]); err != nil {
				return nil, err
			}
		}
		e.logger.Info().Int("epoch", epoch+1).Int("updates", e.updates).Float64("epsilon", e.epsilon).Msg("epoch complete")
	}

	return e.calculateResults(), nil
}

func (e *Engine) runSymbol(ctx context.Context, symbol string, prices []models.Price) error {
	window := e.config.Window
	if len(prices) <= window+1 {
		e.logger.Warn().Str("symbol", symbol).Int("bars", len(prices)).Msg("not enough candles to replay")
		return nil
	}

	closes, volumes := models.Closes(prices)
	dayBars := e.barsPerDay()

	var prev *agent.TradeAnalysis
	var prevTime time.Time

	for i := window; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		obs := observationAt(symbol, closes, volumes, i, dayBars)
		history := &analysis.PriceHistory{
			Closes:  closes[i-window : i],
			Volumes: volumes[i-window : i],
		}

		trade, err := e.agent.Analyze(symbol, obs, history, nil)
		if err != nil {
			if errors.Is(err, agent.ErrNoAnalysis) {
				prev = nil
				continue
			}
			return err
		}

		if prev != nil {
			if err := e.reward(symbol, prevTime, prev, trade); err != nil {
				return err
			}
		}
		prev, prevTime = trade, prices[i].OpenTime
	}
	return nil
}

func (e *Engine) reward(symbol string, at time.Time, prev, next *agent.TradeAnalysis) error {
	var realized float64
	if prev.Price > 0 {
		realized = (next.Price - prev.Price) / prev.Price
	}
	reward := agent.Reward(prev.Action, realized)

	stats, err := e.trainer.Train(prev.State.Slice(), prev.Action, reward, next.State.Slice())
	if err != nil {
		return fmt.Errorf("training failed for %s at %s: %w", symbol, at.Format(time.RFC3339), err)
	}
	if stats.Trained {
		e.updates++
	}
	e.epsilon = stats.Epsilon

	e.cumulative += reward
	e.steps = append(e.steps, Step{
		Symbol:         symbol,
		Time:           at,
		Recommendation: string(prev.Recommendation),
		Path:           string(prev.Path),
		Price:          prev.Price,
		NextPrice:      next.Price,
		Reward:         reward,
		Trained:        stats.Trained,
	})
	e.rewardCurve = append(e.rewardCurve, RewardPoint{Timestamp: at, Cumulative: e.cumulative})
	return nil
}

func (e *Engine) barsPerDay() int {
	d, ok := timeFrameDurations[e.config.TimeFrame]
	if !ok {
		return 1
	}
	return int(24 * time.Hour / d)
}

// observationAt builds the snapshot the live ticker would have produced for bar i
func observationAt(symbol string, closes, volumes []float64, i, dayBars int) *analysis.MarketObservation {
	from := i - dayBars
	if from < 0 {
		from = 0
	}

	high, low := closes[from], closes[from]
	for j := from; j <= i; j++ {
		high = math.Max(high, closes[j])
		low = math.Min(low, closes[j])
	}

	// rolling 24h volume, excluding the reference bar
	var volume float64
	for j := min(from+1, i); j <= i; j++ {
		volume += volumes[j]
	}

	var change float64
	if closes[from] != 0 {
		change = (closes[i] - closes[from]) / closes[from] * 100
	}

	return &analysis.MarketObservation{
		Symbol:    symbol,
		Price:     closes[i],
		Volume:    volume,
		Change24h: change,
		High:      &high,
		Low:       &low,
	}
}

func (e *Engine) calculateResults() *BacktestResults {
	results := &BacktestResults{
		TotalSteps:   len(e.steps),
		PathCounts:   make(map[string]int),
		Signals:      make(map[string]int),
		Updates:      e.updates,
		FinalEpsilon: e.epsilon,
		TotalReward:  e.cumulative,
		RewardCurve:  e.rewardCurve,
	}
	if len(e.steps) == 0 {
		return results
	}

	rewards := make([]float64, len(e.steps))
	for i, step := range e.steps {
		rewards[i] = step.Reward
		results.PathCounts[step.Path]++
		results.Signals[step.Recommendation]++

		if step.Recommendation == string(analysis.SignalHold) {
			continue
		}
		results.Trades++
		if step.Reward > 0 {
			results.Hits++
		}
	}

	if results.Trades > 0 {
		results.HitRate = float64(results.Hits) / float64(results.Trades)
	}
	results.AvgReward = e.cumulative / float64(len(e.steps))
	results.MaxDrawdown = maxDrawdown(e.rewardCurve)
	results.SharpeRatio = sharpeRatio(rewards)

	if e.config.KeepSteps {
		results.Steps = e.steps
	}
	return results
}

// maxDrawdown is the largest fall of the cumulative reward from a prior peak
func maxDrawdown(curve []RewardPoint) float64 {
	var peak, drawdown float64
	for _, point := range curve {
		if point.Cumulative > peak {
			peak = point.Cumulative
		}
		drawdown = math.Max(drawdown, peak-point.Cumulative)
	}
	return drawdown
}

// sharpeRatio is the per-step mean reward over its sample standard deviation
func sharpeRatio(rewards []float64) float64 {
	if len(rewards) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(rewards, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}
