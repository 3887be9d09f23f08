package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
)

// ErrNoAnalysis is returned when no pattern analysis can be produced for a symbol
var ErrNoAnalysis = errors.New("no analysis available")

var ErrNoMarketData = errors.New("no market data source configured")

// MarketDataSource supplies the latest observation and the bars preceding it
type MarketDataSource interface {
	GetMarketObservation(ctx context.Context, symbol string) (*analysis.MarketObservation, error)
	HistorySource
}

// HistorySource supplies closed bars preceding the current observation
type HistorySource interface {
	GetPriceHistory(ctx context.Context, symbol string) (*analysis.PriceHistory, error)
}

// Observer receives decision outcomes, e.g. for metrics
type Observer interface {
	ObserveDecision(path string, signal string)
	ObserveFallback(reason string)
	ObserveAnalysis(symbol string, elapsed time.Duration)
}

// TradeAnalysis is the final, immutable recommendation for a symbol
type TradeAnalysis struct {
	Timestamp      time.Time              `json:"timestamp"`
	Symbol         string                 `json:"symbol"`
	Recommendation analysis.TradingSignal `json:"recommendation"`
	Confidence     float64                `json:"confidence"`
	Indicators     []string               `json:"indicators"`
	Path           DecisionPath           `json:"path"`
	Action         int                    `json:"action"`
	Price          float64                `json:"price"`
	State          StateVector            `json:"state"`
}

// MarketReport is the full result of a market analysis run
type MarketReport struct {
	Pattern   *analysis.PatternAnalysis
	Sentiment sentiment.Result
	Trade     *TradeAnalysis
}

type Agent struct {
	analyzer  *analysis.Analyzer
	arbiter   *Arbiter
	market    MarketDataSource
	fallback  HistorySource
	sentiment sentiment.Source
	observer  Observer
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Agent)

func WithMarketData(source MarketDataSource) Option {
	return func(a *Agent) { a.market = source }
}

// WithHistoryFallback serves history when the market data source cannot
func WithHistoryFallback(source HistorySource) Option {
	return func(a *Agent) { a.fallback = source }
}

func WithSentiment(source sentiment.Source) Option {
	return func(a *Agent) { a.sentiment = source }
}

func WithObserver(observer Observer) Option {
	return func(a *Agent) { a.observer = observer }
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

func New(analyzer *analysis.Analyzer, predictor ActionPredictor, logger zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		analyzer:  analyzer,
		arbiter:   NewArbiter(predictor, logger),
		sentiment: sentiment.NeutralSource{},
		now:       time.Now,
		logger:    logging.Component(logger, "agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces a complete TradeAnalysis for one observation, or ErrNoAnalysis
func (a *Agent) Analyze(symbol string, obs *analysis.MarketObservation, history *analysis.PriceHistory, sent *sentiment.Result) (*TradeAnalysis, error) {
	trade, _, err := a.analyze(symbol, obs, history, sent)
	return trade, err
}

func (a *Agent) analyze(symbol string, obs *analysis.MarketObservation, history *analysis.PriceHistory, sent *sentiment.Result) (*TradeAnalysis, *analysis.PatternAnalysis, error) {
	start := time.Now()

	pattern, err := a.analyzer.AnalyzePattern(obs, history)
	if err != nil {
		a.logger.Error().Err(err).Str("symbol", symbol).Msg("pattern analysis failed")
		return nil, nil, fmt.Errorf("%w for %s: %v", ErrNoAnalysis, symbol, err)
	}

	result := sentiment.NeutralResult()
	if sent != nil {
		result = *sent
	}

	decision, state := a.arbiter.Decide(pattern, &result)
	recommendation := decision.Signal()

	trade := &TradeAnalysis{
		Timestamp:      a.now().UTC(),
		Symbol:         symbol,
		Recommendation: recommendation,
		Confidence:     clampUnit(result.Confidence),
		Indicators:     ActiveIndicators(pattern),
		Path:           decision.Path(),
		Action:         SignalToAction(recommendation),
		Price:          pattern.Price,
		State:          state,
	}

	if a.observer != nil {
		a.observer.ObserveDecision(string(trade.Path), string(trade.Recommendation))
		if rule, ok := decision.(RuleDecision); ok {
			a.observer.ObserveFallback(string(rule.Reason))
		}
		a.observer.ObserveAnalysis(symbol, time.Since(start))
	}

	a.logger.Info().
		Str("symbol", symbol).
		Str("recommendation", string(trade.Recommendation)).
		Str("path", string(trade.Path)).
		Float64("confidence", trade.Confidence).
		Msg("trade analysis complete")

	return trade, pattern, nil
}

// AnalyzeSentiment aggregates every reading the sentiment source returns for symbol
func (a *Agent) AnalyzeSentiment(ctx context.Context, symbol string) (*sentiment.Analysis, error) {
	results, err := a.sentiment.Analyze(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed for %s: %w", symbol, err)
	}

	return &sentiment.Analysis{
		Symbol:    symbol,
		Result:    sentiment.Aggregate(results),
		Timestamp: a.now().UTC(),
	}, nil
}

// AnalyzeMarket fetches market data and sentiment, then runs the full analysis.
// Missing history or sentiment degrade to neutral inputs; a missing observation does not.
func (a *Agent) AnalyzeMarket(ctx context.Context, symbol string) (*MarketReport, error) {
	if a.market == nil {
		return nil, ErrNoMarketData
	}

	obs, err := a.market.GetMarketObservation(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrNoAnalysis, symbol, err)
	}

	history := a.priceHistory(ctx, symbol)

	result := sentiment.NeutralResult()
	if sent, err := a.AnalyzeSentiment(ctx, symbol); err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("sentiment unavailable, using neutral")
	} else {
		result = sent.Result
	}

	trade, pattern, err := a.analyze(symbol, obs, history, &result)
	if err != nil {
		return nil, err
	}

	return &MarketReport{
		Pattern:   pattern,
		Sentiment: result,
		Trade:     trade,
	}, nil
}

func (a *Agent) priceHistory(ctx context.Context, symbol string) *analysis.PriceHistory {
	history, err := a.market.GetPriceHistory(ctx, symbol)
	if err == nil {
		return history
	}
	if a.fallback != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("price history unavailable, using stored bars")
		if history, err = a.fallback.GetPriceHistory(ctx, symbol); err == nil {
			return history
		}
	}
	a.logger.Warn().Err(err).Str("symbol", symbol).Msg("price history unavailable, analyzing observation only")
	return nil
}

func (a *Agent) GenerateTradeSignal(ctx context.Context, symbol string) (*TradeAnalysis, error) {
	report, err := a.AnalyzeMarket(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return report.Trade, nil
}

// ActiveIndicators describes the indicators and patterns behind an analysis
func ActiveIndicators(pattern *analysis.PatternAnalysis) []string {
	var active []string
	if pattern != nil {
		set := pattern.Indicators
		active = append(active, fmt.Sprintf("RSI: %.2f", set.RSI))
		if set.MACD.Value != 0 {
			active = append(active, fmt.Sprintf("MACD: %.4f", set.MACD.Value))
		}
		if !set.Bollinger.IsZero() {
			active = append(active, fmt.Sprintf("BB: %.2f/%.2f/%.2f", set.Bollinger.Lower, set.Bollinger.Middle, set.Bollinger.Upper))
		}
		for _, p := range pattern.Patterns.Patterns {
			active = append(active, "Pattern: "+string(p))
		}
		if pattern.Patterns.Trend != analysis.TrendNeutral && pattern.Patterns.Trend != "" {
			active = append(active, "Trend: "+string(pattern.Patterns.Trend))
		}
	}

	if len(active) == 0 {
		return []string{"No significant indicators"}
	}
	return active
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
