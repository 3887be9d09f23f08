package analysis

import (
	"errors"
	"fmt"
	"math"

	"TradeMate/internal/logging"
	"TradeMate/internal/services/indicators"

	"github.com/rs/zerolog"
)

// ErrInvalidObservation is returned when the observation cannot be analyzed at all
var ErrInvalidObservation = errors.New("invalid market observation")

// Analyzer runs the indicator, pattern and signal pipeline for one observation
type Analyzer struct {
	calculator *indicators.Calculator
	patterns   *PatternAnalyzer
	scorer     *SignalScorer
	volume     *VolumeAnalyzer
	logger     zerolog.Logger
}

func NewAnalyzer(calculator *indicators.Calculator, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		calculator: calculator,
		patterns:   NewPatternAnalyzer(),
		scorer:     NewSignalScorer(),
		volume:     NewVolumeAnalyzer(),
		logger:     logging.Component(logger, "analysis"),
	}
}

// AnalyzePattern builds the pattern analysis bundle. The observation price is
// appended to the history closes as the latest point of the series.
func (a *Analyzer) AnalyzePattern(obs *MarketObservation, history *PriceHistory) (*PatternAnalysis, error) {
	if obs == nil {
		return nil, fmt.Errorf("%w: missing observation", ErrInvalidObservation)
	}
	if !isFinite(obs.Price, obs.Volume, obs.Change24h) {
		return nil, fmt.Errorf("%w: non-finite values for %s", ErrInvalidObservation, obs.Symbol)
	}

	var closes, volumes []float64
	if history != nil {
		closes = append(closes, history.Closes...)
		volumes = history.Volumes
	}
	closes = append(closes, obs.Price)

	set := a.calculator.Calculate(closes)
	bundle := a.patterns.Analyze(obs.Price, set)
	signals := a.scorer.Score(bundle)

	result := &PatternAnalysis{
		Symbol:       obs.Symbol,
		Price:        obs.Price,
		Change24h:    obs.Change24h,
		Volume:       obs.Volume,
		Indicators:   set,
		Patterns:     bundle,
		Signals:      signals,
		Volatility:   a.volume.Volatility(closes),
		VolumeChange: a.volume.VolumeChange(volumes),
	}

	a.logger.Debug().
		Str("symbol", obs.Symbol).
		Float64("rsi", set.RSI).
		Float64("macd", set.MACD.Value).
		Str("trend", string(bundle.Trend)).
		Int("patterns", len(bundle.Patterns)).
		Msg("pattern analysis complete")

	return result, nil
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
