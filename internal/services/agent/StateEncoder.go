package agent

import (
	"math"

	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/indicators"
	"TradeMate/internal/services/sentiment"
)

const StateSize = 10

// StateVector is the fixed-length policy input
type StateVector [StateSize]float64

func (v StateVector) Slice() []float64 {
	out := make([]float64, StateSize)
	copy(out, v[:])
	return out
}

// EncodeState flattens the pattern analysis and sentiment into the policy
// input. Missing or non-finite inputs take their neutral value.
func EncodeState(pa *analysis.PatternAnalysis, sent *sentiment.Result) StateVector {
	var state StateVector

	rsi := float64(indicators.NeutralRSI)
	if pa != nil && finite(pa.Indicators.RSI) {
		rsi = pa.Indicators.RSI
	}
	state[0] = rsi / 100

	if pa != nil {
		state[1] = neutral(pa.Indicators.MACD.Value)
		state[2] = neutral(pa.Volume / 1e6)
		state[3] = neutral(pa.Change24h / 100)
		state[4] = trendValue(pa.Patterns.Trend)
		state[7] = neutral(pa.Volatility)
		state[8] = neutral(pa.VolumeChange / 100)
	}

	if sent != nil {
		state[5] = sentiment.ParseLabel(string(sent.Label)).Polarity()
		state[6] = neutral(sent.Confidence)
		state[9] = float64(len(sent.Sources)) / 10
	}

	return state
}

func trendValue(trend analysis.Trend) float64 {
	switch trend {
	case analysis.TrendUp:
		return 1
	case analysis.TrendDown:
		return -1
	}
	return 0
}

func neutral(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
