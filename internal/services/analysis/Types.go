package analysis

import (
	"TradeMate/internal/services/indicators"
)

// TradingSignal is the canonical recommendation type
type TradingSignal string

const (
	SignalBuy  TradingSignal = "BUY"
	SignalSell TradingSignal = "SELL"
	SignalHold TradingSignal = "HOLD"
)

func (s TradingSignal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

type Pattern string

const (
	PatternOversold         Pattern = "oversold"
	PatternOverbought       Pattern = "overbought"
	PatternBullishCrossover Pattern = "bullish_crossover"
	PatternBearishCrossover Pattern = "bearish_crossover"
	PatternBBUpperBreak     Pattern = "bb_upper_break"
	PatternBBLowerBreak     Pattern = "bb_lower_break"
)

// MarketObservation is a read-only market snapshot for one symbol.
// High, Low and MarketCap are optional.
type MarketObservation struct {
	Symbol    string
	Price     float64
	Volume    float64
	Change24h float64
	High      *float64
	Low       *float64
	MarketCap *float64
}

// PriceHistory holds closed bars preceding the observation, oldest first
type PriceHistory struct {
	Closes  []float64
	Volumes []float64
}

type PatternBundle struct {
	Patterns []Pattern `json:"patterns"`
	Trend    Trend     `json:"trend"`
}

type SignalResult struct {
	Signal     TradingSignal `json:"signal"`
	Strength   float64       `json:"strength"`
	Confidence float64       `json:"confidence"`
}

// PatternAnalysis is the bundle handed to the state encoder and the arbiter
type PatternAnalysis struct {
	Symbol       string                  `json:"symbol"`
	Price        float64                 `json:"price"`
	Change24h    float64                 `json:"change_24h"`
	Volume       float64                 `json:"volume"`
	Indicators   indicators.IndicatorSet `json:"indicators"`
	Patterns     PatternBundle           `json:"patterns"`
	Signals      SignalResult            `json:"signals"`
	Volatility   float64                 `json:"volatility"`
	VolumeChange float64                 `json:"volume_change"`
}
