package analysis

import (
	"TradeMate/internal/services/indicators"
)

var (
	bullishPatterns = map[Pattern]bool{
		PatternOversold:         true,
		PatternBullishCrossover: true,
		PatternBBLowerBreak:     true,
	}
	bearishPatterns = map[Pattern]bool{
		PatternOverbought:       true,
		PatternBearishCrossover: true,
		PatternBBUpperBreak:     true,
	}
)

type PatternAnalyzer struct {
	oversold   float64
	overbought float64
}

func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{
		oversold:   indicators.OversoldLevel,
		overbought: indicators.OverboughtLevel,
	}
}

// Analyze evaluates every rule against the latest price and indicators.
// Rules are independent; several may fire.
func (a *PatternAnalyzer) Analyze(price float64, set indicators.IndicatorSet) PatternBundle {
	patterns := make([]Pattern, 0, 3)

	if pattern, ok := a.checkRSI(set.RSI); ok {
		patterns = append(patterns, pattern)
	}
	if pattern, ok := a.checkMACD(set.MACD); ok {
		patterns = append(patterns, pattern)
	}
	if pattern, ok := a.checkBands(price, set.Bollinger); ok {
		patterns = append(patterns, pattern)
	}

	return PatternBundle{
		Patterns: patterns,
		Trend:    DetermineTrend(patterns),
	}
}

func (a *PatternAnalyzer) checkRSI(rsi float64) (Pattern, bool) {
	if rsi < a.oversold {
		return PatternOversold, true
	}
	if rsi > a.overbought {
		return PatternOverbought, true
	}
	return "", false
}

func (a *PatternAnalyzer) checkMACD(macd indicators.MACDValue) (Pattern, bool) {
	if macd.Histogram > 0 && macd.Value > macd.Signal {
		return PatternBullishCrossover, true
	}
	if macd.Histogram < 0 && macd.Value < macd.Signal {
		return PatternBearishCrossover, true
	}
	return "", false
}

func (a *PatternAnalyzer) checkBands(price float64, bands indicators.BollingerValue) (Pattern, bool) {
	// default record means the bands were not computed
	if bands.IsZero() {
		return "", false
	}
	if price > bands.Upper {
		return PatternBBUpperBreak, true
	}
	if price < bands.Lower {
		return PatternBBLowerBreak, true
	}
	return "", false
}

// DetermineTrend is a majority vote of bullish against bearish patterns
func DetermineTrend(patterns []Pattern) Trend {
	var bullish, bearish int
	for _, p := range patterns {
		if bullishPatterns[p] {
			bullish++
		}
		if bearishPatterns[p] {
			bearish++
		}
	}

	switch {
	case bullish > bearish:
		return TrendUp
	case bearish > bullish:
		return TrendDown
	}
	return TrendNeutral
}
