package analysis

const (
	baseStrength   = 0.5
	baseConfidence = 0.5

	strengthPerPattern   = 0.1
	confidencePerPattern = 0.1
	trendConfidenceBonus = 0.2

	BuyThreshold  = 0.7
	SellThreshold = 0.3
)

type SignalScorer struct{}

func NewSignalScorer() *SignalScorer {
	return &SignalScorer{}
}

func (s *SignalScorer) Score(bundle PatternBundle) SignalResult {
	strength := s.Strength(bundle)
	return SignalResult{
		Signal:     DetermineSignal(strength),
		Strength:   strength,
		Confidence: s.Confidence(bundle),
	}
}

// Strength grows with every pattern that confirms the trend
func (s *SignalScorer) Strength(bundle PatternBundle) float64 {
	confirming := 0
	for _, p := range bundle.Patterns {
		if confirmsTrend(bundle.Trend, p) {
			confirming++
		}
	}
	return clamp(baseStrength+float64(confirming)*strengthPerPattern, 0, 1)
}

func (s *SignalScorer) Confidence(bundle PatternBundle) float64 {
	confidence := baseConfidence + float64(len(bundle.Patterns))*confidencePerPattern
	if bundle.Trend != TrendNeutral {
		confidence += trendConfidenceBonus
	}
	return clamp(confidence, 0, 1)
}

// DetermineSignal maps strength alone onto a signal
func DetermineSignal(strength float64) TradingSignal {
	if strength > BuyThreshold {
		return SignalBuy
	} else if strength < SellThreshold {
		return SignalSell
	}
	return SignalHold
}

func confirmsTrend(trend Trend, p Pattern) bool {
	switch trend {
	case TrendUp:
		return p == PatternBullishCrossover || p == PatternOversold
	case TrendDown:
		return p == PatternBearishCrossover || p == PatternOverbought
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
