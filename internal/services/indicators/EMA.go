package indicators

// EMAService provides Exponential Moving Average calculations
type EMAService struct{}

// NewEMAService creates a new EMA service instance
func NewEMAService() *EMAService {
	return &EMAService{}
}

// Calculate computes the recursive EMA for the entire series.
// The first value seeds the average, so every index is populated.
func (s *EMAService) Calculate(values []float64, span int) []float64 {
	if !s.validateInputs(values, span) {
		return nil
	}

	ema := make([]float64, len(values))
	multiplier := s.getMultiplier(span)

	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = s.calculatePoint(values[i], ema[i-1], multiplier)
	}

	return ema
}

// Last returns the final EMA value of the series
func (s *EMAService) Last(values []float64, span int) (float64, bool) {
	ema := s.Calculate(values, span)
	if len(ema) == 0 {
		return 0, false
	}
	return ema[len(ema)-1], true
}

// Private helper methods

func (s *EMAService) validateInputs(values []float64, span int) bool {
	return len(values) > 0 && span > 0
}

func (s *EMAService) getMultiplier(span int) float64 {
	return 2.0 / float64(span+1)
}

func (s *EMAService) calculatePoint(value, prevEMA, multiplier float64) float64 {
	return (value-prevEMA)*multiplier + prevEMA
}
