package indicators

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultBBandsPeriod     = 20
	DefaultBBandsDeviations = 2.0
)

type BBandsService struct{}

func NewBBandsService() *BBandsService {
	return &BBandsService{}
}

// CalculateOne calculates Bollinger Bands for the latest point using the
// sample standard deviation of the trailing window.
func (s *BBandsService) CalculateOne(prices []float64, period int, deviations float64) (upper, middle, lower float64, err error) {
	if period < 2 {
		return 0, 0, 0, fmt.Errorf("invalid Bollinger period: %d", period)
	}
	if !s.ValidatePeriod(prices, period) {
		return 0, 0, 0, ErrInsufficientData
	}

	window := prices[len(prices)-period:]
	middle, stdDev := stat.MeanStdDev(window, nil)

	upper = middle + (deviations * stdDev)
	lower = middle - (deviations * stdDev)

	return upper, middle, lower, nil
}

// ValidatePeriod checks if we have enough data
func (s *BBandsService) ValidatePeriod(prices []float64, period int) bool {
	return len(prices) >= period && period > 0
}
