package indicators

import (
	"errors"
	"fmt"
)

const (
	DefaultRSIPeriod = 14
	NeutralRSI       = 50.0
	OverboughtLevel  = 70.0
	OversoldLevel    = 30.0
)

// ErrInsufficientData is returned when a series is too short for the requested window
var ErrInsufficientData = errors.New("insufficient data")

type RSIService struct{}

func NewRSIService() *RSIService {
	return &RSIService{}
}

// Calculate returns the RSI of the latest point using simple rolling means of
// gains and losses over the last `period` price changes.
func (s *RSIService) Calculate(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return NeutralRSI, fmt.Errorf("invalid RSI period: %d", period)
	}
	if len(prices) < period+1 {
		return NeutralRSI, ErrInsufficientData
	}

	window := prices[len(prices)-period-1:]

	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	return s.fromAverages(avgGain, avgLoss), nil
}

func (s *RSIService) fromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		// flat window has no direction
		if avgGain == 0 {
			return NeutralRSI
		}
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
