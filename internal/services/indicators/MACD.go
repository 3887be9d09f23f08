package indicators

import "fmt"

const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

type MACDService struct {
	ema *EMAService
}

type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

func NewMACDService() *MACDService {
	return &MACDService{
		ema: NewEMAService(),
	}
}

// Calculate returns MACD line, signal line, and histogram
// Default periods: fast=12, slow=26, signal=9
func (s *MACDService) Calculate(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*MACDResult, error) {
	if err := s.ValidatePeriods(fastPeriod, slowPeriod, signalPeriod); err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ErrInsufficientData
	}

	fastEMA := s.ema.Calculate(prices, fastPeriod)
	slowEMA := s.ema.Calculate(prices, slowPeriod)

	macdLine := make([]float64, len(prices))
	for i := range prices {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := s.ema.Calculate(macdLine, signalPeriod)

	histogram := make([]float64, len(prices))
	for i := range prices {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: histogram,
	}, nil
}

// Latest returns the most recent MACD, signal and histogram values
func (r *MACDResult) Latest() (macd, signal, histogram float64) {
	last := len(r.MACD) - 1
	return r.MACD[last], r.Signal[last], r.Histogram[last]
}

func (s *MACDService) ValidatePeriods(fastPeriod, slowPeriod, signalPeriod int) error {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return fmt.Errorf("invalid MACD periods: fast=%d slow=%d signal=%d", fastPeriod, slowPeriod, signalPeriod)
	}
	return nil
}
