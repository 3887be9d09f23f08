package indicators

import (
	"errors"
	"fmt"
	"math"

	"TradeMate/internal/logging"

	"github.com/rs/zerolog"
)

const (
	IndicatorRSI       = "RSI"
	IndicatorMACD      = "MACD"
	IndicatorBollinger = "BB"
)

var errNonFinite = errors.New("non-finite result")

type MACDValue struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IsZero reports whether the bands hold the default record, i.e. no band was computed
func (b BollingerValue) IsZero() bool {
	return b.Upper == 0 && b.Middle == 0 && b.Lower == 0
}

// IndicatorSet is an immutable snapshot of the indicators for one observation
type IndicatorSet struct {
	RSI       float64        `json:"rsi"`
	MACD      MACDValue      `json:"macd"`
	Bollinger BollingerValue `json:"bollinger"`
}

// DefaultIndicatorSet returns the neutral values used when nothing can be computed
func DefaultIndicatorSet() IndicatorSet {
	return IndicatorSet{RSI: NeutralRSI}
}

// Calculator computes every indicator independently; a failing indicator
// falls back to its default without affecting the others.
type Calculator struct {
	rsi    *RSIService
	macd   *MACDService
	bbands *BBandsService
	logger zerolog.Logger

	// OnFailure is called with the indicator name whenever a computation fails
	OnFailure func(indicator string)
}

func NewCalculator(logger zerolog.Logger) *Calculator {
	return &Calculator{
		rsi:    NewRSIService(),
		macd:   NewMACDService(),
		bbands: NewBBandsService(),
		logger: logging.Component(logger, "indicators"),
	}
}

func (c *Calculator) Calculate(prices []float64) IndicatorSet {
	set := DefaultIndicatorSet()

	c.compute(IndicatorRSI, func() error {
		value, err := c.rsi.Calculate(prices, DefaultRSIPeriod)
		if err != nil {
			return err
		}
		if !isFinite(value) {
			return errNonFinite
		}
		set.RSI = value
		return nil
	})

	c.compute(IndicatorMACD, func() error {
		result, err := c.macd.Calculate(prices, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
		if err != nil {
			return err
		}
		macd, signal, histogram := result.Latest()
		if !isFinite(macd, signal, histogram) {
			return errNonFinite
		}
		set.MACD = MACDValue{Value: macd, Signal: signal, Histogram: histogram}
		return nil
	})

	c.compute(IndicatorBollinger, func() error {
		upper, middle, lower, err := c.bbands.CalculateOne(prices, DefaultBBandsPeriod, DefaultBBandsDeviations)
		if err != nil {
			return err
		}
		if !isFinite(upper, middle, lower) {
			return errNonFinite
		}
		set.Bollinger = BollingerValue{Upper: upper, Middle: middle, Lower: lower}
		return nil
	})

	return set
}

func (c *Calculator) compute(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(name, fmt.Errorf("panic: %v", r))
		}
	}()

	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientData):
		c.logger.Debug().Str("indicator", name).Msg("not enough history, using default")
	default:
		c.fail(name, err)
	}
}

func (c *Calculator) fail(name string, err error) {
	c.logger.Error().Err(err).Str("indicator", name).Msg("indicator calculation failed, using default")
	if c.OnFailure != nil {
		c.OnFailure(name)
	}
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
