package analysis

import (
	"gonum.org/v1/gonum/stat"
)

const DefaultVolatilityWindow = 20

type VolumeAnalyzer struct {
	window int
}

func NewVolumeAnalyzer() *VolumeAnalyzer {
	return &VolumeAnalyzer{
		window: DefaultVolatilityWindow,
	}
}

// Volatility is the sample standard deviation of simple returns over the
// trailing window. Fewer than two returns yields 0.
func (a *VolumeAnalyzer) Volatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}

	start := 1
	if len(closes)-1 > a.window {
		start = len(closes) - a.window
	}

	returns := make([]float64, 0, len(closes)-start)
	for i := start; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) < 2 {
		return 0
	}

	volatility := stat.StdDev(returns, nil)
	if !isFinite(volatility) {
		return 0
	}
	return volatility
}

// VolumeChange returns the percent change of the last bar's volume against the previous bar
func (a *VolumeAnalyzer) VolumeChange(volumes []float64) float64 {
	if len(volumes) < 2 {
		return 0
	}

	prev := volumes[len(volumes)-2]
	curr := volumes[len(volumes)-1]
	if prev == 0 {
		return 0
	}

	change := (curr - prev) / prev * 100
	if !isFinite(change) {
		return 0
	}
	return change
}
