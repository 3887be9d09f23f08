package backtest

import (
	"time"

	"TradeMate/internal/models"
)

// Step is one replayed bar whose decision was rewarded by the next close
type Step struct {
	Symbol         string
	Time           time.Time
	Recommendation string
	Path           string
	Price          float64
	NextPrice      float64
	Reward         float64
	Trained        bool
}

// RewardPoint tracks the cumulative reward over the replay
type RewardPoint struct {
	Timestamp  time.Time
	Cumulative float64
}

type BacktestResults struct {
	// Decision metrics
	TotalSteps  int
	Trades      int // BUY or SELL decisions
	Hits        int // trades with a positive reward
	HitRate     float64
	TotalReward float64
	AvgReward   float64
	PathCounts  map[string]int
	Signals     map[string]int

	// Training metrics
	Updates      int
	FinalEpsilon float64

	// Reward curve metrics
	MaxDrawdown float64
	SharpeRatio float64

	Steps       []Step
	RewardCurve []RewardPoint
}

const (
	DefaultWindow = 100
	DefaultEpochs = 1
)

type Config struct {
	Symbols   []string
	TimeFrame string

	// Window is the number of closed bars handed to the analyzer as history
	Window int
	Epochs int

	StartTime time.Time
	EndTime   time.Time

	// KeepSteps retains every Step in the results
	KeepSteps bool
}

func NewConfig() Config {
	end := time.Now()
	return Config{
		TimeFrame: models.PriceTimeFrame5m,
		Window:    DefaultWindow,
		Epochs:    DefaultEpochs,
		StartTime: end.AddDate(0, 0, -7),
		EndTime:   end,
	}
}
