package price

import (
	"context"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"

	"github.com/rs/zerolog"
)

// PriceStore persists bars
type PriceStore interface {
	CreateBatch(prices []models.Price) error
}

var DefaultTimeframes = map[string]time.Duration{
	models.PriceTimeFrame5m:  5 * time.Minute,
	models.PriceTimeFrame15m: 15 * time.Minute,
	models.PriceTimeFrame1h:  time.Hour,
	models.PriceTimeFrame4h:  4 * time.Hour,
}

type PriceRecorder struct {
	client  KlineSource
	store   PriceStore
	symbols []string
	logger  zerolog.Logger
	now     func() time.Time

	// OnRecorded is called after bars for a symbol were stored
	OnRecorded func(symbol string, count int)
}

func NewPriceRecorder(client KlineSource, store PriceStore, symbols []string, logger zerolog.Logger) *PriceRecorder {
	return &PriceRecorder{
		client:  client,
		store:   store,
		symbols: symbols,
		logger:  logging.Component(logger, "price_recorder"),
		now:     time.Now,
	}
}

// StartRecording records every timeframe on its own ticker until ctx is done
func (r *PriceRecorder) StartRecording(ctx context.Context, timeframes map[string]time.Duration) {
	for timeframe, interval := range timeframes {
		go r.recordTimeframe(ctx, timeframe, interval)
	}
}

func (r *PriceRecorder) recordTimeframe(ctx context.Context, timeframe string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Str("timeframe", timeframe).Msg("starting price recording")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Str("timeframe", timeframe).Msg("stopping price recording")
			return
		case <-ticker.C:
			r.RecordPrices(ctx, timeframe)
		}
	}
}

// RecordPrices stores the most recent closed bar of each symbol
func (r *PriceRecorder) RecordPrices(ctx context.Context, timeframe string) {
	now := r.now().UnixMilli()

	for _, symbol := range r.symbols {
		klines, err := r.client.GetRecentKlines(ctx, symbol, timeframe, 2)
		if err != nil {
			r.logger.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("error getting kline")
			continue
		}

		var closed []models.Price
		for _, k := range klines {
			if k.CloseTime < now {
				closed = append(closed, toPrice(symbol, timeframe, k))
			}
		}
		if len(closed) == 0 {
			continue
		}
		latest := closed[len(closed)-1:]

		if err := r.store.CreateBatch(latest); err != nil {
			r.logger.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("error saving price")
			continue
		}
		if r.OnRecorded != nil {
			r.OnRecorded(symbol, len(latest))
		}
		r.logger.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Float64("close", latest[0].Close).Msg("recorded price")
	}
}
