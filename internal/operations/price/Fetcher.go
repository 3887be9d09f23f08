package price

import (
	"context"
	"strconv"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

// KlineSource is the part of the exchange client the price operations need
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]*futures.Kline, error)
	GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
}

type PriceFetcher struct {
	client  KlineSource
	symbols []string
	logger  zerolog.Logger
}

func NewPriceFetcher(client KlineSource, symbols []string, logger zerolog.Logger) *PriceFetcher {
	return &PriceFetcher{
		client:  client,
		symbols: symbols,
		logger:  logging.Component(logger, "price_fetcher"),
	}
}

// FetchPrices loads `days` of history per symbol in chunks of at most 500 candles
func (f *PriceFetcher) FetchPrices(ctx context.Context, timeframe string, days int) ([]models.Price, error) {
	endTime := time.Now()
	startTime := endTime.AddDate(0, 0, -days)
	var allPrices []models.Price

	chunkDuration := calculateChunkDuration(timeframe)
	for currentStart := startTime; currentStart.Before(endTime); currentStart = currentStart.Add(chunkDuration) {
		currentEnd := currentStart.Add(chunkDuration)
		if currentEnd.After(endTime) {
			currentEnd = endTime
		}

		for _, symbol := range f.symbols {
			if err := ctx.Err(); err != nil {
				return allPrices, err
			}

			klines, err := f.client.GetKlines(ctx, symbol, timeframe, currentStart.UnixMilli(), currentEnd.UnixMilli())
			if err != nil {
				f.logger.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("error fetching prices")
				continue
			}

			for _, k := range klines {
				allPrices = append(allPrices, toPrice(symbol, timeframe, k))
			}

			f.logger.Debug().
				Str("symbol", symbol).
				Str("timeframe", timeframe).
				Int("candles", len(klines)).
				Time("from", currentStart).
				Time("to", currentEnd).
				Msg("fetched candles")
		}
	}

	return allPrices, nil
}

func toPrice(symbol, timeframe string, k *futures.Kline) models.Price {
	return models.Price{
		Symbol:     symbol,
		TimeFrame:  timeframe,
		OpenTime:   time.UnixMilli(k.OpenTime),
		CloseTime:  time.UnixMilli(k.CloseTime),
		Open:       parseFloat(k.Open),
		High:       parseFloat(k.High),
		Low:        parseFloat(k.Low),
		Close:      parseFloat(k.Close),
		Volume:     parseFloat(k.Volume),
		TradeCount: k.TradeNum,
	}
}

func calculateChunkDuration(timeframe string) time.Duration {
	intervalsMap := map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
	}

	interval, ok := intervalsMap[timeframe]
	if !ok {
		interval = 5 * time.Minute
	}
	return interval * 500 // 500 is Binance's max limit
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
