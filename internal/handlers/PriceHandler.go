package handlers

import (
	"context"
	"fmt"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"
	"TradeMate/internal/operations/price"

	"github.com/rs/zerolog"
)

// PriceRepository is the storage the price handler writes to
type PriceRepository interface {
	CreateBatch(prices []models.Price) error
	ClearTable() error
}

type PriceHandler struct {
	priceRepo     PriceRepository
	priceRecorder *price.PriceRecorder
	priceFetcher  *price.PriceFetcher
	backfillDays  int
	clearOnStart  bool
	logger        zerolog.Logger
}

func NewPriceHandler(client price.KlineSource, priceRepo PriceRepository, symbols []string, backfillDays int, clearOnStart bool, logger zerolog.Logger) *PriceHandler {
	if backfillDays <= 0 {
		backfillDays = 7
	}
	return &PriceHandler{
		priceRepo:     priceRepo,
		priceFetcher:  price.NewPriceFetcher(client, symbols, logger),
		priceRecorder: price.NewPriceRecorder(client, priceRepo, symbols, logger),
		backfillDays:  backfillDays,
		clearOnStart:  clearOnStart,
		logger:        logging.Component(logger, "price_handler"),
	}
}

// OnRecorded registers a callback invoked after live bars are stored
func (h *PriceHandler) OnRecorded(fn func(symbol string, count int)) {
	h.priceRecorder.OnRecorded = fn
}

// Start backfills history and then records new bars in the background
func (h *PriceHandler) Start(ctx context.Context) error {
	if h.clearOnStart {
		if err := h.priceRepo.ClearTable(); err != nil {
			return fmt.Errorf("failed to clear price table: %w", err)
		}
	}

	if err := h.fetchHistoricalData(ctx); err != nil {
		return err
	}

	h.priceRecorder.StartRecording(ctx, price.DefaultTimeframes)
	return nil
}

func (h *PriceHandler) fetchHistoricalData(ctx context.Context) error {
	for timeframe := range price.DefaultTimeframes {
		started := time.Now()
		h.logger.Info().Str("timeframe", timeframe).Int("days", h.backfillDays).Msg("fetching historical data")

		prices, err := h.priceFetcher.FetchPrices(ctx, timeframe, h.backfillDays)
		if err != nil {
			return fmt.Errorf("failed to backfill %s: %w", timeframe, err)
		}

		if err := h.priceRepo.CreateBatch(prices); err != nil {
			h.logger.Error().Err(err).Str("timeframe", timeframe).Msg("error saving historical prices")
			continue
		}
		h.logger.Info().
			Str("timeframe", timeframe).
			Int("bars", len(prices)).
			Dur("elapsed", time.Since(started)).
			Msg("historical data stored")
	}
	return nil
}
