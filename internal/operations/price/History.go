package price

import (
	"context"
	"fmt"

	"TradeMate/internal/models"
	"TradeMate/internal/services/analysis"
)

type RecentPriceStore interface {
	GetRecentPrices(symbol, timeFrame string, limit int) ([]models.Price, error)
}

// StoredHistory serves price history from recorded bars
type StoredHistory struct {
	store     RecentPriceStore
	timeframe string
	limit     int
}

func NewStoredHistory(store RecentPriceStore, timeframe string, limit int) *StoredHistory {
	return &StoredHistory{store: store, timeframe: timeframe, limit: limit}
}

func (h *StoredHistory) GetPriceHistory(ctx context.Context, symbol string) (*analysis.PriceHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prices, err := h.store.GetRecentPrices(symbol, h.timeframe, h.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored %s bars for %s: %w", h.timeframe, symbol, err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no stored %s bars for %s", h.timeframe, symbol)
	}

	closes, volumes := models.Closes(prices)
	return &analysis.PriceHistory{Closes: closes, Volumes: volumes}, nil
}
