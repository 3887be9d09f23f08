package handlers

import (
	"context"
	"errors"
	"testing"

	"TradeMate/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

type staticKlines struct {
	err error
}

func (s *staticKlines) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]*futures.Kline, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*futures.Kline{{OpenTime: startTime, CloseTime: startTime + 1, Close: "100", Volume: "1"}}, nil
}

func (s *staticKlines) GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return nil, s.err
}

type memoryPrices struct {
	batches int
	prices  []models.Price
	cleared bool
}

func (m *memoryPrices) CreateBatch(prices []models.Price) error {
	m.batches++
	m.prices = append(m.prices, prices...)
	return nil
}

func (m *memoryPrices) ClearTable() error {
	m.cleared = true
	return nil
}

func TestPriceHandlerBackfillsEveryTimeframe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &memoryPrices{}
	h := NewPriceHandler(&staticKlines{}, repo, []string{"BTCUSDT"}, 1, true, zerolog.Nop())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !repo.cleared {
		t.Error("Expected price table to be cleared")
	}
	if repo.batches != 4 {
		t.Errorf("Expected 4 batches, got %d", repo.batches)
	}
	if len(repo.prices) == 0 || repo.prices[0].Symbol != "BTCUSDT" || repo.prices[0].Close != 100 {
		t.Errorf("Unexpected prices: %v", repo.prices)
	}
}

func TestPriceHandlerKeepsTableByDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &memoryPrices{}
	h := NewPriceHandler(&staticKlines{}, repo, []string{"BTCUSDT"}, 1, false, zerolog.Nop())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if repo.cleared {
		t.Error("Expected price table to be kept")
	}
}

func TestPriceHandlerBackfillErrorFromCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := NewPriceHandler(&staticKlines{err: errors.New("down")}, &memoryPrices{}, []string{"BTCUSDT"}, 1, false, zerolog.Nop())
	if err := h.Start(ctx); err == nil {
		t.Error("Expected error when the context is already cancelled")
	}
}
