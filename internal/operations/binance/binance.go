package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"TradeMate/internal/logging"
	"TradeMate/internal/services/analysis"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultHistoryInterval = "5m"
	DefaultHistoryLimit    = 100
	maxRetries             = 3
	retryBackoff           = 100 * time.Millisecond
)

// BinanceClient wraps the futures API with rate limiting and retries and
// serves market observations to the decision engine.
type BinanceClient struct {
	client       *futures.Client
	rateLimiter  *rate.Limiter
	interval     string
	historyLimit int
	logger       zerolog.Logger
}

type Option func(*BinanceClient)

// WithBaseURL points the client at another endpoint, e.g. the testnet
func WithBaseURL(url string) Option {
	return func(c *BinanceClient) { c.client.BaseURL = url }
}

func WithHistory(interval string, limit int) Option {
	return func(c *BinanceClient) {
		if interval != "" {
			c.interval = interval
		}
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// WithRateLimit overrides the default 10 requests per second; non-positive values are ignored
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *BinanceClient) {
		if perSecond > 0 && burst > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func NewBinanceClient(apiKey, secretKey string, logger zerolog.Logger, opts ...Option) *BinanceClient {
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	c := &BinanceClient{
		client: futuresClient,
		// 10 requests per second with burst of 20
		rateLimiter:  rate.NewLimiter(rate.Limit(10), 20),
		interval:     DefaultHistoryInterval,
		historyLimit: DefaultHistoryLimit,
		logger:       logging.Component(logger, "binance"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withRetry waits for the rate limiter and retries fn with exponential backoff
func (c *BinanceClient) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * retryBackoff
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("wait", waitTime).Msg("retrying binance request")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return err
}

func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]*futures.Kline, error) {
	var klines []*futures.Kline
	err := c.withRetry(ctx, func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startTime).
			EndTime(endTime).
			Do(ctx)
		return err
	})
	return klines, err
}

// GetRecentKlines returns the latest `limit` klines, the last one possibly still open
func (c *BinanceClient) GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	var klines []*futures.Kline
	err := c.withRetry(ctx, func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return err
	})
	return klines, err
}

// GetMarketObservation builds an observation from the 24h ticker statistics
func (c *BinanceClient) GetMarketObservation(ctx context.Context, symbol string) (*analysis.MarketObservation, error) {
	var stats []*futures.PriceChangeStats
	err := c.withRetry(ctx, func() error {
		var err error
		stats, err = c.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}

	for _, s := range stats {
		if s == nil || s.Symbol != symbol {
			continue
		}

		price, err := strconv.ParseFloat(s.LastPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid last price %q for %s: %w", s.LastPrice, symbol, err)
		}

		obs := &analysis.MarketObservation{
			Symbol:    symbol,
			Price:     price,
			Volume:    parseFloat(s.Volume),
			Change24h: parseFloat(s.PriceChangePercent),
			High:      optionalFloat(s.HighPrice),
			Low:       optionalFloat(s.LowPrice),
		}
		return obs, nil
	}
	return nil, fmt.Errorf("no ticker returned for %s", symbol)
}

// GetPriceHistory returns the closed bars preceding the current one
func (c *BinanceClient) GetPriceHistory(ctx context.Context, symbol string) (*analysis.PriceHistory, error) {
	klines, err := c.GetRecentKlines(ctx, symbol, c.interval, c.historyLimit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	now := time.Now().UnixMilli()
	history := &analysis.PriceHistory{
		Closes:  make([]float64, 0, len(klines)),
		Volumes: make([]float64, 0, len(klines)),
	}
	for _, k := range klines {
		// the current bar is represented by the observation itself
		if k.CloseTime >= now {
			continue
		}
		history.Closes = append(history.Closes, parseFloat(k.Close))
		history.Volumes = append(history.Volumes, parseFloat(k.Volume))
	}
	return history, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
