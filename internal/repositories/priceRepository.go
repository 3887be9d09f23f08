package repositories

import (
	"errors"
	"time"

	"TradeMate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new instance of PriceRepository
func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// Create adds a new Price record; a bar that is already stored is left as is
func (r *PriceRepository) Create(price *models.Price) error {
	if price == nil {
		return errors.New("price cannot be nil")
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(price).Error
}

// CreateBatch stores bars in batches, skipping duplicates
func (r *PriceRepository) CreateBatch(prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(prices, 500).Error
}

// ClearTable removes every stored bar
func (r *PriceRepository) ClearTable() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Price{}).Error
}

// GetPricesByTimeFrame gets price data for a specific symbol and timeframe, oldest first
func (r *PriceRepository) GetPricesByTimeFrame(symbol string, timeFrame string, start, end time.Time) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var prices []models.Price
	err := r.db.Where("symbol = ? AND time_frame = ? AND open_time BETWEEN ? AND ?",
		symbol, timeFrame, start, end).
		Order("open_time ASC").
		Find(&prices).Error
	return prices, err
}

// GetRecentPrices returns the latest `limit` bars, oldest first
func (r *PriceRepository) GetRecentPrices(symbol, timeFrame string, limit int) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}
	if limit <= 0 {
		return nil, errors.New("invalid limit")
	}

	var prices []models.Price
	err := r.db.Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		Limit(limit).
		Find(&prices).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}
	return prices, nil
}
