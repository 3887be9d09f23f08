package models

import (
	"time"
)

type Price struct {
	ID         uint      `gorm:"primaryKey"`
	Symbol     string    `gorm:"uniqueIndex:idx_price_bar;not null"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_price_bar;not null"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_price_bar;not null"`
	CloseTime  time.Time `gorm:"index"`
	Open       float64   `gorm:"type:decimal(20,8)"`
	Close      float64   `gorm:"type:decimal(20,8)"`
	High       float64   `gorm:"type:decimal(20,8)"`
	Low        float64   `gorm:"type:decimal(20,8)"`
	Volume     float64   `gorm:"type:decimal(20,8)"`
	TradeCount int64
}

const (
	PriceTimeFrame5m  = "5m"
	PriceTimeFrame15m = "15m"
	PriceTimeFrame1h  = "1h"
	PriceTimeFrame4h  = "4h"
)

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

// Closes splits bars into closing prices and volumes, oldest first
func Closes(prices []Price) (closes, volumes []float64) {
	closes = make([]float64, len(prices))
	volumes = make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
		volumes[i] = p.Volume
	}
	return closes, volumes
}
