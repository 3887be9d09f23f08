package models

import (
	"time"
)

// Analysis is a persisted trade analysis. The state vector and indicator
// strings are kept so the action can be rewarded once the next price is known.
type Analysis struct {
	ID             uint      `gorm:"primaryKey"`
	Symbol         string    `gorm:"index:idx_analysis_pending;not null"`
	Recommendation string    `gorm:"size:4;not null"`
	Path           string    `gorm:"size:8;not null"`
	Action         int       `gorm:"not null"`
	Confidence     float64   `gorm:"type:decimal(10,8)"`
	Price          float64   `gorm:"type:decimal(20,8)"`
	State          string    `gorm:"type:jsonb;not null"`
	Indicators     string    `gorm:"type:jsonb"`
	Reward         *float64  `gorm:"type:decimal(20,10)"`
	Rewarded       bool      `gorm:"index:idx_analysis_pending;default:false"`
	AnalyzedAt     time.Time `gorm:"index;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Analysis) TableName() string {
	return "analyses"
}
