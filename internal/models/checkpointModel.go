package models

import (
	"time"
)

// PolicyCheckpoint stores an encoded policy state under a name
type PolicyCheckpoint struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Epsilon   float64
	Steps     int
	Payload   []byte `gorm:"type:bytea;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PolicyCheckpoint) TableName() string {
	return "policy_checkpoints"
}
