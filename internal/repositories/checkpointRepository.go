package repositories

import (
	"errors"

	"TradeMate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CheckpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Save inserts or replaces the checkpoint with the same name
func (r *CheckpointRepository) Save(checkpoint *models.PolicyCheckpoint) error {
	if checkpoint == nil || checkpoint.Name == "" {
		return errors.New("checkpoint must have a name")
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"epsilon", "steps", "payload", "updated_at"}),
	}).Create(checkpoint).Error
}

// FindByName returns nil, nil when no checkpoint exists
func (r *CheckpointRepository) FindByName(name string) (*models.PolicyCheckpoint, error) {
	var checkpoint models.PolicyCheckpoint
	err := r.db.Where("name = ?", name).First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &checkpoint, err
}
