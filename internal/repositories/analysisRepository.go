package repositories

import (
	"errors"

	"TradeMate/internal/models"

	"gorm.io/gorm"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(analysis *models.Analysis) error {
	if analysis == nil {
		return errors.New("analysis cannot be nil")
	}
	return r.db.Create(analysis).Error
}

// FindPending returns the latest analysis for symbol that has not been rewarded yet
func (r *AnalysisRepository) FindPending(symbol string) (*models.Analysis, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}

	var analysis models.Analysis
	err := r.db.Where("symbol = ? AND rewarded = ?", symbol, false).
		Order("analyzed_at DESC").
		First(&analysis).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &analysis, err
}

// MarkRewarded stores the realized reward and closes every older pending analysis for the symbol
func (r *AnalysisRepository) MarkRewarded(analysis *models.Analysis, reward float64) error {
	if analysis == nil {
		return errors.New("analysis cannot be nil")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(analysis).Updates(map[string]interface{}{
			"reward":   reward,
			"rewarded": true,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Analysis{}).
			Where("symbol = ? AND rewarded = ? AND analyzed_at < ?", analysis.Symbol, false, analysis.AnalyzedAt).
			Update("rewarded", true).Error
	})
}
