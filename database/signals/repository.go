package signals

import (
	"fmt"
	"time"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for live signals
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new signals repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a new signal
func (r *Repository) Insert(signal *models.LiveSignal) error {
	if err := r.db.Create(signal).Error; err != nil {
		return fmt.Errorf("Insert signal: %w", err)
	}
	return nil
}

// ListUnprocessed returns pending signals in FIFO order by signal_timestamp
func (r *Repository) ListUnprocessed(limit int) ([]models.LiveSignal, error) {
	var signals []models.LiveSignal
	err := r.db.
		Where("processed = ?", false).
		Order("signal_timestamp ASC, id ASC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("ListUnprocessed: %w", err)
	}
	return signals, nil
}

// MarkProcessed flips the processed flag exactly once and stamps processed_at
func (r *Repository) MarkProcessed(id int64) error {
	now := time.Now().UTC()
	err := r.db.Model(&models.LiveSignal{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("MarkProcessed %d: %w", id, err)
	}
	return nil
}

// ExistsForBar reports whether a universe already emitted a signal for a bar.
// The runner uses it to keep bar replay idempotent.
func (r *Repository) ExistsForBar(universeID int64, barTimestamp time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.LiveSignal{}).
		Where("strategy_universe_id = ? AND bar_timestamp = ?", universeID, barTimestamp).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ExistsForBar: %w", err)
	}
	return count > 0, nil
}
