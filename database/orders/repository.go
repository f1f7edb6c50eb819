package orders

import (
	"fmt"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for live orders and trades
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new orders repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a new order
func (r *Repository) Insert(order *models.LiveOrder) error {
	if err := r.db.Create(order).Error; err != nil {
		return fmt.Errorf("Insert order: %w", err)
	}
	return nil
}

// ListByStatus returns orders in a status, oldest first
func (r *Repository) ListByStatus(status string, limit int) ([]models.LiveOrder, error) {
	var orders []models.LiveOrder
	err := r.db.
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("ListByStatus %s: %w", status, err)
	}
	return orders, nil
}

// MarkFilled moves a NEW order to FILLED and stamps the broker order id.
// The status guard keeps terminal statuses from being rewritten on replay.
func (r *Repository) MarkFilled(id int64, brokerOrderID string) error {
	err := r.db.Model(&models.LiveOrder{}).
		Where("id = ? AND status = ?", id, "NEW").
		Updates(map[string]interface{}{
			"status":          "FILLED",
			"broker_order_id": brokerOrderID,
		}).Error
	if err != nil {
		return fmt.Errorf("MarkFilled %d: %w", id, err)
	}
	return nil
}

// MarkRejected moves a NEW order to REJECTED
func (r *Repository) MarkRejected(id int64) error {
	err := r.db.Model(&models.LiveOrder{}).
		Where("id = ? AND status = ?", id, "NEW").
		Update("status", "REJECTED").Error
	if err != nil {
		return fmt.Errorf("MarkRejected %d: %w", id, err)
	}
	return nil
}

// CountOpenByUniverse counts a universe's NEW orders
func (r *Repository) CountOpenByUniverse(universeID int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.LiveOrder{}).
		Where("strategy_universe_id = ? AND status = ?", universeID, "NEW").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("CountOpenByUniverse: %w", err)
	}
	return count, nil
}

// ListOpenByUniverse returns a universe's NEW orders for the strategy context
func (r *Repository) ListOpenByUniverse(universeID int64) ([]models.LiveOrder, error) {
	var orders []models.LiveOrder
	err := r.db.
		Where("strategy_universe_id = ? AND status = ?", universeID, "NEW").
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("ListOpenByUniverse: %w", err)
	}
	return orders, nil
}

// InsertTrade appends a fill record
func (r *Repository) InsertTrade(trade *models.LiveTrade) error {
	if err := r.db.Create(trade).Error; err != nil {
		return fmt.Errorf("InsertTrade: %w", err)
	}
	return nil
}
