package control

import (
	"fmt"
	"time"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles the coordination tables: trading_control, service_status
// heartbeats, the watermarks, and the live_errors log.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new control repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetTradingControl returns the trading_control singleton, seeding permissive
// defaults when the row is missing
func (r *Repository) GetTradingControl() (*models.TradingControl, error) {
	var tc models.TradingControl
	err := r.db.First(&tc, 1).Error
	if err == gorm.ErrRecordNotFound {
		tc = models.TradingControl{ID: 1, AllowTrading: true, AllowNewPositions: true}
		if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tc).Error; err != nil {
			return nil, fmt.Errorf("GetTradingControl seed: %w", err)
		}
		return &tc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTradingControl: %w", err)
	}
	return &tc, nil
}

// SetTradingControl writes both flags at once, for the stop-trading path
func (r *Repository) SetTradingControl(allowTrading, allowNewPositions bool, comment string) error {
	err := r.db.Model(&models.TradingControl{}).
		Where("id = ?", 1).
		Updates(map[string]interface{}{
			"allow_trading":       allowTrading,
			"allow_new_positions": allowNewPositions,
			"comment":             comment,
		}).Error
	if err != nil {
		return fmt.Errorf("SetTradingControl: %w", err)
	}
	return nil
}

// SetAllowNewPositions flips safe mode without touching allow_trading
func (r *Repository) SetAllowNewPositions(allow bool, comment string) error {
	err := r.db.Model(&models.TradingControl{}).
		Where("id = ?", 1).
		Updates(map[string]interface{}{
			"allow_new_positions": allow,
			"comment":             comment,
		}).Error
	if err != nil {
		return fmt.Errorf("SetAllowNewPositions: %w", err)
	}
	return nil
}

// Heartbeat upserts one service's service_status row
func (r *Repository) Heartbeat(serviceName, status string, details *string) error {
	row := models.ServiceStatus{
		ServiceName:   serviceName,
		LastHeartbeat: time.Now().UTC(),
		Status:        status,
		DetailsJSON:   details,
	}
	err := r.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_heartbeat", "status", "details_json"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("Heartbeat %s: %w", serviceName, err)
	}
	return nil
}

// ListHeartbeats returns every service_status row
func (r *Repository) ListHeartbeats() ([]models.ServiceStatus, error) {
	var rows []models.ServiceStatus
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListHeartbeats: %w", err)
	}
	return rows, nil
}

// GetDatafeedState returns the aggregator watermark singleton, or nil when it
// has never been written
func (r *Repository) GetDatafeedState() (*models.DatafeedState, error) {
	var st models.DatafeedState
	err := r.db.First(&st, 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetDatafeedState: %w", err)
	}
	return &st, nil
}

// SetLast1mTimestamp advances the aggregator watermark. Written only after
// the minute batch it covers has committed.
func (r *Repository) SetLast1mTimestamp(ts time.Time) error {
	row := models.DatafeedState{ID: 1, Last1mTimestamp: &ts}
	err := r.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_1m_timestamp", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("SetLast1mTimestamp: %w", err)
	}
	return nil
}

// GetBarState returns one (service, timeframe) bar watermark, or nil
func (r *Repository) GetBarState(serviceName, timeframe string) (*models.BarState, error) {
	var st models.BarState
	err := r.db.
		Where("service_name = ? AND timeframe = ?", serviceName, timeframe).
		First(&st).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetBarState: %w", err)
	}
	return &st, nil
}

// SetBarState advances one (service, timeframe) bar watermark
func (r *Repository) SetBarState(serviceName, timeframe string, ts time.Time) error {
	row := models.BarState{ServiceName: serviceName, Timeframe: timeframe, LastBarTimestamp: &ts}
	err := r.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_name"}, {Name: "timeframe"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_bar_timestamp", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("SetBarState: %w", err)
	}
	return nil
}

// LogError appends a live_errors row. Callers invoke it on a non-transaction
// repository so the write survives the failed unit's rollback.
func (r *Repository) LogError(e *models.LiveError) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := r.db.Create(e).Error; err != nil {
		return fmt.Errorf("LogError: %w", err)
	}
	return nil
}
