package candles

import (
	"fmt"
	"time"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for minute and aggregated candles
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new candles repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// MinMinuteTimestamp returns the earliest minute-candle timestamp, or nil when
// the table is empty. Used to seed the aggregator watermark on first run.
func (r *Repository) MinMinuteTimestamp() (*time.Time, error) {
	var row struct{ Ts *time.Time }
	err := r.db.Model(&models.MinuteCandle{}).
		Select("MIN(timestamp) AS ts").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("MinMinuteTimestamp: %w", err)
	}
	return row.Ts, nil
}

// MaxMinuteTimestamp returns the latest minute-candle timestamp, or nil when
// the table is empty. The health monitor compares it against the clock.
func (r *Repository) MaxMinuteTimestamp() (*time.Time, error) {
	var row struct{ Ts *time.Time }
	err := r.db.Model(&models.MinuteCandle{}).
		Select("MAX(timestamp) AS ts").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("MaxMinuteTimestamp: %w", err)
	}
	return row.Ts, nil
}

// ListMinutesAfter returns new minute candles past the watermark, ordered by
// timestamp then symbol, capped at limit rows per poll
func (r *Repository) ListMinutesAfter(after time.Time, limit int) ([]models.MinuteCandle, error) {
	var rows []models.MinuteCandle
	err := r.db.
		Where("timestamp > ?", after).
		Order("timestamp ASC, symbol_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListMinutesAfter: %w", err)
	}
	return rows, nil
}

// InsertBar writes one aggregated bar into the given timeframe table.
// Conflicting (symbol_id, timestamp) rows are left untouched so replay after
// a crash never rewrites an already-published bar.
func (r *Repository) InsertBar(table string, bar *models.AggregatedCandle) error {
	err := r.db.Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol_id"}, {Name: "timestamp"}},
			DoNothing: true,
		}).
		Create(bar).Error
	if err != nil {
		return fmt.Errorf("InsertBar %s: %w", table, err)
	}
	return nil
}

// PrevClose is the last published close per symbol in a timeframe table
type PrevClose struct {
	SymbolID  int64
	Timestamp time.Time
	Close     float64
}

// LatestCloses returns the most recent bar close per symbol for one timeframe
// table. The aggregator rebuilds its gap-detection state from this at startup.
func (r *Repository) LatestCloses(table string) ([]PrevClose, error) {
	var rows []PrevClose
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (symbol_id) symbol_id, timestamp, close
		FROM %s
		ORDER BY symbol_id, timestamp DESC
	`, table)
	if err := r.db.Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("LatestCloses %s: %w", table, err)
	}
	return rows, nil
}

// ListBarsAfter returns closed bars past the watermark, oldest first
func (r *Repository) ListBarsAfter(table string, after time.Time, limit int) ([]models.AggregatedCandle, error) {
	var bars []models.AggregatedCandle
	err := r.db.Table(table).
		Where("timestamp > ?", after).
		Order("timestamp ASC, symbol_id ASC").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("ListBarsAfter %s: %w", table, err)
	}
	return bars, nil
}

// History returns up to limit bars strictly before ts, oldest first. This is
// the lookback window handed to strategies; the current bar is not included.
func (r *Repository) History(table string, symbolID int64, ts time.Time, limit int) ([]models.AggregatedCandle, error) {
	var bars []models.AggregatedCandle
	err := r.db.Table(table).
		Where("symbol_id = ? AND timestamp < ?", symbolID, ts).
		Order("timestamp DESC").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("History %s: %w", table, err)
	}
	// reverse to chronological order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// LatestMinuteClose returns the most recent minute candle for a symbol, or
// nil when none exists. The broker fills orders at this close.
func (r *Repository) LatestMinuteClose(symbolID int64) (*models.MinuteCandle, error) {
	var candle models.MinuteCandle
	err := r.db.
		Where("symbol_id = ?", symbolID).
		Order("timestamp DESC").
		First(&candle).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestMinuteClose: %w", err)
	}
	return &candle, nil
}
