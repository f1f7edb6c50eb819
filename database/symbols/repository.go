package symbols

import (
	"fmt"
	"time"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for symbols and lot-size history
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new symbols repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByTicker returns a symbol by ticker, or nil when unknown
func (r *Repository) GetByTicker(ticker string) (*models.Symbol, error) {
	var sym models.Symbol
	err := r.db.Where("ticker = ?", ticker).First(&sym).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByTicker %s: %w", ticker, err)
	}
	return &sym, nil
}

// GetByID returns a symbol by id, or nil when unknown
func (r *Repository) GetByID(id int64) (*models.Symbol, error) {
	var sym models.Symbol
	err := r.db.First(&sym, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID %d: %w", id, err)
	}
	return &sym, nil
}

// ListAll returns every symbol
func (r *Repository) ListAll() ([]models.Symbol, error) {
	var syms []models.Symbol
	if err := r.db.Order("ticker ASC").Find(&syms).Error; err != nil {
		return nil, fmt.Errorf("ListAll symbols: %w", err)
	}
	return syms, nil
}

// LotSizeAt returns the lot size effective for a symbol at a date: the latest
// lot_history change at or before it, falling back to symbols.lot_size.
func (r *Repository) LotSizeAt(symbolID int64, at time.Time) (int, error) {
	var hist models.LotHistory
	err := r.db.
		Where("symbol_id = ? AND change_date <= ?", symbolID, at).
		Order("change_date DESC").
		First(&hist).Error
	if err == nil {
		return hist.LotSize, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, fmt.Errorf("LotSizeAt: %w", err)
	}

	sym, err2 := r.GetByID(symbolID)
	if err2 != nil {
		return 0, err2
	}
	if sym == nil {
		return 0, fmt.Errorf("LotSizeAt: unknown symbol %d", symbolID)
	}
	return sym.LotSize, nil
}
