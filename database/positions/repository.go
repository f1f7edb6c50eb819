package positions

import (
	"fmt"

	models "marketpipe/database/models_pkg"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for positions and the account
// singleton. Mutating methods are meant to run inside a transaction; the
// FOR UPDATE variants take the row lock that serializes broker fills.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new positions repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the position row for a (universe, symbol, timeframe) key, or
// nil when none exists
func (r *Repository) Get(universeID int64, symbol, timeframe string) (*models.LivePosition, error) {
	var pos models.LivePosition
	err := r.db.
		Where("strategy_universe_id = ? AND symbol = ? AND timeframe = ?", universeID, symbol, timeframe).
		First(&pos).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get position: %w", err)
	}
	return &pos, nil
}

// GetForUpdate is Get with SELECT ... FOR UPDATE. Callers must be inside a
// transaction; the lock holds until that transaction commits or rolls back.
func (r *Repository) GetForUpdate(universeID int64, symbol, timeframe string) (*models.LivePosition, error) {
	var pos models.LivePosition
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("strategy_universe_id = ? AND symbol = ? AND timeframe = ?", universeID, symbol, timeframe).
		First(&pos).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetForUpdate position: %w", err)
	}
	return &pos, nil
}

// Create inserts a new position row
func (r *Repository) Create(pos *models.LivePosition) error {
	if err := r.db.Create(pos).Error; err != nil {
		return fmt.Errorf("Create position: %w", err)
	}
	return nil
}

// Save writes back a mutated position row
func (r *Repository) Save(pos *models.LivePosition) error {
	if err := r.db.Save(pos).Error; err != nil {
		return fmt.Errorf("Save position: %w", err)
	}
	return nil
}

// ListOpenBySymbol returns non-FLAT positions on a symbol across universes.
// The aggregator scans these when a gap prints against the book.
func (r *Repository) ListOpenBySymbol(symbol string) ([]models.LivePosition, error) {
	var rows []models.LivePosition
	err := r.db.
		Where("symbol = ? AND direction <> ?", symbol, "FLAT").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListOpenBySymbol: %w", err)
	}
	return rows, nil
}

// FlagGapMode sets gap_mode on the given position rows in one statement
func (r *Repository) FlagGapMode(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.Exec(
		"UPDATE live_positions SET gap_mode = true, updated_at = NOW() WHERE id = ANY(?)",
		pq.Array(ids),
	).Error
	if err != nil {
		return fmt.Errorf("FlagGapMode: %w", err)
	}
	return nil
}

// CountOpenForUniverse counts a universe's non-FLAT positions
func (r *Repository) CountOpenForUniverse(universeID int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.LivePosition{}).
		Where("strategy_universe_id = ? AND direction <> ?", universeID, "FLAT").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("CountOpenForUniverse: %w", err)
	}
	return count, nil
}

// CountOpenTotal counts all non-FLAT positions
func (r *Repository) CountOpenTotal() (int64, error) {
	var count int64
	err := r.db.Model(&models.LivePosition{}).
		Where("direction <> ?", "FLAT").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("CountOpenTotal: %w", err)
	}
	return count, nil
}

// GetAccount returns the account singleton (id=1)
func (r *Repository) GetAccount() (*models.AccountState, error) {
	var acct models.AccountState
	err := r.db.First(&acct, 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &acct, nil
}

// GetAccountForUpdate locks and returns the account singleton. The account
// row lock orders concurrent fills behind one another.
func (r *Repository) GetAccountForUpdate() (*models.AccountState, error) {
	var acct models.AccountState
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&acct, 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccountForUpdate: %w", err)
	}
	return &acct, nil
}

// SaveAccount writes back the account singleton
func (r *Repository) SaveAccount(acct *models.AccountState) error {
	if err := r.db.Save(acct).Error; err != nil {
		return fmt.Errorf("SaveAccount: %w", err)
	}
	return nil
}

// EnsureAccount seeds the account singleton when missing
func (r *Repository) EnsureAccount(initialEquity float64) error {
	acct := models.AccountState{
		ID:       1,
		Equity:   initialEquity,
		FreeCash: initialEquity,
	}
	err := r.db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&acct).Error
	if err != nil {
		return fmt.Errorf("EnsureAccount: %w", err)
	}
	return nil
}
