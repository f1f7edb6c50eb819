package universe

import (
	"fmt"

	models "marketpipe/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for the strategy catalog and the
// strategy universe bindings
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new universe repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Binding is one enabled universe row joined with its catalog entry
type Binding struct {
	Universe models.StrategyUniverse
	Catalog  models.StrategyCatalog
}

// ListEnabled returns the active trading set for one (symbol, timeframe):
// enabled universe rows in paper or live mode whose catalog strategy is
// enabled, joined with the catalog.
func (r *Repository) ListEnabled(symbol, timeframe string) ([]Binding, error) {
	var universes []models.StrategyUniverse
	err := r.db.
		Where("enabled = ? AND mode IN ?", true, []string{"paper", "live"}).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("id ASC").
		Find(&universes).Error
	if err != nil {
		return nil, fmt.Errorf("ListEnabled universes: %w", err)
	}
	if len(universes) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(universes))
	for _, u := range universes {
		ids = append(ids, u.StrategyID)
	}
	var catalogs []models.StrategyCatalog
	err = r.db.
		Where("id IN ? AND enabled = ?", ids, true).
		Find(&catalogs).Error
	if err != nil {
		return nil, fmt.Errorf("ListEnabled catalog: %w", err)
	}
	byID := make(map[int64]models.StrategyCatalog, len(catalogs))
	for _, c := range catalogs {
		byID[c.ID] = c
	}

	bindings := make([]Binding, 0, len(universes))
	for _, u := range universes {
		cat, ok := byID[u.StrategyID]
		if !ok {
			continue // catalog entry disabled or missing
		}
		bindings = append(bindings, Binding{Universe: u, Catalog: cat})
	}
	return bindings, nil
}

// GetByID returns one universe row, or nil when unknown
func (r *Repository) GetByID(id int64) (*models.StrategyUniverse, error) {
	var u models.StrategyUniverse
	err := r.db.First(&u, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID universe %d: %w", id, err)
	}
	return &u, nil
}
