package database

import (
	"fmt"
	"log"

	"marketpipe/database/candles"
	"marketpipe/database/control"
	models "marketpipe/database/models_pkg"
	"marketpipe/database/orders"
	"marketpipe/database/positions"
	"marketpipe/database/signals"
	"marketpipe/database/symbols"
	"marketpipe/database/universe"

	"gorm.io/gorm"
)

// Repository bundles the per-domain repositories over one connection (or one
// transaction, see Transaction).
type Repository struct {
	gdb *gorm.DB

	Candles   *candles.Repository
	Signals   *signals.Repository
	Orders    *orders.Repository
	Positions *positions.Repository
	Control   *control.Repository
	Symbols   *symbols.Repository
	Universe  *universe.Repository
}

// NewRepository creates the aggregate repository
func NewRepository(db *Database) *Repository {
	return newWithDB(db.DB())
}

func newWithDB(gdb *gorm.DB) *Repository {
	return &Repository{
		gdb:       gdb,
		Candles:   candles.NewRepository(gdb),
		Signals:   signals.NewRepository(gdb),
		Orders:    orders.NewRepository(gdb),
		Positions: positions.NewRepository(gdb),
		Control:   control.NewRepository(gdb),
		Symbols:   symbols.NewRepository(gdb),
		Universe:  universe.NewRepository(gdb),
	}
}

// Transaction runs fn inside one database transaction. The Repository passed
// to fn is scoped to that transaction; any error rolls everything back.
func (r *Repository) Transaction(fn func(tx *Repository) error) error {
	return r.gdb.Transaction(func(tx *gorm.DB) error {
		return fn(newWithDB(tx))
	})
}

// InitSchema performs auto-migration and creates the per-timeframe candle
// tables plus the tail-query indexes
func (r *Repository) InitSchema() error {
	log.Println("🔄 Starting database schema initialization...")

	err := r.gdb.AutoMigrate(
		&models.Symbol{},
		&models.MinuteCandle{},
		&models.StrategyCatalog{},
		&models.StrategyUniverse{},
		&models.LiveSignal{},
		&models.LiveOrder{},
		&models.LiveTrade{},
		&models.LivePosition{},
		&models.AccountState{},
		&models.TradingControl{},
		&models.LiveError{},
		&models.ServiceStatus{},
		&models.DatafeedState{},
		&models.BarState{},
		&models.LotHistory{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// One table per aggregated timeframe. AutoMigrate cannot map one model to
	// six tables, so these are managed manually.
	for _, tf := range Timeframes {
		stmt := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol_id BIGINT NOT NULL,
				timestamp TIMESTAMPTZ NOT NULL,
				open DECIMAL(18,6) NOT NULL,
				high DECIMAL(18,6) NOT NULL,
				low DECIMAL(18,6) NOT NULL,
				close DECIMAL(18,6) NOT NULL,
				volume DECIMAL(20,2) NOT NULL,
				is_gap BOOLEAN NOT NULL DEFAULT FALSE,
				gap_dir VARCHAR(8),
				PRIMARY KEY (symbol_id, timestamp)
			)
		`, tf.Table)
		if err := r.gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create table %s: %w", tf.Table, err)
		}
		idx := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (timestamp)",
			tf.Table, tf.Table,
		)
		if err := r.gdb.Exec(idx).Error; err != nil {
			return fmt.Errorf("failed to index table %s: %w", tf.Table, err)
		}
	}

	// Tail-query indexes for the pollers
	r.gdb.Exec(`
		CREATE INDEX IF NOT EXISTS idx_live_signals_pending
		ON live_signals (processed, signal_timestamp)
	`)
	r.gdb.Exec(`
		CREATE INDEX IF NOT EXISTS idx_live_orders_pending
		ON live_orders (status, created_at)
	`)

	log.Println("✅ Database schema initialization completed successfully")
	return nil
}
