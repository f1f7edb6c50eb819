package models

import "time"

// Symbol is one tradable instrument. Tickers are unique; lot_size is the
// minimum order increment the broker accepts (orders are sized in whole lots).
type Symbol struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker    string    `gorm:"size:32;uniqueIndex;not null" json:"ticker"`
	Name      string    `gorm:"size:128" json:"name,omitempty"`
	LotSize   int       `gorm:"not null;default:1" json:"lot_size"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Symbol
func (Symbol) TableName() string {
	return "symbols"
}

// MinuteCandle represents a 1-minute OHLCV bar written by the external ingest.
// Rows are immutable once written and keyed by (symbol_id, timestamp); the
// aggregator tails this table by timestamp and never mutates it.
//
// Key Fields:
//   - SymbolID/Timestamp: composite primary key, UTC timestamps
//   - Open/High/Low/Close: minute OHLC
//   - Volume: traded volume within the minute
type MinuteCandle struct {
	SymbolID  int64     `gorm:"primaryKey;not null" json:"symbol_id"`
	Timestamp time.Time `gorm:"primaryKey;not null;index:idx_candles_1m_ts" json:"timestamp"`
	Open      float64   `gorm:"type:decimal(18,6);not null" json:"open"`
	High      float64   `gorm:"type:decimal(18,6);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(18,6);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(18,6);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(20,2);not null" json:"volume"`
}

// TableName specifies the table name for MinuteCandle
func (MinuteCandle) TableName() string {
	return "candles_1m"
}

// AggregatedCandle is a closed higher-timeframe bar produced by the
// aggregator. Timestamp is the bucket END time (exclusive right edge of the
// minute range the bar covers). One table per timeframe (candles_5m,
// candles_15m, ...), selected at query time, so the model carries no fixed
// table name.
//
// Gap Fields:
//   - IsGap: close moved at least the gap threshold relative to the previous
//     closed bar of the same timeframe/symbol
//   - GapDir: "UP" or "DOWN" when IsGap, NULL otherwise
type AggregatedCandle struct {
	SymbolID  int64     `gorm:"primaryKey;not null" json:"symbol_id"`
	Timestamp time.Time `gorm:"primaryKey;not null" json:"timestamp"`
	Open      float64   `gorm:"type:decimal(18,6);not null" json:"open"`
	High      float64   `gorm:"type:decimal(18,6);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(18,6);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(18,6);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(20,2);not null" json:"volume"`
	IsGap     bool      `gorm:"not null;default:false" json:"is_gap"`
	GapDir    *string   `gorm:"size:8" json:"gap_dir,omitempty"`
}

// StrategyCatalog is one registered strategy implementation. PyModule/PyClass
// name the backtest variant; LivePyModule/LivePyClass the live variant. The
// runner resolves these names through the in-process strategy registry.
type StrategyCatalog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code         string    `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name         string    `gorm:"size:128" json:"name,omitempty"`
	PyModule     string    `gorm:"size:128" json:"py_module,omitempty"`
	PyClass      string    `gorm:"size:128" json:"py_class,omitempty"`
	LivePyModule *string   `gorm:"size:128" json:"live_py_module,omitempty"`
	LivePyClass  *string   `gorm:"size:128" json:"live_py_class,omitempty"`
	Enabled      bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for StrategyCatalog
func (StrategyCatalog) TableName() string {
	return "strategy_catalog"
}

// StrategyUniverse binds a catalog strategy to one (symbol, timeframe) with
// parameters and risk settings. Each enabled row in paper/live mode gets an
// on_bar call for every closed bar of its timeframe/symbol.
//
// Risk Fields:
//   - RiskPerTrade: fraction of equity risked per trade, in (0, 1]
//   - MaxDrawdownFraction: widest accepted stop distance as a fraction of entry
//   - GapThresholdFraction: per-universe gap sensitivity handed to the strategy
//   - MaxPositionsPerStrategy / MaxTotalPositions: admission limits checked by
//     the execution engine before sizing
type StrategyUniverse struct {
	ID                      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyID              int64     `gorm:"index;not null" json:"strategy_id"`
	Symbol                  string    `gorm:"size:32;index:idx_universe_symbol_tf,priority:1;not null" json:"symbol"`
	Timeframe               string    `gorm:"size:8;index:idx_universe_symbol_tf,priority:2;not null" json:"timeframe"`
	Enabled                 bool      `gorm:"not null;default:true" json:"enabled"`
	Mode                    string    `gorm:"size:16;not null;default:paper" json:"mode"` // paper, live
	ParamsJSON              string    `gorm:"type:jsonb" json:"params_json,omitempty"`
	RiskPerTrade            float64   `gorm:"type:decimal(8,6)" json:"risk_per_trade"`
	MaxDrawdownFraction     float64   `gorm:"type:decimal(8,6)" json:"max_drawdown_fraction"`
	GapThresholdFraction    float64   `gorm:"type:decimal(8,6)" json:"gap_threshold_fraction"`
	MaxPositionsPerStrategy *int      `json:"max_positions_per_strategy,omitempty"`
	MaxTotalPositions       *int      `json:"max_total_positions,omitempty"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for StrategyUniverse
func (StrategyUniverse) TableName() string {
	return "strategy_universe"
}

// LiveSignal is a structured trade intent emitted by a strategy at bar close.
// The execution engine tails unprocessed signals FIFO by signal_timestamp and
// flips Processed exactly once; SignalJSON carries the full record the
// strategy returned.
type LiveSignal struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyUniverseID int64      `gorm:"index;not null" json:"strategy_universe_id"`
	Symbol             string     `gorm:"size:32;not null" json:"symbol"`
	Timeframe          string     `gorm:"size:8;not null" json:"timeframe"`
	BarTimestamp       time.Time  `gorm:"not null" json:"bar_timestamp"`
	SignalTimestamp    time.Time  `gorm:"not null;index:idx_signals_pending,priority:2" json:"signal_timestamp"`
	SignalType         string     `gorm:"size:16;not null" json:"signal_type"`
	SignalSource       string     `gorm:"size:32;not null;default:strategy" json:"signal_source"`
	SignalJSON         string     `gorm:"type:jsonb" json:"signal_json"`
	GapFlag            bool       `gorm:"not null;default:false" json:"gap_flag"`
	Processed          bool       `gorm:"not null;default:false;index:idx_signals_pending,priority:1" json:"processed"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for LiveSignal
func (LiveSignal) TableName() string {
	return "live_signals"
}

// LiveOrder is a broker-facing instruction derived from a signal. Status moves
// NEW -> FILLED/REJECTED only (terminal statuses never revert); BrokerOrderID
// is set exactly once on fill.
type LiveOrder struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LiveSignalID       *int64    `gorm:"index" json:"live_signal_id,omitempty"`
	StrategyUniverseID int64     `gorm:"index;not null" json:"strategy_universe_id"`
	Symbol             string    `gorm:"size:32;not null" json:"symbol"`
	Timeframe          string    `gorm:"size:8" json:"timeframe,omitempty"`
	Side               string    `gorm:"size:8;not null" json:"side"` // BUY, SELL
	Quantity           float64   `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Price              *float64  `gorm:"type:decimal(18,6)" json:"price,omitempty"`
	OrderType          string    `gorm:"size:16;not null" json:"order_type"` // MARKET, LIMIT, STOP
	Status             string    `gorm:"size:24;not null;index:idx_orders_pending,priority:1" json:"status"`
	BrokerOrderID      *string   `gorm:"size:64" json:"broker_order_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index:idx_orders_pending,priority:2" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for LiveOrder
func (LiveOrder) TableName() string {
	return "live_orders"
}

// LiveTrade is an append-only fill record
type LiveTrade struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LiveOrderID        int64     `gorm:"index;not null" json:"live_order_id"`
	StrategyUniverseID int64     `gorm:"index" json:"strategy_universe_id"`
	Symbol             string    `gorm:"size:32;not null" json:"symbol"`
	Timeframe          string    `gorm:"size:8" json:"timeframe,omitempty"`
	Side               string    `gorm:"size:8;not null" json:"side"`
	Quantity           float64   `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Price              float64   `gorm:"type:decimal(18,6);not null" json:"price"`
	Fee                float64   `gorm:"type:decimal(18,6);not null" json:"fee"`
	ExecutedAt         time.Time `gorm:"not null" json:"executed_at"`
	TradeType          string    `gorm:"size:16;not null" json:"trade_type"` // FILL
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for LiveTrade
func (LiveTrade) TableName() string {
	return "live_trades"
}

// LivePosition is the running net exposure per (strategy_universe, symbol,
// timeframe). Mutated only by the broker adapter under a row lock.
// Invariant: Direction=FLAT exactly when Quantity=0 and AvgPrice=0. Rows are
// kept (set FLAT) rather than deleted on close so realized PnL survives.
type LivePosition struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyUniverseID int64      `gorm:"not null;uniqueIndex:idx_position_key,priority:1" json:"strategy_universe_id"`
	Symbol             string     `gorm:"size:32;not null;index;uniqueIndex:idx_position_key,priority:2" json:"symbol"`
	Timeframe          string     `gorm:"size:8;uniqueIndex:idx_position_key,priority:3" json:"timeframe,omitempty"`
	Direction          string     `gorm:"size:8;not null" json:"direction"` // LONG, SHORT, FLAT
	Quantity           float64    `gorm:"type:decimal(18,4);not null" json:"quantity"`
	AvgPrice           float64    `gorm:"type:decimal(18,6);not null" json:"avg_price"`
	LastPrice          float64    `gorm:"type:decimal(18,6)" json:"last_price"`
	UnrealizedPnL      float64    `gorm:"type:decimal(18,6);not null;default:0" json:"unrealized_pnl"`
	RealizedPnL        float64    `gorm:"type:decimal(18,6);not null;default:0" json:"realized_pnl"`
	GapMode            bool       `gorm:"not null;default:false" json:"gap_mode"`
	OpenedAt           *time.Time `json:"opened_at,omitempty"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for LivePosition
func (LivePosition) TableName() string {
	return "live_positions"
}

// AccountState is the singleton (id=1) cash model: equity = free_cash +
// used_margin. Mutated only by the broker adapter.
type AccountState struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Equity     float64   `gorm:"type:decimal(20,6);not null" json:"equity"`
	FreeCash   float64   `gorm:"type:decimal(20,6);not null" json:"free_cash"`
	UsedMargin float64   `gorm:"type:decimal(20,6);not null;default:0" json:"used_margin"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AccountState
func (AccountState) TableName() string {
	return "account_state"
}

// TradingControl is the singleton (id=1) pair of global flags every daemon
// reads. Only the health monitor and operator tooling write it.
type TradingControl struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	AllowTrading      bool      `gorm:"not null;default:true" json:"allow_trading"`
	AllowNewPositions bool      `gorm:"not null;default:true" json:"allow_new_positions"`
	Comment           *string   `gorm:"type:text" json:"comment,omitempty"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TradingControl
func (TradingControl) TableName() string {
	return "trading_control"
}

// LiveError is the append-only taxonomized event log
type LiveError struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp          time.Time `gorm:"index;not null" json:"timestamp"`
	Source             string    `gorm:"size:32;not null" json:"source"`
	Severity           string    `gorm:"size:16;not null" json:"severity"`
	StrategyUniverseID *int64    `json:"strategy_universe_id,omitempty"`
	Symbol             *string   `gorm:"size:32" json:"symbol,omitempty"`
	Timeframe          *string   `gorm:"size:8" json:"timeframe,omitempty"`
	Message            string    `gorm:"type:text;not null" json:"message"`
	DetailsJSON        *string   `gorm:"type:jsonb" json:"details_json,omitempty"`
}

// TableName specifies the table name for LiveError
func (LiveError) TableName() string {
	return "live_errors"
}

// ServiceStatus is one heartbeat row per daemon
type ServiceStatus struct {
	ServiceName   string    `gorm:"primaryKey;size:64" json:"service_name"`
	LastHeartbeat time.Time `gorm:"not null" json:"last_heartbeat"`
	Status        string    `gorm:"size:16;not null" json:"status"`
	DetailsJSON   *string   `gorm:"type:jsonb" json:"details_json,omitempty"`
}

// TableName specifies the table name for ServiceStatus
func (ServiceStatus) TableName() string {
	return "service_status"
}

// DatafeedState holds the aggregator's minute watermark (singleton id=1).
// Last1mTimestamp is strictly non-decreasing and advanced only after the
// minute batch it covers has committed.
type DatafeedState struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	Last1mTimestamp *time.Time `json:"last_1m_timestamp,omitempty"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for DatafeedState
func (DatafeedState) TableName() string {
	return "datafeed_state"
}

// BarState is the strategy runner's per-timeframe bar watermark
type BarState struct {
	ServiceName      string     `gorm:"primaryKey;size:64" json:"service_name"`
	Timeframe        string     `gorm:"primaryKey;size:8" json:"timeframe"`
	LastBarTimestamp *time.Time `json:"last_bar_timestamp,omitempty"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for BarState
func (BarState) TableName() string {
	return "bar_state"
}

// LotHistory records lot-size changes per symbol; the effective lot size at a
// date is the latest change at or before it, falling back to symbols.lot_size.
type LotHistory struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SymbolID   int64     `gorm:"index:idx_lot_history_symbol_date,priority:1;not null" json:"symbol_id"`
	LotSize    int       `gorm:"not null" json:"lot_size"`
	ChangeDate time.Time `gorm:"index:idx_lot_history_symbol_date,priority:2;not null" json:"change_date"`
}

// TableName specifies the table name for LotHistory
func (LotHistory) TableName() string {
	return "lot_history"
}
