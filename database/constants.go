package database

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Position directions
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
	DirectionFlat  = "FLAT"
)

// Order statuses. NEW moves to FILLED or REJECTED; terminal statuses never revert.
const (
	OrderStatusNew             = "NEW"
	OrderStatusFilled          = "FILLED"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusRejected        = "REJECTED"
)

// Order types
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeStop   = "STOP"
)

// Signal types
const (
	SignalOpen        = "OPEN"
	SignalAdd         = "ADD"
	SignalReverse     = "REVERSE"
	SignalClose       = "CLOSE"
	SignalManualClose = "MANUAL_CLOSE"
	SignalForcedClose = "FORCED_CLOSE"
)

// live_errors sources
const (
	SourceDataFeed       = "data_feed"
	SourceStrategy       = "strategy"
	SourceStrategyRunner = "strategy_runner"
	SourceExecution      = "execution"
	SourceRisk           = "risk"
	SourceBroker         = "broker"
	SourceSystem         = "system"
)

// live_errors severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Service names written to service_status
const (
	ServiceDataFeed        = "data_feed"
	ServiceStrategyRunner  = "strategy_runner"
	ServiceExecutionEngine = "execution_engine"
	ServiceFakeBroker      = "fake_broker"
	ServiceHealthMonitor   = "health_monitor"
)

// Gap directions
const (
	GapUp   = "UP"
	GapDown = "DOWN"
)

// Timeframe describes one aggregated timeframe and the table its bars live in
type Timeframe struct {
	Code    string
	Minutes int
	Table   string
}

// Timeframes lists every aggregated timeframe, shortest first. The aggregator
// processes them in this order so intraday tables fill before the daily one.
var Timeframes = []Timeframe{
	{Code: "5m", Minutes: 5, Table: "candles_5m"},
	{Code: "15m", Minutes: 15, Table: "candles_15m"},
	{Code: "30m", Minutes: 30, Table: "candles_30m"},
	{Code: "1h", Minutes: 60, Table: "candles_1h"},
	{Code: "4h", Minutes: 240, Table: "candles_4h"},
	{Code: "1d", Minutes: 1440, Table: "candles_1d"},
}

// TimeframeByCode returns the timeframe definition for a code like "15m",
// or ok=false for an unknown code.
func TimeframeByCode(code string) (Timeframe, bool) {
	for _, tf := range Timeframes {
		if tf.Code == code {
			return tf, true
		}
	}
	return Timeframe{}, false
}
