package strategies

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Bar is one closed bar as seen by a strategy
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	IsGap     bool      `json:"is_gap"`
	GapDir    string    `json:"gap_dir,omitempty"`
}

// PositionInfo is the strategy's view of its current position. Nil means flat.
type PositionInfo struct {
	Direction string  `json:"direction"`
	Size      float64 `json:"size"`
	AvgPrice  float64 `json:"avg_price"`
	GapMode   bool    `json:"gap_mode"`
}

// OrderInfo is one of the strategy's unfilled orders
type OrderInfo struct {
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

// Context is everything a strategy sees on one bar close. History is
// chronological and does not include Bar; strategies that need the full
// series append Bar.Close themselves.
type Context struct {
	Symbol    string
	Timeframe string
	Bar       Bar
	History   []Bar
	Position  *PositionInfo
	Orders    []OrderInfo

	Params       map[string]float64
	RiskPerTrade float64
	GapThreshold float64
}

// Signal is the trade intent a strategy returns from OnBar. Field names
// mirror the JSON contract stored in live_signals.signal_json.
type Signal struct {
	Type       string  `json:"type"` // OPEN, ADD, REVERSE, CLOSE
	Direction  string  `json:"direction,omitempty"`
	EntryType  string  `json:"entry_type,omitempty"` // MARKET, LIMIT, STOP
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	SizeMode   string  `json:"size_mode,omitempty"` // RISK_FRACTION
	SizeValue  float64 `json:"size_value,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// Strategy produces at most one signal per closed bar. Implementations keep
// no state between calls; everything they need is in the context.
type Strategy interface {
	OnBar(ctx *Context) *Signal
}

// Factory builds a strategy instance for one universe binding
type Factory func() Strategy

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func registryKey(module, class string) string {
	return module + "." + class
}

// Register binds a (module, class) name pair to a factory. Called from init
// in each strategy file; the names match the catalog's live_py_module /
// live_py_class columns.
func Register(module, class string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[registryKey(module, class)] = f
}

// Resolve looks up a factory by (module, class)
func Resolve(module, class string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[registryKey(module, class)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %s.%s", module, class)
	}
	return f, nil
}

// Registered returns every registered key, sorted, for startup logging
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Param reads a numeric parameter with a default
func Param(params map[string]float64, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// HasLong reports whether the context carries an open LONG position
func (c *Context) HasLong() bool {
	return c.Position != nil && c.Position.Direction == "LONG" && c.Position.Size > 0
}

// HasShort reports whether the context carries an open SHORT position
func (c *Context) HasShort() bool {
	return c.Position != nil && c.Position.Direction == "SHORT" && c.Position.Size > 0
}

// Closes returns history closes plus the current bar close, chronological
func (c *Context) Closes() []float64 {
	closes := make([]float64, 0, len(c.History)+1)
	for _, b := range c.History {
		closes = append(closes, b.Close)
	}
	return append(closes, c.Bar.Close)
}
