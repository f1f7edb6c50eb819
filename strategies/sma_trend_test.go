package strategies

import "testing"

func barsFromCloses(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func smaParams() map[string]float64 {
	return map[string]float64{
		"fast_period": 2,
		"slow_period": 4,
		"sl_pct":      2.0,
		"tp_pct":      4.0,
	}
}

func TestSMATrendOpensOnUpwardCross(t *testing.T) {
	// previous bar: fast 9.5 < slow 9.75; current: fast 11.5 >= slow 10.75
	ctx := &Context{
		Symbol:    "BBCA",
		Timeframe: "1h",
		Bar:       Bar{Close: 14},
		History:   barsFromCloses([]float64{10, 10, 10, 10, 9}),
		Params:    smaParams(),
	}

	sig := (&SMATrend{}).OnBar(ctx)
	if sig == nil {
		t.Fatal("expected a signal on the upward cross")
	}
	if sig.Type != "OPEN" || sig.Direction != "LONG" || sig.EntryType != "MARKET" {
		t.Errorf("got %s %s %s, want OPEN LONG MARKET", sig.Type, sig.Direction, sig.EntryType)
	}
	if sig.EntryPrice != 14 {
		t.Errorf("EntryPrice = %v, want 14", sig.EntryPrice)
	}
	if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit <= sig.EntryPrice {
		t.Errorf("stop %v / take %v should bracket entry %v", sig.StopLoss, sig.TakeProfit, sig.EntryPrice)
	}
	if sig.SizeMode != "RISK_FRACTION" || sig.SizeValue != 1.0 {
		t.Errorf("sizing = %s %v, want RISK_FRACTION 1.0", sig.SizeMode, sig.SizeValue)
	}
}

func TestSMATrendClosesOnDownwardCross(t *testing.T) {
	// previous bar: fast 12.5 > slow 11.25; current: fast 10.5 <= slow 10.75
	ctx := &Context{
		Bar:      Bar{Close: 8},
		History:  barsFromCloses([]float64{10, 10, 10, 12, 13}),
		Position: &PositionInfo{Direction: "LONG", Size: 1000, AvgPrice: 11},
		Params:   smaParams(),
	}

	sig := (&SMATrend{}).OnBar(ctx)
	if sig == nil || sig.Type != "CLOSE" {
		t.Fatalf("got %+v, want CLOSE", sig)
	}
}

func TestSMATrendNoEntryWhilePending(t *testing.T) {
	ctx := &Context{
		Bar:     Bar{Close: 14},
		History: barsFromCloses([]float64{10, 10, 10, 10, 9}),
		Orders:  []OrderInfo{{Side: "BUY", Quantity: 1000, Status: "NEW"}},
		Params:  smaParams(),
	}

	if sig := (&SMATrend{}).OnBar(ctx); sig != nil {
		t.Errorf("expected nil while an order is pending, got %+v", sig)
	}
}

func TestSMATrendNeedsHistory(t *testing.T) {
	ctx := &Context{
		Bar:     Bar{Close: 14},
		History: barsFromCloses([]float64{10, 10}),
		Params:  smaParams(),
	}

	if sig := (&SMATrend{}).OnBar(ctx); sig != nil {
		t.Errorf("expected nil without enough history, got %+v", sig)
	}
}

func TestSMATrendHoldsWithoutCross(t *testing.T) {
	// flat series: no cross either way
	ctx := &Context{
		Bar:     Bar{Close: 10},
		History: barsFromCloses([]float64{10, 10, 10, 10, 10}),
		Params:  smaParams(),
	}

	if sig := (&SMATrend{}).OnBar(ctx); sig != nil {
		t.Errorf("expected nil on a flat series, got %+v", sig)
	}
}
