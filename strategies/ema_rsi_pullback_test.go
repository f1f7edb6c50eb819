package strategies

import "testing"

func pullbackParams() map[string]float64 {
	return map[string]float64{
		"ema_period":     5,
		"rsi_period":     5,
		"rsi_oversold":   30,
		"rsi_overbought": 70,
		"sl_pct":         1.5,
		"tp_pct":         3.0,
	}
}

func TestEMARSIPullbackOpensLongOnOversoldDip(t *testing.T) {
	// steady decline: RSI 0, price below the lagging EMA
	ctx := &Context{
		Bar:     Bar{Close: 90},
		History: barsFromCloses([]float64{100, 98, 96, 94, 92}),
		Params:  pullbackParams(),
	}

	sig := (&EMARSIPullback{}).OnBar(ctx)
	if sig == nil {
		t.Fatal("expected a long entry on the oversold dip")
	}
	if sig.Type != "OPEN" || sig.Direction != "LONG" {
		t.Errorf("got %s %s, want OPEN LONG", sig.Type, sig.Direction)
	}
	if sig.StopLoss >= 90 || sig.TakeProfit <= 90 {
		t.Errorf("stop %v / take %v should bracket entry 90", sig.StopLoss, sig.TakeProfit)
	}
}

func TestEMARSIPullbackOpensShortOnOverboughtStretch(t *testing.T) {
	// steady climb: RSI 100, price above the lagging EMA
	ctx := &Context{
		Bar:     Bar{Close: 110},
		History: barsFromCloses([]float64{100, 102, 104, 106, 108}),
		Params:  pullbackParams(),
	}

	sig := (&EMARSIPullback{}).OnBar(ctx)
	if sig == nil {
		t.Fatal("expected a short entry on the overbought stretch")
	}
	if sig.Type != "OPEN" || sig.Direction != "SHORT" {
		t.Errorf("got %s %s, want OPEN SHORT", sig.Type, sig.Direction)
	}
	// short stop sits above entry, take below
	if sig.StopLoss <= 110 || sig.TakeProfit >= 110 {
		t.Errorf("stop %v / take %v wrong side of short entry 110", sig.StopLoss, sig.TakeProfit)
	}
}

func TestEMARSIPullbackClosesLongOnRecovery(t *testing.T) {
	ctx := &Context{
		Bar:      Bar{Close: 110},
		History:  barsFromCloses([]float64{100, 102, 104, 106, 108}),
		Position: &PositionInfo{Direction: "LONG", Size: 1000, AvgPrice: 95},
		Params:   pullbackParams(),
	}

	sig := (&EMARSIPullback{}).OnBar(ctx)
	if sig == nil || sig.Type != "CLOSE" {
		t.Fatalf("got %+v, want CLOSE", sig)
	}
}

func TestEMARSIPullbackClosesShortOnRecovery(t *testing.T) {
	ctx := &Context{
		Bar:      Bar{Close: 90},
		History:  barsFromCloses([]float64{100, 98, 96, 94, 92}),
		Position: &PositionInfo{Direction: "SHORT", Size: 1000, AvgPrice: 105},
		Params:   pullbackParams(),
	}

	sig := (&EMARSIPullback{}).OnBar(ctx)
	if sig == nil || sig.Type != "CLOSE" {
		t.Fatalf("got %+v, want CLOSE", sig)
	}
}

func TestEMARSIPullbackHoldsWhilePositioned(t *testing.T) {
	// oversold dip but already long: no re-entry
	ctx := &Context{
		Bar:      Bar{Close: 90},
		History:  barsFromCloses([]float64{100, 98, 96, 94, 92}),
		Position: &PositionInfo{Direction: "LONG", Size: 1000, AvgPrice: 95},
		Params:   pullbackParams(),
	}

	if sig := (&EMARSIPullback{}).OnBar(ctx); sig != nil {
		t.Errorf("expected nil while positioned, got %+v", sig)
	}
}

func TestEMARSIPullbackNeedsHistory(t *testing.T) {
	ctx := &Context{
		Bar:     Bar{Close: 90},
		History: barsFromCloses([]float64{100, 98}),
		Params:  pullbackParams(),
	}

	if sig := (&EMARSIPullback{}).OnBar(ctx); sig != nil {
		t.Errorf("expected nil without enough history, got %+v", sig)
	}
}
