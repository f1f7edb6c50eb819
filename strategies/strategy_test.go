package strategies

import "testing"

func TestAlwaysLong(t *testing.T) {
	tests := []struct {
		name     string
		position *PositionInfo
		orders   []OrderInfo
		wantOpen bool
	}{
		{name: "flat with no orders opens", wantOpen: true},
		{name: "already long holds", position: &PositionInfo{Direction: "LONG", Size: 100}},
		{name: "pending order holds", orders: []OrderInfo{{Side: "BUY", Quantity: 100, Status: "NEW"}}},
		{name: "flat position row still opens", position: &PositionInfo{Direction: "FLAT"}, wantOpen: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{
				Bar:      Bar{Close: 100},
				Position: tt.position,
				Orders:   tt.orders,
			}
			sig := (&AlwaysLong{}).OnBar(ctx)
			if tt.wantOpen {
				if sig == nil || sig.Type != "OPEN" || sig.Direction != "LONG" {
					t.Fatalf("got %+v, want OPEN LONG", sig)
				}
				if sig.StopLoss != 98 || sig.TakeProfit != 104 {
					t.Errorf("stop %v / take %v, want 98 / 104", sig.StopLoss, sig.TakeProfit)
				}
			} else if sig != nil {
				t.Errorf("expected nil, got %+v", sig)
			}
		})
	}
}

func TestResolveRegisteredStrategies(t *testing.T) {
	tests := []struct {
		module string
		class  string
	}{
		{module: "strategies.sma_trend1_live", class: "SMATrend1LiveStrategy"},
		{module: "strategies.ema_rsi_pullback", class: "EMARSIPullbackStrategy"},
		{module: "strategies.test_always_long", class: "TestAlwaysLongStrategy"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			f, err := Resolve(tt.module, tt.class)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if f() == nil {
				t.Error("factory returned nil strategy")
			}
		})
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	if _, err := Resolve("strategies.missing", "MissingStrategy"); err == nil {
		t.Error("expected an error for an unregistered strategy")
	}
}

func TestContextCloses(t *testing.T) {
	ctx := &Context{
		Bar:     Bar{Close: 4},
		History: barsFromCloses([]float64{1, 2, 3}),
	}
	closes := ctx.Closes()
	want := []float64{1, 2, 3, 4}
	if len(closes) != len(want) {
		t.Fatalf("len = %d, want %d", len(closes), len(want))
	}
	for i := range want {
		if closes[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, closes[i], want[i])
		}
	}
}

func TestContextPositionHelpers(t *testing.T) {
	long := &Context{Position: &PositionInfo{Direction: "LONG", Size: 100}}
	if !long.HasLong() || long.HasShort() {
		t.Error("LONG position misreported")
	}

	short := &Context{Position: &PositionInfo{Direction: "SHORT", Size: 100}}
	if short.HasLong() || !short.HasShort() {
		t.Error("SHORT position misreported")
	}

	flat := &Context{Position: &PositionInfo{Direction: "FLAT"}}
	if flat.HasLong() || flat.HasShort() {
		t.Error("FLAT position misreported")
	}

	var none *PositionInfo
	empty := &Context{Position: none}
	if empty.HasLong() || empty.HasShort() {
		t.Error("nil position misreported")
	}

	zeroSize := &Context{Position: &PositionInfo{Direction: "LONG", Size: 0}}
	if zeroSize.HasLong() {
		t.Error("zero-size LONG should not count as open")
	}
}

func TestParam(t *testing.T) {
	params := map[string]float64{"fast_period": 9}
	if got := Param(params, "fast_period", 20); got != 9 {
		t.Errorf("Param = %v, want 9", got)
	}
	if got := Param(params, "slow_period", 100); got != 100 {
		t.Errorf("Param default = %v, want 100", got)
	}
	if got := Param(nil, "anything", 7); got != 7 {
		t.Errorf("Param on nil map = %v, want 7", got)
	}
}
