package app

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNextPositionOpenFromFlat(t *testing.T) {
	tests := []struct {
		name          string
		side          string
		wantDirection string
	}{
		{name: "buy opens long", side: "BUY", wantDirection: "LONG"},
		{name: "sell opens short", side: "SELL", wantDirection: "SHORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPosition(PositionState{Direction: "FLAT"}, tt.side, 1000, 250)
			if got.Direction != tt.wantDirection {
				t.Errorf("Direction = %q, want %q", got.Direction, tt.wantDirection)
			}
			if got.Quantity != 1000 || got.AvgPrice != 250 {
				t.Errorf("got qty %v @ %v, want 1000 @ 250", got.Quantity, got.AvgPrice)
			}
			if got.RealizedPnL != 0 {
				t.Errorf("RealizedPnL = %v, want 0", got.RealizedPnL)
			}
		})
	}
}

func TestNextPositionAddAveragesIn(t *testing.T) {
	pos := PositionState{Direction: "LONG", Quantity: 1000, AvgPrice: 100}

	got := NextPosition(pos, "BUY", 500, 112)
	if got.Direction != "LONG" {
		t.Fatalf("Direction = %q, want LONG", got.Direction)
	}
	if got.Quantity != 1500 {
		t.Errorf("Quantity = %v, want 1500", got.Quantity)
	}
	// (100*1000 + 112*500) / 1500 = 104
	if !almostEqual(got.AvgPrice, 104) {
		t.Errorf("AvgPrice = %v, want 104", got.AvgPrice)
	}
}

func TestNextPositionPartialClose(t *testing.T) {
	pos := PositionState{Direction: "LONG", Quantity: 1000, AvgPrice: 100}

	got := NextPosition(pos, "SELL", 400, 110)
	if got.Direction != "LONG" {
		t.Fatalf("Direction = %q, want LONG", got.Direction)
	}
	if got.Quantity != 600 {
		t.Errorf("Quantity = %v, want 600", got.Quantity)
	}
	if got.AvgPrice != 100 {
		t.Errorf("AvgPrice = %v, want unchanged 100", got.AvgPrice)
	}
	// (110 - 100) * 400
	if !almostEqual(got.RealizedPnL, 4000) {
		t.Errorf("RealizedPnL = %v, want 4000", got.RealizedPnL)
	}
}

func TestNextPositionFullCloseGoesFlat(t *testing.T) {
	pos := PositionState{Direction: "LONG", Quantity: 1000, AvgPrice: 100, RealizedPnL: 500}

	got := NextPosition(pos, "SELL", 1000, 95)
	if got.Direction != "FLAT" {
		t.Fatalf("Direction = %q, want FLAT", got.Direction)
	}
	if got.Quantity != 0 || got.AvgPrice != 0 {
		t.Errorf("got qty %v @ %v, want zeros", got.Quantity, got.AvgPrice)
	}
	// prior 500 plus (95-100)*1000
	if !almostEqual(got.RealizedPnL, -4500) {
		t.Errorf("RealizedPnL = %v, want -4500", got.RealizedPnL)
	}
}

func TestNextPositionOverfillClosesAtMost(t *testing.T) {
	// a fill larger than the open quantity only closes what is there
	pos := PositionState{Direction: "LONG", Quantity: 300, AvgPrice: 100}

	got := NextPosition(pos, "SELL", 1000, 120)
	if got.Direction != "FLAT" {
		t.Fatalf("Direction = %q, want FLAT", got.Direction)
	}
	// (120 - 100) * 300
	if !almostEqual(got.RealizedPnL, 6000) {
		t.Errorf("RealizedPnL = %v, want 6000", got.RealizedPnL)
	}
}

func TestNextPositionShortSide(t *testing.T) {
	pos := PositionState{Direction: "SHORT", Quantity: 1000, AvgPrice: 200}

	grown := NextPosition(pos, "SELL", 1000, 210)
	if grown.Direction != "SHORT" || grown.Quantity != 2000 {
		t.Fatalf("grow: got %q x%v, want SHORT x2000", grown.Direction, grown.Quantity)
	}
	if !almostEqual(grown.AvgPrice, 205) {
		t.Errorf("grow: AvgPrice = %v, want 205", grown.AvgPrice)
	}

	closed := NextPosition(grown, "BUY", 2000, 190)
	if closed.Direction != "FLAT" {
		t.Fatalf("close: Direction = %q, want FLAT", closed.Direction)
	}
	// (205 - 190) * 2000
	if !almostEqual(closed.RealizedPnL, 30000) {
		t.Errorf("close: RealizedPnL = %v, want 30000", closed.RealizedPnL)
	}
}

func TestSettleFill(t *testing.T) {
	tests := []struct {
		name         string
		freeCash     float64
		usedMargin   float64
		side         string
		quantity     float64
		price        float64
		feeRate      float64
		wantFreeCash float64
		wantEquity   float64
		wantFee      float64
	}{
		{
			name:     "buy pays notional plus fee",
			freeCash: 1000000, side: "BUY", quantity: 1000, price: 100, feeRate: 0.0001,
			wantFreeCash: 899990, wantEquity: 899990, wantFee: 10,
		},
		{
			name:     "sell collects notional minus fee",
			freeCash: 1000000, side: "SELL", quantity: 1000, price: 100, feeRate: 0.0001,
			wantFreeCash: 1099990, wantEquity: 1099990, wantFee: 10,
		},
		{
			name:     "equity includes used margin",
			freeCash: 1000000, usedMargin: 50000, side: "BUY", quantity: 1000, price: 100, feeRate: 0.0001,
			wantFreeCash: 899990, wantEquity: 949990, wantFee: 10,
		},
		{
			name:     "zero fee rate",
			freeCash: 500000, side: "BUY", quantity: 200, price: 1250, feeRate: 0,
			wantFreeCash: 250000, wantEquity: 250000, wantFee: 0,
		},
		{
			name:     "fractional fee kept exact",
			freeCash: 10000, side: "SELL", quantity: 3, price: 333.33, feeRate: 0.0001,
			wantFreeCash: 10999.8900001, wantEquity: 10999.8900001, wantFee: 0.0999999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SettleFill(tt.freeCash, tt.usedMargin, tt.side, tt.quantity, tt.price, tt.feeRate)
			if !almostEqual(got.FreeCash, tt.wantFreeCash) {
				t.Errorf("FreeCash = %v, want %v", got.FreeCash, tt.wantFreeCash)
			}
			if !almostEqual(got.Equity, tt.wantEquity) {
				t.Errorf("Equity = %v, want %v", got.Equity, tt.wantEquity)
			}
			if !almostEqual(got.Fee, tt.wantFee) {
				t.Errorf("Fee = %v, want %v", got.Fee, tt.wantFee)
			}
		})
	}
}
