package app

import (
	"encoding/json"
	"testing"

	models "marketpipe/database/models_pkg"
)

func TestComputeOrderSize(t *testing.T) {
	base := SizeInput{
		Equity:              100000,
		FreeCash:            200000,
		RiskPerTrade:        0.02,
		MaxDrawdownFraction: 0.20,
		LotSize:             100,
		EntryPrice:          101,
		StopLoss:            99,
		SizeMode:            "RISK_FRACTION",
		SizeValue:           1.0,
	}

	tests := []struct {
		name       string
		mutate     func(in *SizeInput)
		wantOK     bool
		wantReason string
		wantLots   int
	}{
		{
			// risk_span = 2/101, cash at risk = 2000, size_money = 101000,
			// lot notional = 10100 -> 10 lots
			name:     "nominal long sizing",
			mutate:   func(in *SizeInput) {},
			wantOK:   true,
			wantLots: 10,
		},
		{
			name:       "unsupported size mode",
			mutate:     func(in *SizeInput) { in.SizeMode = "FIXED_LOTS" },
			wantReason: "unsupported_size_mode",
		},
		{
			name:       "entry price required",
			mutate:     func(in *SizeInput) { in.EntryPrice = 0 },
			wantReason: "invalid_entry_price",
		},
		{
			name:       "stop loss required",
			mutate:     func(in *SizeInput) { in.StopLoss = 0 },
			wantReason: "stop_loss_required",
		},
		{
			name:       "stop equal to entry",
			mutate:     func(in *SizeInput) { in.StopLoss = 101 },
			wantReason: "invalid_risk_span",
		},
		{
			// risk_span = 25/100 > 0.20
			name: "stop wider than max drawdown",
			mutate: func(in *SizeInput) {
				in.EntryPrice = 100
				in.StopLoss = 75
			},
			wantReason: "too_wide_stop",
		},
		{
			// risk_span = 20/100 == 0.20, boundary is accepted
			name: "stop exactly at max drawdown",
			mutate: func(in *SizeInput) {
				in.EntryPrice = 100
				in.StopLoss = 80
			},
			wantOK:   true,
			wantLots: 1,
		},
		{
			name:       "risk per trade required",
			mutate:     func(in *SizeInput) { in.RiskPerTrade = 0 },
			wantReason: "invalid_risk_per_trade",
		},
		{
			// size_value above 1 clamps to 1, same result as nominal
			name:     "size value clamped high",
			mutate:   func(in *SizeInput) { in.SizeValue = 5 },
			wantOK:   true,
			wantLots: 10,
		},
		{
			// half fraction halves the cash at risk: 5 lots
			name:     "fractional size value",
			mutate:   func(in *SizeInput) { in.SizeValue = 0.5 },
			wantOK:   true,
			wantLots: 5,
		},
		{
			name:       "size value clamped to zero",
			mutate:     func(in *SizeInput) { in.SizeValue = -1 },
			wantReason: "size_money_non_positive",
		},
		{
			// 10 lots need 101000 but only 50000 is free
			name:       "insufficient cash",
			mutate:     func(in *SizeInput) { in.FreeCash = 50000 },
			wantReason: "insufficient_cash",
		},
		{
			// free cash exactly covers the notional
			name:       "free cash equals required cash",
			mutate:     func(in *SizeInput) { in.FreeCash = 101000 },
			wantOK:     true,
			wantLots:   10,
		},
		{
			// tiny equity cannot afford one lot
			name: "size too small for one lot",
			mutate: func(in *SizeInput) {
				in.Equity = 100
				in.FreeCash = 100
			},
			wantReason: "size_too_small",
		},
		{
			name: "short side uses absolute risk span",
			mutate: func(in *SizeInput) {
				in.EntryPrice = 99
				in.StopLoss = 101
			},
			wantOK: true,
			// risk_span = 2/99, size_money = 99000, lot notional 9900 -> 10
			wantLots: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			got := ComputeOrderSize(in)
			if got.OK != tt.wantOK {
				t.Fatalf("OK = %v (reason %q), want %v", got.OK, got.Reason, tt.wantOK)
			}
			if !tt.wantOK && got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if tt.wantOK && got.Lots != tt.wantLots {
				t.Errorf("Lots = %d, want %d", got.Lots, tt.wantLots)
			}
		})
	}
}

func TestComputeOrderSizeLotSizeFallback(t *testing.T) {
	in := SizeInput{
		Equity:              100000,
		FreeCash:            200000,
		RiskPerTrade:        0.02,
		MaxDrawdownFraction: 0.20,
		LotSize:             0, // treated as 1
		EntryPrice:          101,
		StopLoss:            99,
		SizeMode:            "RISK_FRACTION",
		SizeValue:           1.0,
	}
	got := ComputeOrderSize(in)
	if !got.OK {
		t.Fatalf("expected OK, got reason %q", got.Reason)
	}
	// same cash at risk but lot notional of one share: 1000 shares
	if got.Lots != 1000 {
		t.Errorf("Lots = %d, want 1000", got.Lots)
	}
}

func TestRejectDetails(t *testing.T) {
	sig := &models.LiveSignal{ID: 42, SignalType: "OPEN"}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(rejectDetails(sig, "insufficient_cash")), &got); err != nil {
		t.Fatalf("details are not valid JSON: %v", err)
	}
	if got["reason"] != "insufficient_cash" {
		t.Errorf("reason = %v, want insufficient_cash", got["reason"])
	}
	if got["signal_id"] != float64(42) {
		t.Errorf("signal_id = %v, want 42", got["signal_id"])
	}
	if got["signal_type"] != "OPEN" {
		t.Errorf("signal_type = %v, want OPEN", got["signal_type"])
	}
}
