package strategies

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
		wantOK bool
	}{
		{name: "simple average", values: []float64{1, 2, 3, 4, 5}, period: 5, want: 3, wantOK: true},
		{name: "tail only", values: []float64{100, 1, 2, 3}, period: 3, want: 2, wantOK: true},
		{name: "not enough history", values: []float64{1, 2}, period: 3, wantOK: false},
		{name: "zero period", values: []float64{1, 2, 3}, period: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(tt.values, tt.period)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SMA = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	// constant series converges to the constant regardless of span
	got, ok := EMA([]float64{50, 50, 50, 50}, 10)
	if !ok || math.Abs(got-50) > 1e-9 {
		t.Errorf("EMA of constant series = %v (ok=%v), want 50", got, ok)
	}

	// single value seeds the average
	got, ok = EMA([]float64{42}, 5)
	if !ok || got != 42 {
		t.Errorf("EMA of single value = %v (ok=%v), want 42", got, ok)
	}

	if _, ok := EMA(nil, 5); ok {
		t.Error("EMA of empty series should not be ok")
	}

	// rising series sits between the first and last value, closer to the tail
	got, _ = EMA([]float64{10, 20, 30, 40}, 3)
	if got <= 10 || got >= 40 {
		t.Errorf("EMA of rising series = %v, want inside (10, 40)", got)
	}
	if got < 25 {
		t.Errorf("EMA = %v, should weight recent values more", got)
	}
}

func TestRSI(t *testing.T) {
	// all gains pins RSI at the top
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	got, ok := RSI(up, 7)
	if !ok || got < 99 {
		t.Errorf("RSI of all-gain series = %v (ok=%v), want ~100", got, ok)
	}

	// all losses pins it at the bottom
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	got, ok = RSI(down, 7)
	if !ok || got > 1 {
		t.Errorf("RSI of all-loss series = %v (ok=%v), want ~0", got, ok)
	}

	// balanced gains and losses land at 50
	flatish := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10}
	got, ok = RSI(flatish, 8)
	if !ok || math.Abs(got-50) > 1 {
		t.Errorf("RSI of balanced series = %v (ok=%v), want ~50", got, ok)
	}

	if _, ok := RSI([]float64{1, 2, 3}, 7); ok {
		t.Error("RSI without enough history should not be ok")
	}
}
