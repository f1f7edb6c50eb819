package helpers

import "testing"

func TestWholeLots(t *testing.T) {
	tests := []struct {
		name    string
		shares  float64
		lotSize int
		want    int
	}{
		{name: "exact lots", shares: 1000, lotSize: 100, want: 10},
		{name: "floors the remainder", shares: 1099, lotSize: 100, want: 10},
		{name: "less than one lot", shares: 99, lotSize: 100, want: 0},
		{name: "negative shares clamp to zero", shares: -500, lotSize: 100, want: 0},
		{name: "zero lot size treated as one", shares: 42.9, lotSize: 0, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WholeLots(tt.shares, tt.lotSize); got != tt.want {
				t.Errorf("WholeLots(%v, %d) = %d, want %d", tt.shares, tt.lotSize, got, tt.want)
			}
		})
	}
}

func TestSharesForLots(t *testing.T) {
	if got := SharesForLots(10, 100); got != 1000 {
		t.Errorf("SharesForLots(10, 100) = %v, want 1000", got)
	}
	if got := SharesForLots(-3, 100); got != 0 {
		t.Errorf("negative lots should yield 0, got %v", got)
	}
	if got := SharesForLots(5, 0); got != 5 {
		t.Errorf("zero lot size treated as one, got %v", got)
	}
}
