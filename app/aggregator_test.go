package app

import (
	"testing"
	"time"

	"marketpipe/config"
)

func TestBucketStart(t *testing.T) {
	tests := []struct {
		name    string
		ts      time.Time
		minutes int
		want    time.Time
	}{
		{
			name:    "5m mid-bucket",
			ts:      time.Date(2026, 3, 2, 10, 7, 0, 0, time.UTC),
			minutes: 5,
			want:    time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
		},
		{
			name:    "5m on boundary",
			ts:      time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
			minutes: 5,
			want:    time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
		},
		{
			name:    "15m crosses hour floor",
			ts:      time.Date(2026, 3, 2, 10, 59, 0, 0, time.UTC),
			minutes: 15,
			want:    time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC),
		},
		{
			name:    "4h tiles from midnight",
			ts:      time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC),
			minutes: 240,
			want:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "1d floors to UTC midnight",
			ts:      time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC),
			minutes: 1440,
			want:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "non-UTC input is normalized",
			ts:      time.Date(2026, 3, 2, 17, 7, 0, 0, time.FixedZone("WIB", 7*3600)),
			minutes: 60,
			want:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketStart(tt.ts, tt.minutes)
			if !got.Equal(tt.want) {
				t.Errorf("BucketStart(%v, %d) = %v, want %v", tt.ts, tt.minutes, got, tt.want)
			}
		})
	}
}

func TestBucketEnd(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	end := BucketEnd(start, 5)
	want := time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Errorf("BucketEnd = %v, want %v", end, want)
	}

	// a minute landing exactly on the end belongs to the next bucket
	if BucketStart(end, 5).Equal(start) {
		t.Error("bucket end should start the next bucket, not extend the current one")
	}
}

func TestDetectGap(t *testing.T) {
	tests := []struct {
		name      string
		prevClose float64
		hasPrev   bool
		close     float64
		wantGap   bool
		wantDir   string
	}{
		{name: "no previous close", prevClose: 0, hasPrev: false, close: 100, wantGap: false},
		{name: "small move up", prevClose: 100, hasPrev: true, close: 110, wantGap: false},
		{name: "exactly at threshold up", prevClose: 100, hasPrev: true, close: 120, wantGap: true, wantDir: "UP"},
		{name: "above threshold up", prevClose: 100, hasPrev: true, close: 125, wantGap: true, wantDir: "UP"},
		{name: "just under threshold down", prevClose: 100, hasPrev: true, close: 80.01, wantGap: false},
		{name: "at threshold down", prevClose: 100, hasPrev: true, close: 80, wantGap: true, wantDir: "DOWN"},
		{name: "zero previous close ignored", prevClose: 0, hasPrev: true, close: 50, wantGap: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotGap, gotDir := DetectGap(tt.prevClose, tt.hasPrev, tt.close, 0.20)
			if gotGap != tt.wantGap || gotDir != tt.wantDir {
				t.Errorf("DetectGap(%v, %v, %v) = (%v, %q), want (%v, %q)",
					tt.prevClose, tt.hasPrev, tt.close, gotGap, gotDir, tt.wantGap, tt.wantDir)
			}
		})
	}
}

func TestBuildingBarUpdate(t *testing.T) {
	bar := &buildingBar{
		symbolID: 1,
		open:     100, high: 105, low: 98, close: 103, volume: 1000,
	}

	bar.updateWithMinute(103, 110, 102, 108, 500)
	if bar.open != 100 {
		t.Errorf("open should stay at first minute's open, got %v", bar.open)
	}
	if bar.high != 110 {
		t.Errorf("high = %v, want 110", bar.high)
	}
	if bar.low != 98 {
		t.Errorf("low = %v, want 98", bar.low)
	}
	if bar.close != 108 {
		t.Errorf("close = %v, want 108", bar.close)
	}
	if bar.volume != 1500 {
		t.Errorf("volume = %v, want 1500", bar.volume)
	}

	// a lower low replaces the running low
	bar.updateWithMinute(108, 109, 95, 96, 200)
	if bar.low != 95 {
		t.Errorf("low = %v, want 95", bar.low)
	}
	if bar.close != 96 {
		t.Errorf("close = %v, want 96", bar.close)
	}
}

func TestSnapshotRestoreState(t *testing.T) {
	a := NewAggregator(nil, nil, config.PipelineConfig{})
	a.current["5m"][7] = &buildingBar{
		symbolID: 7,
		open:     100, high: 105, low: 98, close: 103, volume: 1000,
	}
	a.prevClose["5m"][7] = 101
	a.prevClose["1h"][9] = 250

	snapshot := a.snapshotState()

	// mutate the live state the way a batch would, then roll it back
	a.current["5m"][7].updateWithMinute(103, 120, 90, 119, 400)
	a.current["5m"][8] = &buildingBar{symbolID: 8, open: 50, high: 50, low: 50, close: 50, volume: 10}
	a.prevClose["5m"][7] = 119
	delete(a.prevClose, "1h")

	a.restoreState(snapshot)

	bar := a.current["5m"][7]
	if bar == nil {
		t.Fatal("building bar lost across restore")
	}
	if bar.high != 105 || bar.low != 98 || bar.close != 103 || bar.volume != 1000 {
		t.Errorf("building bar not restored: %+v", bar)
	}
	if _, ok := a.current["5m"][8]; ok {
		t.Error("bar opened by the failed batch survived restore")
	}
	if a.prevClose["5m"][7] != 101 {
		t.Errorf("prevClose = %v, want 101", a.prevClose["5m"][7])
	}
	if a.prevClose["1h"][9] != 250 {
		t.Errorf("prevClose[1h] = %v, want 250", a.prevClose["1h"][9])
	}
}
