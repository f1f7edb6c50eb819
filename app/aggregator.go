package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"marketpipe/cache"
	"marketpipe/config"
	"marketpipe/database"
	models "marketpipe/database/models_pkg"
)

const minuteBatchSize = 5000

// buildingBar is an aggregated bar still collecting minutes
type buildingBar struct {
	symbolID int64
	start    time.Time
	end      time.Time
	open     float64
	high     float64
	low      float64
	close    float64
	volume   float64
}

func (b *buildingBar) updateWithMinute(o, h, l, c, v float64) {
	b.high = math.Max(b.high, h)
	b.low = math.Min(b.low, l)
	b.close = c
	b.volume += v
}

// Aggregator tails candles_1m past the datafeed watermark, rolls minutes into
// higher-timeframe bars, flags gaps, and marks gap_mode on positions caught on
// the wrong side of a gap.
type Aggregator struct {
	repo    *database.Repository
	symbols *cache.SymbolCache
	cfg     config.PipelineConfig
	done    chan bool

	watermark time.Time
	current   map[string]map[int64]*buildingBar
	prevClose map[string]map[int64]float64
}

// NewAggregator creates the aggregator daemon
func NewAggregator(repo *database.Repository, symbols *cache.SymbolCache, cfg config.PipelineConfig) *Aggregator {
	current := make(map[string]map[int64]*buildingBar)
	prevClose := make(map[string]map[int64]float64)
	for _, tf := range database.Timeframes {
		current[tf.Code] = make(map[int64]*buildingBar)
		prevClose[tf.Code] = make(map[int64]float64)
	}
	return &Aggregator{
		repo:      repo,
		symbols:   symbols,
		cfg:       cfg,
		done:      make(chan bool),
		current:   current,
		prevClose: prevClose,
	}
}

// Start begins the aggregation loop
func (a *Aggregator) Start() {
	log.Println("🕯️  Datafeed aggregator started")

	if err := a.loadState(); err != nil {
		log.Printf("❌ Aggregator state load failed: %v", err)
		a.logError("aggregator state load failed: "+err.Error(), database.SeverityCritical)
	}

	ticker := time.NewTicker(a.cfg.AggregatorPoll)
	defer ticker.Stop()

	a.poll()

	for {
		select {
		case <-ticker.C:
			a.poll()
		case <-a.done:
			log.Println("🕯️  Datafeed aggregator stopped")
			return
		}
	}
}

// Stop gracefully stops the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

// loadState restores the minute watermark and the last published close per
// (timeframe, symbol) so gap detection survives restarts
func (a *Aggregator) loadState() error {
	st, err := a.repo.Control.GetDatafeedState()
	if err != nil {
		return err
	}
	if st != nil && st.Last1mTimestamp != nil {
		a.watermark = st.Last1mTimestamp.UTC()
	} else {
		minTs, err := a.repo.Candles.MinMinuteTimestamp()
		if err != nil {
			return err
		}
		if minTs != nil {
			a.watermark = minTs.UTC().Add(-time.Minute)
		} else {
			a.watermark = time.Now().UTC().Add(-24 * time.Hour)
		}
		if err := a.repo.Control.SetLast1mTimestamp(a.watermark); err != nil {
			return err
		}
	}
	log.Printf("🕯️  Aggregator watermark starts at %s", a.watermark.Format(time.RFC3339))

	for _, tf := range database.Timeframes {
		closes, err := a.repo.Candles.LatestCloses(tf.Table)
		if err != nil {
			return err
		}
		for _, pc := range closes {
			a.prevClose[tf.Code][pc.SymbolID] = pc.Close
		}
	}
	return nil
}

// poll processes one batch of new minutes. The batch is one transaction:
// every bar insert and the watermark land together or not at all, so a
// failed batch is re-read in full on the next tick.
func (a *Aggregator) poll() {
	rows, err := a.repo.Candles.ListMinutesAfter(a.watermark, minuteBatchSize)
	if err != nil {
		log.Printf("❌ Aggregator minute poll failed: %v", err)
		a.logError("minute poll failed: "+err.Error(), database.SeverityError)
		return
	}

	if len(rows) > 0 {
		log.Printf("🕯️  New minute candles: %d", len(rows))
		snapshot := a.snapshotState()
		watermark := a.watermark
		err := a.repo.Transaction(func(tx *database.Repository) error {
			for i := range rows {
				m := &rows[i]
				if ts := m.Timestamp.UTC(); ts.After(watermark) {
					watermark = ts
				}
				if err := a.processMinute(tx, m); err != nil {
					return err
				}
			}
			return tx.Control.SetLast1mTimestamp(watermark)
		})
		if err != nil {
			// rolled back: restore the building bars and prev closes so the
			// retry folds the replayed minutes into the same state
			log.Printf("❌ Aggregator minute batch failed, rolled back: %v", err)
			a.logError("minute batch failed: "+err.Error(), database.SeverityError)
			a.restoreState(snapshot)
			return
		}
		a.watermark = watermark
	}

	if err := a.repo.Control.Heartbeat(database.ServiceDataFeed, "ok", nil); err != nil {
		log.Printf("⚠️  Aggregator heartbeat failed: %v", err)
	}
}

// aggState is a copy of the aggregator's in-memory state taken before a batch
type aggState struct {
	current   map[string]map[int64]*buildingBar
	prevClose map[string]map[int64]float64
}

// snapshotState deep-copies the building bars and previous closes so a failed
// batch can roll the in-memory state back alongside the transaction
func (a *Aggregator) snapshotState() aggState {
	st := aggState{
		current:   make(map[string]map[int64]*buildingBar, len(a.current)),
		prevClose: make(map[string]map[int64]float64, len(a.prevClose)),
	}
	for tf, bars := range a.current {
		st.current[tf] = make(map[int64]*buildingBar, len(bars))
		for id, bar := range bars {
			cp := *bar
			st.current[tf][id] = &cp
		}
	}
	for tf, closes := range a.prevClose {
		st.prevClose[tf] = make(map[int64]float64, len(closes))
		for id, c := range closes {
			st.prevClose[tf][id] = c
		}
	}
	return st
}

func (a *Aggregator) restoreState(st aggState) {
	a.current = st.current
	a.prevClose = st.prevClose
}

// processMinute folds one minute candle into every timeframe's building bar,
// closing bars whose bucket the minute has left behind
func (a *Aggregator) processMinute(tx *database.Repository, m *models.MinuteCandle) error {
	ts := m.Timestamp.UTC()

	for _, tf := range database.Timeframes {
		start := BucketStart(ts, tf.Minutes)
		end := BucketEnd(start, tf.Minutes)

		cur := a.current[tf.Code][m.SymbolID]
		if cur == nil {
			a.current[tf.Code][m.SymbolID] = &buildingBar{
				symbolID: m.SymbolID,
				start:    start, end: end,
				open: m.Open, high: m.High, low: m.Low, close: m.Close, volume: m.Volume,
			}
			continue
		}

		if !ts.Before(cur.end) {
			if err := a.closeBar(tx, tf, cur); err != nil {
				return err
			}
			a.current[tf.Code][m.SymbolID] = &buildingBar{
				symbolID: m.SymbolID,
				start:    start, end: end,
				open: m.Open, high: m.High, low: m.Low, close: m.Close, volume: m.Volume,
			}
		} else {
			cur.updateWithMinute(m.Open, m.High, m.Low, m.Close, m.Volume)
		}
	}
	return nil
}

// closeBar publishes a finished bar with its gap flags. An insert failure
// aborts the whole batch; gap marking failures are logged but never abort
// bar emission.
func (a *Aggregator) closeBar(tx *database.Repository, tf database.Timeframe, bar *buildingBar) error {
	prev, hasPrev := a.prevClose[tf.Code][bar.symbolID]
	isGap, gapDir := DetectGap(prev, hasPrev, bar.close, a.cfg.GapThreshold)

	row := &models.AggregatedCandle{
		SymbolID:  bar.symbolID,
		Timestamp: bar.end, // bar timestamp is the bucket close
		Open:      bar.open,
		High:      bar.high,
		Low:       bar.low,
		Close:     bar.close,
		Volume:    bar.volume,
		IsGap:     isGap,
	}
	if isGap {
		row.GapDir = &gapDir
	}

	if err := tx.Candles.InsertBar(tf.Table, row); err != nil {
		return fmt.Errorf("bar insert (%s symbol %d): %w", tf.Code, bar.symbolID, err)
	}

	a.prevClose[tf.Code][bar.symbolID] = bar.close
	mtxBarsClosed.WithLabelValues(tf.Code).Inc()

	if isGap {
		mtxGapsDetected.WithLabelValues(tf.Code, gapDir).Inc()
		log.Printf("⚡ Gap %s on symbol %d (%s), close %.4f vs prev %.4f",
			gapDir, bar.symbolID, tf.Code, bar.close, prev)
		a.markGapPositions(tx, bar.symbolID, gapDir)
	}
	return nil
}

// markGapPositions flags gap_mode on positions caught against the gap:
// LONG against a DOWN gap, SHORT against an UP gap
func (a *Aggregator) markGapPositions(tx *database.Repository, symbolID int64, gapDir string) {
	sym, err := a.symbols.ByID(context.Background(), symbolID)
	if err != nil || sym == nil {
		if err != nil {
			log.Printf("⚠️  Gap marking symbol lookup failed: %v", err)
		}
		return
	}

	positions, err := tx.Positions.ListOpenBySymbol(sym.Ticker)
	if err != nil {
		log.Printf("⚠️  Gap marking position scan failed: %v", err)
		a.logError("gap position scan failed: "+err.Error(), database.SeverityError)
		return
	}

	var toMark []int64
	for _, p := range positions {
		if (p.Direction == database.DirectionLong && gapDir == database.GapDown) ||
			(p.Direction == database.DirectionShort && gapDir == database.GapUp) {
			toMark = append(toMark, p.ID)
		}
	}
	if len(toMark) == 0 {
		return
	}

	if err := tx.Positions.FlagGapMode(toMark); err != nil {
		log.Printf("⚠️  gap_mode update failed: %v", err)
		a.logError("gap_mode update failed: "+err.Error(), database.SeverityError)
		return
	}
	log.Printf("⚡ gap_mode set on %d position(s) of %s", len(toMark), sym.Ticker)
}

func (a *Aggregator) logError(message, severity string) {
	e := &models.LiveError{
		Source:   database.SourceDataFeed,
		Severity: severity,
		Message:  message,
	}
	if err := a.repo.Control.LogError(e); err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}

// BucketStart floors a UTC timestamp to the start of its bucket. Daily
// buckets start at UTC midnight; intraday buckets tile the day from midnight.
func BucketStart(ts time.Time, minutes int) time.Time {
	ts = ts.UTC()
	if minutes >= 1440 {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	total := ts.Hour()*60 + ts.Minute()
	start := (total / minutes) * minutes
	return time.Date(ts.Year(), ts.Month(), ts.Day(), start/60, start%60, 0, 0, time.UTC)
}

// BucketEnd is the exclusive right edge of a bucket
func BucketEnd(start time.Time, minutes int) time.Time {
	return start.Add(time.Duration(minutes) * time.Minute)
}

// DetectGap compares a close against the previous published close. A bar is a
// gap when the relative move reaches the threshold.
func DetectGap(prevClose float64, hasPrev bool, close, threshold float64) (bool, string) {
	if !hasPrev || prevClose <= 0 {
		return false, ""
	}
	change := math.Abs(close-prevClose) / prevClose
	if change < threshold {
		return false, ""
	}
	if close > prevClose {
		return true, database.GapUp
	}
	return true, database.GapDown
}
