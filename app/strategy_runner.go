package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"marketpipe/cache"
	"marketpipe/config"
	"marketpipe/database"
	models "marketpipe/database/models_pkg"
	"marketpipe/database/universe"
	"marketpipe/strategies"
)

// StrategyRunner tails the aggregated candle tables past per-timeframe
// watermarks, builds a context for every enabled universe binding, calls the
// strategy, and persists any returned signal. One bad strategy or bar never
// stops the loop.
type StrategyRunner struct {
	repo    *database.Repository
	symbols *cache.SymbolCache
	cfg     config.PipelineConfig
	done    chan bool

	// instance cache per universe id; nil entries are cached resolution
	// failures so a broken catalog row is logged once, not every bar
	instances map[int64]strategies.Strategy
}

// NewStrategyRunner creates the strategy runner daemon
func NewStrategyRunner(repo *database.Repository, symbols *cache.SymbolCache, cfg config.PipelineConfig) *StrategyRunner {
	return &StrategyRunner{
		repo:      repo,
		symbols:   symbols,
		cfg:       cfg,
		done:      make(chan bool),
		instances: make(map[int64]strategies.Strategy),
	}
}

// Start begins the runner loop
func (sr *StrategyRunner) Start() {
	log.Printf("🧠 Strategy runner started (registered: %v)", strategies.Registered())

	ticker := time.NewTicker(sr.cfg.RunnerPoll)
	defer ticker.Stop()

	sr.poll()

	for {
		select {
		case <-ticker.C:
			sr.poll()
		case <-sr.done:
			log.Println("🧠 Strategy runner stopped")
			return
		}
	}
}

// Stop gracefully stops the runner
func (sr *StrategyRunner) Stop() {
	close(sr.done)
}

func (sr *StrategyRunner) poll() {
	for _, tf := range database.Timeframes {
		if err := sr.processTimeframe(tf); err != nil {
			log.Printf("❌ Runner %s failed: %v", tf.Code, err)
			sr.logError("timeframe poll failed: "+err.Error(), database.SeverityError,
				database.SourceStrategyRunner, nil, nil, &tf.Code)
		}
	}
	if err := sr.repo.Control.Heartbeat(database.ServiceStrategyRunner, "ok", nil); err != nil {
		log.Printf("⚠️  Runner heartbeat failed: %v", err)
	}
}

// processTimeframe handles every new closed bar of one timeframe and advances
// its bar_state watermark
func (sr *StrategyRunner) processTimeframe(tf database.Timeframe) error {
	st, err := sr.repo.Control.GetBarState(database.ServiceStrategyRunner, tf.Code)
	if err != nil {
		return err
	}
	var after time.Time
	if st != nil && st.LastBarTimestamp != nil {
		after = st.LastBarTimestamp.UTC()
	}

	bars, err := sr.repo.Candles.ListBarsAfter(tf.Table, after, sr.cfg.SignalBatchSize)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	log.Printf("🧠 New %s bars: %d", tf.Code, len(bars))

	lastTs := after
	for i := range bars {
		bar := &bars[i]
		sr.processBar(tf, bar)
		if bar.Timestamp.After(lastTs) {
			lastTs = bar.Timestamp.UTC()
		}
	}

	if lastTs.After(after) {
		return sr.repo.Control.SetBarState(database.ServiceStrategyRunner, tf.Code, lastTs)
	}
	return nil
}

// processBar dispatches one closed bar to every enabled strategy bound to its
// (symbol, timeframe)
func (sr *StrategyRunner) processBar(tf database.Timeframe, bar *models.AggregatedCandle) {
	sym, err := sr.symbols.ByID(context.Background(), bar.SymbolID)
	if err != nil || sym == nil {
		if err != nil {
			log.Printf("⚠️  Symbol lookup failed for id %d: %v", bar.SymbolID, err)
		} else {
			log.Printf("⚠️  No ticker for symbol_id %d, skipping bar", bar.SymbolID)
		}
		return
	}

	bindings, err := sr.repo.Universe.ListEnabled(sym.Ticker, tf.Code)
	if err != nil {
		log.Printf("❌ Universe lookup failed (%s %s): %v", sym.Ticker, tf.Code, err)
		sr.logError("universe lookup failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, nil, &sym.Ticker, &tf.Code)
		return
	}
	if len(bindings) == 0 {
		return
	}

	history, err := sr.loadHistory(tf, bar)
	if err != nil {
		log.Printf("❌ History load failed (%s %s): %v", sym.Ticker, tf.Code, err)
		sr.logError("history load failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, nil, &sym.Ticker, &tf.Code)
		return
	}

	barInfo := toBarInfo(bar)
	for i := range bindings {
		sr.runStrategy(&bindings[i], sym.Ticker, tf, barInfo, history, bar)
	}
}

// runStrategy builds the context for one universe binding, calls OnBar, and
// persists a returned signal. Strategy failures are contained per binding.
func (sr *StrategyRunner) runStrategy(b *universe.Binding, ticker string, tf database.Timeframe,
	bar strategies.Bar, history []strategies.Bar, raw *models.AggregatedCandle) {

	su := &b.Universe

	inst := sr.strategyInstance(b, ticker, tf.Code)
	if inst == nil {
		return
	}

	pos, err := sr.repo.Positions.Get(su.ID, ticker, tf.Code)
	if err != nil {
		log.Printf("❌ Position load failed (universe %d): %v", su.ID, err)
		sr.logError("position load failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, &su.ID, &ticker, &tf.Code)
		return
	}
	openOrders, err := sr.repo.Orders.ListOpenByUniverse(su.ID)
	if err != nil {
		log.Printf("❌ Orders load failed (universe %d): %v", su.ID, err)
		sr.logError("orders load failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, &su.ID, &ticker, &tf.Code)
		return
	}

	ctx := &strategies.Context{
		Symbol:       ticker,
		Timeframe:    tf.Code,
		Bar:          bar,
		History:      history,
		Position:     toPositionInfo(pos),
		Orders:       toOrderInfos(openOrders),
		Params:       parseParams(su.ParamsJSON),
		RiskPerTrade: su.RiskPerTrade,
		GapThreshold: su.GapThresholdFraction,
	}

	signal := sr.callOnBar(inst, ctx, su, ticker, tf.Code)
	if signal == nil {
		return
	}
	if signal.Type == "" {
		sr.logError("strategy returned signal without type", database.SeverityWarning,
			database.SourceStrategy, &su.ID, &ticker, &tf.Code)
		return
	}

	// bar replay after a crash must not duplicate signals
	exists, err := sr.repo.Signals.ExistsForBar(su.ID, raw.Timestamp)
	if err != nil {
		log.Printf("❌ Signal dedup check failed (universe %d): %v", su.ID, err)
		sr.logError("signal dedup check failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, &su.ID, &ticker, &tf.Code)
		return
	}
	if exists {
		return
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		sr.logError("signal marshal failed: "+err.Error(), database.SeverityError,
			database.SourceStrategy, &su.ID, &ticker, &tf.Code)
		return
	}

	row := &models.LiveSignal{
		StrategyUniverseID: su.ID,
		Symbol:             ticker,
		Timeframe:          tf.Code,
		BarTimestamp:       raw.Timestamp,
		SignalTimestamp:    time.Now().UTC(),
		SignalType:         signal.Type,
		SignalSource:       "strategy",
		SignalJSON:         string(payload),
		GapFlag:            raw.IsGap,
	}
	if err := sr.repo.Signals.Insert(row); err != nil {
		log.Printf("❌ Signal insert failed (universe %d): %v", su.ID, err)
		sr.logError("signal insert failed: "+err.Error(), database.SeverityError,
			database.SourceStrategyRunner, &su.ID, &ticker, &tf.Code)
		return
	}

	mtxSignalsEmitted.WithLabelValues(signal.Type).Inc()
	log.Printf("🧠 Signal %s from universe %d (%s %s)", signal.Type, su.ID, ticker, tf.Code)
}

// callOnBar isolates a panicking strategy from the loop
func (sr *StrategyRunner) callOnBar(inst strategies.Strategy, ctx *strategies.Context,
	su *models.StrategyUniverse, ticker, tfCode string) (signal *strategies.Signal) {

	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Strategy panic (universe %d): %v", su.ID, r)
			sr.logError(fmt.Sprintf("strategy panic: %v", r), database.SeverityError,
				database.SourceStrategy, &su.ID, &ticker, &tfCode)
			signal = nil
		}
	}()
	return inst.OnBar(ctx)
}

// strategyInstance resolves and caches the strategy for one universe row.
// Resolution uses the catalog's live names first and falls back to the
// backtest names; failures are cached and logged once.
func (sr *StrategyRunner) strategyInstance(b *universe.Binding, ticker, tfCode string) strategies.Strategy {
	suID := b.Universe.ID
	if inst, seen := sr.instances[suID]; seen {
		return inst
	}

	module, class := b.Catalog.PyModule, b.Catalog.PyClass
	if b.Catalog.LivePyModule != nil && b.Catalog.LivePyClass != nil &&
		*b.Catalog.LivePyModule != "" && *b.Catalog.LivePyClass != "" {
		module, class = *b.Catalog.LivePyModule, *b.Catalog.LivePyClass
	}

	if module == "" || class == "" {
		log.Printf("❌ Universe %d has no strategy names in catalog %s", suID, b.Catalog.Code)
		sr.logError("catalog row has no strategy names", database.SeverityError,
			database.SourceStrategy, &suID, &ticker, &tfCode)
		sr.instances[suID] = nil
		return nil
	}

	factory, err := strategies.Resolve(module, class)
	if err != nil {
		log.Printf("❌ Universe %d: %v", suID, err)
		sr.logError(err.Error(), database.SeverityError,
			database.SourceStrategy, &suID, &ticker, &tfCode)
		sr.instances[suID] = nil
		return nil
	}

	inst := factory()
	log.Printf("🧠 Universe %d uses %s.%s (catalog %s)", suID, module, class, b.Catalog.Code)
	sr.instances[suID] = inst
	return inst
}

// loadHistory fetches the strictly-prior lookback window for a bar
func (sr *StrategyRunner) loadHistory(tf database.Timeframe, bar *models.AggregatedCandle) ([]strategies.Bar, error) {
	rows, err := sr.repo.Candles.History(tf.Table, bar.SymbolID, bar.Timestamp, sr.cfg.HistoryBars)
	if err != nil {
		return nil, err
	}
	history := make([]strategies.Bar, 0, len(rows))
	for i := range rows {
		history = append(history, toBarInfo(&rows[i]))
	}
	return history, nil
}

func (sr *StrategyRunner) logError(message, severity, source string, universeID *int64, symbol, timeframe *string) {
	e := &models.LiveError{
		Source:             source,
		Severity:           severity,
		StrategyUniverseID: universeID,
		Symbol:             symbol,
		Timeframe:          timeframe,
		Message:            message,
	}
	if err := sr.repo.Control.LogError(e); err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}

func toBarInfo(c *models.AggregatedCandle) strategies.Bar {
	b := strategies.Bar{
		Timestamp: c.Timestamp,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		IsGap:     c.IsGap,
	}
	if c.GapDir != nil {
		b.GapDir = *c.GapDir
	}
	return b
}

func toPositionInfo(p *models.LivePosition) *strategies.PositionInfo {
	if p == nil {
		return nil
	}
	return &strategies.PositionInfo{
		Direction: p.Direction,
		Size:      p.Quantity,
		AvgPrice:  p.AvgPrice,
		GapMode:   p.GapMode,
	}
}

func toOrderInfos(orders []models.LiveOrder) []strategies.OrderInfo {
	infos := make([]strategies.OrderInfo, 0, len(orders))
	for _, o := range orders {
		infos = append(infos, strategies.OrderInfo{
			Side:     o.Side,
			Quantity: o.Quantity,
			Status:   o.Status,
		})
	}
	return infos
}

// parseParams extracts the numeric parameters strategies read from
// params_json; non-numeric values are ignored
func parseParams(paramsJSON string) map[string]float64 {
	params := make(map[string]float64)
	if paramsJSON == "" {
		return params
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(paramsJSON), &raw); err != nil {
		return params
	}
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			params[k] = f
		}
	}
	return params
}
