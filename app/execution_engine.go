package app

import (
	"encoding/json"
	"log"
	"time"

	"marketpipe/config"
	"marketpipe/database"
	models "marketpipe/database/models_pkg"
	"marketpipe/helpers"

	"github.com/shopspring/decimal"
)

// ExecutionEngine consumes unprocessed signals FIFO, applies the admission
// checks and risk sizing, and emits NEW orders. Every signal is marked
// processed exactly once, accepted or not; a failing signal is contained to
// its own transaction.
type ExecutionEngine struct {
	repo *database.Repository
	cfg  config.PipelineConfig
	done chan bool
}

// NewExecutionEngine creates the execution engine daemon
func NewExecutionEngine(repo *database.Repository, cfg config.PipelineConfig) *ExecutionEngine {
	return &ExecutionEngine{
		repo: repo,
		cfg:  cfg,
		done: make(chan bool),
	}
}

// Start begins the signal consumption loop
func (e *ExecutionEngine) Start() {
	log.Println("⚖️  Execution engine started")

	ticker := time.NewTicker(e.cfg.EnginePoll)
	defer ticker.Stop()

	e.poll()

	for {
		select {
		case <-ticker.C:
			e.poll()
		case <-e.done:
			log.Println("⚖️  Execution engine stopped")
			return
		}
	}
}

// Stop gracefully stops the engine
func (e *ExecutionEngine) Stop() {
	close(e.done)
}

func (e *ExecutionEngine) poll() {
	signals, err := e.repo.Signals.ListUnprocessed(e.cfg.SignalBatchSize)
	if err != nil {
		log.Printf("❌ Signal poll failed: %v", err)
		e.logError("signal poll failed: "+err.Error(), database.SeverityError,
			database.SourceExecution, nil, nil, nil)
		return
	}

	if len(signals) > 0 {
		log.Printf("⚖️  New signals: %d", len(signals))
		for i := range signals {
			sig := &signals[i]
			err := e.repo.Transaction(func(tx *database.Repository) error {
				return e.processSignal(tx, sig)
			})
			if err != nil {
				// poison pill: the unit rolled back, record it and advance past
				// the signal in fresh writes so the queue never wedges
				log.Printf("❌ Signal %d failed: %v", sig.ID, err)
				e.logError("signal processing failed: "+err.Error(), database.SeverityError,
					database.SourceExecution, &sig.StrategyUniverseID, &sig.Symbol, &sig.Timeframe)
				if err := e.repo.Signals.MarkProcessed(sig.ID); err != nil {
					log.Printf("❌ Could not mark failed signal %d processed: %v", sig.ID, err)
				}
				mtxSignalsProcessed.WithLabelValues("failed").Inc()
			}
		}
	}

	if err := e.repo.Control.Heartbeat(database.ServiceExecutionEngine, "ok", nil); err != nil {
		log.Printf("⚠️  Engine heartbeat failed: %v", err)
	}
}

// signalPayload is the JSON contract carried in live_signals.signal_json
type signalPayload struct {
	Type       string  `json:"type"`
	Direction  string  `json:"direction"`
	EntryType  string  `json:"entry_type"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	SizeMode   string  `json:"size_mode"`
	SizeValue  float64 `json:"size_value"`
	Comment    string  `json:"comment"`
}

// processSignal handles one signal inside a transaction. A rejection is not
// an error: the signal is marked processed and the reason goes to
// live_errors; returning an error rolls the whole unit back instead.
func (e *ExecutionEngine) processSignal(tx *database.Repository, sig *models.LiveSignal) error {
	tc, err := tx.Control.GetTradingControl()
	if err != nil {
		return err
	}

	su, err := tx.Universe.GetByID(sig.StrategyUniverseID)
	if err != nil {
		return err
	}
	if su == nil {
		e.reject(tx, sig, "strategy_universe row not found", database.SourceExecution, database.SeverityError)
		return tx.Signals.MarkProcessed(sig.ID)
	}

	// signals can be inserted by hand (signal_source manual), so the
	// timeframe is not trusted
	if _, ok := database.TimeframeByCode(sig.Timeframe); !ok {
		e.reject(tx, sig, "unknown_timeframe", database.SourceExecution, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("skipped").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	var payload signalPayload
	payload.EntryType = database.OrderTypeMarket
	payload.SizeMode = "RISK_FRACTION"
	payload.SizeValue = 1.0
	if sig.SignalJSON != "" {
		if err := json.Unmarshal([]byte(sig.SignalJSON), &payload); err != nil {
			e.reject(tx, sig, "invalid signal_json", database.SourceExecution, database.SeverityWarning)
			mtxSignalsProcessed.WithLabelValues("skipped").Inc()
			return tx.Signals.MarkProcessed(sig.ID)
		}
	}
	sType := payload.Type
	if sType == "" {
		sType = sig.SignalType
	}

	isManualClose := sType == database.SignalManualClose
	isForcedClose := sType == database.SignalForcedClose

	// manual and forced closes bypass the kill switch
	if !tc.AllowTrading && !isManualClose && !isForcedClose {
		e.reject(tx, sig, "trading_disabled_by_control", database.SourceExecution, database.SeverityInfo)
		mtxSignalsProcessed.WithLabelValues("skipped").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	switch sType {
	case database.SignalOpen, database.SignalAdd, database.SignalReverse:
		if !tc.AllowNewPositions {
			e.reject(tx, sig, "new_positions_disabled_by_control", database.SourceExecution, database.SeverityInfo)
			mtxSignalsProcessed.WithLabelValues("skipped").Inc()
			return tx.Signals.MarkProcessed(sig.ID)
		}
		return e.processEntry(tx, sig, su, &payload, sType)

	case database.SignalClose, database.SignalManualClose, database.SignalForcedClose:
		return e.processClose(tx, sig)

	default:
		e.reject(tx, sig, "unknown_signal_type", database.SourceExecution, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("skipped").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}
}

// processEntry applies position limits and risk sizing, then emits the order
func (e *ExecutionEngine) processEntry(tx *database.Repository, sig *models.LiveSignal,
	su *models.StrategyUniverse, payload *signalPayload, sType string) error {

	pending, err := tx.Orders.CountOpenByUniverse(su.ID)
	if err != nil {
		return err
	}
	if pending > 0 {
		// an unfilled order already covers this universe
		e.reject(tx, sig, "pending_order_for_universe", database.SourceExecution, database.SeverityInfo)
		mtxSignalsProcessed.WithLabelValues("skipped").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	totalOpen, err := tx.Positions.CountOpenTotal()
	if err != nil {
		return err
	}
	if su.MaxTotalPositions != nil && totalOpen >= int64(*su.MaxTotalPositions) {
		e.reject(tx, sig, "max_total_positions_reached", database.SourceRisk, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("rejected").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	openForUniverse, err := tx.Positions.CountOpenForUniverse(su.ID)
	if err != nil {
		return err
	}
	if su.MaxPositionsPerStrategy != nil && openForUniverse >= int64(*su.MaxPositionsPerStrategy) {
		e.reject(tx, sig, "max_positions_per_strategy_reached", database.SourceRisk, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("rejected").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	acct, err := tx.Positions.GetAccount()
	if err != nil {
		return err
	}
	var equity, freeCash float64
	if acct != nil {
		equity, freeCash = acct.Equity, acct.FreeCash
	}

	sym, err := tx.Symbols.GetByTicker(sig.Symbol)
	if err != nil {
		return err
	}
	if sym == nil {
		e.reject(tx, sig, "unknown_symbol", database.SourceExecution, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("rejected").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	// lot size effective at the bar, not today's, so replayed signals size
	// the way they would have at the time
	lotSize, err := tx.Symbols.LotSizeAt(sym.ID, sig.BarTimestamp)
	if err != nil {
		return err
	}

	maxDD := su.MaxDrawdownFraction
	if maxDD <= 0 {
		maxDD = 0.2
	}

	dec := ComputeOrderSize(SizeInput{
		Equity:              equity,
		FreeCash:            freeCash,
		RiskPerTrade:        su.RiskPerTrade,
		MaxDrawdownFraction: maxDD,
		LotSize:             lotSize,
		EntryPrice:          payload.EntryPrice,
		StopLoss:            payload.StopLoss,
		SizeMode:            payload.SizeMode,
		SizeValue:           payload.SizeValue,
	})
	if !dec.OK {
		e.reject(tx, sig, "signal_rejected: "+dec.Reason, database.SourceRisk, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("rejected").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	var side string
	switch payload.Direction {
	case database.DirectionLong:
		side = database.SideBuy
	case database.DirectionShort:
		side = database.SideSell
	default:
		e.reject(tx, sig, "invalid_direction_for_open", database.SourceExecution, database.SeverityWarning)
		mtxSignalsProcessed.WithLabelValues("rejected").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	order := &models.LiveOrder{
		LiveSignalID:       &sig.ID,
		StrategyUniverseID: su.ID,
		Symbol:             sig.Symbol,
		Timeframe:          sig.Timeframe,
		Side:               side,
		Quantity:           helpers.SharesForLots(dec.Lots, lotSize),
		OrderType:          payload.EntryType,
		Status:             database.OrderStatusNew,
	}
	if payload.EntryType != database.OrderTypeMarket {
		price := payload.EntryPrice
		order.Price = &price
	}
	if err := tx.Orders.Insert(order); err != nil {
		return err
	}

	mtxSignalsProcessed.WithLabelValues("ordered").Inc()
	log.Printf("⚖️  Order %s %s x%.0f (%s, universe %d, signal %d %s)",
		side, sig.Symbol, order.Quantity, payload.EntryType, su.ID, sig.ID, sType)
	return tx.Signals.MarkProcessed(sig.ID)
}

// processClose emits a MARKET order for the full position quantity
func (e *ExecutionEngine) processClose(tx *database.Repository, sig *models.LiveSignal) error {
	pos, err := tx.Positions.Get(sig.StrategyUniverseID, sig.Symbol, sig.Timeframe)
	if err != nil {
		return err
	}
	if pos == nil || pos.Quantity <= 0 || pos.Direction == database.DirectionFlat {
		e.reject(tx, sig, "close_without_position", database.SourceExecution, database.SeverityInfo)
		mtxSignalsProcessed.WithLabelValues("skipped").Inc()
		return tx.Signals.MarkProcessed(sig.ID)
	}

	var side string
	switch pos.Direction {
	case database.DirectionLong:
		side = database.SideSell
	case database.DirectionShort:
		side = database.SideBuy
	default:
		return tx.Signals.MarkProcessed(sig.ID)
	}

	order := &models.LiveOrder{
		LiveSignalID:       &sig.ID,
		StrategyUniverseID: sig.StrategyUniverseID,
		Symbol:             sig.Symbol,
		Timeframe:          sig.Timeframe,
		Side:               side,
		Quantity:           pos.Quantity,
		OrderType:          database.OrderTypeMarket,
		Status:             database.OrderStatusNew,
	}
	if err := tx.Orders.Insert(order); err != nil {
		return err
	}

	mtxSignalsProcessed.WithLabelValues("ordered").Inc()
	log.Printf("⚖️  Close order %s %s x%.0f (universe %d, signal %d)",
		side, sig.Symbol, pos.Quantity, sig.StrategyUniverseID, sig.ID)
	return tx.Signals.MarkProcessed(sig.ID)
}

// reject records a refused signal in live_errors. Rejections ride the same
// transaction as the processed flag so both land together.
func (e *ExecutionEngine) reject(tx *database.Repository, sig *models.LiveSignal, reason, source, severity string) {
	log.Printf("⚖️  Signal %d rejected: %s", sig.ID, reason)
	details := rejectDetails(sig, reason)
	err := tx.Control.LogError(&models.LiveError{
		Source:             source,
		Severity:           severity,
		StrategyUniverseID: &sig.StrategyUniverseID,
		Symbol:             &sig.Symbol,
		Timeframe:          &sig.Timeframe,
		Message:            reason,
		DetailsJSON:        &details,
	})
	if err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}

// rejectDetails builds the details_json payload for a refused signal
func rejectDetails(sig *models.LiveSignal, reason string) string {
	details, _ := json.Marshal(map[string]interface{}{
		"reason":      reason,
		"signal_id":   sig.ID,
		"signal_type": sig.SignalType,
	})
	return string(details)
}

func (e *ExecutionEngine) logError(message, severity, source string, universeID *int64, symbol, timeframe *string) {
	err := e.repo.Control.LogError(&models.LiveError{
		Source:             source,
		Severity:           severity,
		StrategyUniverseID: universeID,
		Symbol:             symbol,
		Timeframe:          timeframe,
		Message:            message,
	})
	if err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}

// SizeInput carries everything the risk sizing needs
type SizeInput struct {
	Equity              float64
	FreeCash            float64
	RiskPerTrade        float64
	MaxDrawdownFraction float64
	LotSize             int
	EntryPrice          float64
	StopLoss            float64
	SizeMode            string
	SizeValue           float64
}

// SizeDecision is the outcome of risk sizing
type SizeDecision struct {
	OK     bool
	Reason string
	Lots   int
}

// ComputeOrderSize applies the risk checks and position sizing:
// risk_span = |entry - stop| / entry, rejected when wider than the universe's
// max drawdown fraction; cash at risk = equity * risk_per_trade * size_value
// (size_value clamped to [0,1]); lots = floor(cash_at_risk / risk_span /
// (entry * lot_size)); the resulting notional must fit in free cash.
// Monetary arithmetic runs on decimals to keep the floor stable at lot
// boundaries.
func ComputeOrderSize(in SizeInput) SizeDecision {
	if in.SizeMode != "RISK_FRACTION" {
		return SizeDecision{Reason: "unsupported_size_mode"}
	}
	if in.EntryPrice <= 0 {
		return SizeDecision{Reason: "invalid_entry_price"}
	}
	if in.StopLoss <= 0 {
		return SizeDecision{Reason: "stop_loss_required"}
	}

	entry := decimal.NewFromFloat(in.EntryPrice)
	stop := decimal.NewFromFloat(in.StopLoss)

	riskSpan := entry.Sub(stop).Abs().Div(entry)
	if riskSpan.Sign() <= 0 {
		return SizeDecision{Reason: "invalid_risk_span"}
	}
	if in.MaxDrawdownFraction > 0 && riskSpan.GreaterThan(decimal.NewFromFloat(in.MaxDrawdownFraction)) {
		return SizeDecision{Reason: "too_wide_stop"}
	}
	if in.RiskPerTrade <= 0 {
		return SizeDecision{Reason: "invalid_risk_per_trade"}
	}

	sizeFraction := in.SizeValue
	if sizeFraction < 0 {
		sizeFraction = 0
	}
	if sizeFraction > 1 {
		sizeFraction = 1
	}

	maxLoss := decimal.NewFromFloat(in.Equity).Mul(decimal.NewFromFloat(in.RiskPerTrade))
	effectiveLoss := maxLoss.Mul(decimal.NewFromFloat(sizeFraction))
	sizeMoney := effectiveLoss.Div(riskSpan)
	if sizeMoney.Sign() <= 0 {
		return SizeDecision{Reason: "size_money_non_positive"}
	}

	lotSize := in.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	lotNotional := entry.Mul(decimal.NewFromInt(int64(lotSize)))
	lots := sizeMoney.Div(lotNotional).Floor()
	if lots.Sign() <= 0 {
		return SizeDecision{Reason: "size_too_small"}
	}

	requiredCash := lots.Mul(lotNotional)
	if requiredCash.GreaterThan(decimal.NewFromFloat(in.FreeCash)) {
		return SizeDecision{Reason: "insufficient_cash"}
	}

	return SizeDecision{OK: true, Reason: "ok", Lots: int(lots.IntPart())}
}
