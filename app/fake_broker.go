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

	"github.com/shopspring/decimal"
)

// FakeBroker simulates order execution: it consumes NEW orders, fills them at
// the latest minute close, writes the trade, moves the position under a row
// lock and settles the account cash model. LIMIT and STOP orders fill at the
// market price too, which is enough for paper trading.
type FakeBroker struct {
	repo    *database.Repository
	symbols *cache.SymbolCache
	cfg     config.PipelineConfig
	done    chan bool
}

// NewFakeBroker creates the broker adapter daemon
func NewFakeBroker(repo *database.Repository, symbols *cache.SymbolCache, cfg config.PipelineConfig) *FakeBroker {
	return &FakeBroker{
		repo:    repo,
		symbols: symbols,
		cfg:     cfg,
		done:    make(chan bool),
	}
}

// Start begins the order fill loop
func (b *FakeBroker) Start() {
	log.Println("🏦 Fake broker started")

	ticker := time.NewTicker(b.cfg.BrokerPoll)
	defer ticker.Stop()

	b.poll()

	for {
		select {
		case <-ticker.C:
			b.poll()
		case <-b.done:
			log.Println("🏦 Fake broker stopped")
			return
		}
	}
}

// Stop gracefully stops the broker
func (b *FakeBroker) Stop() {
	close(b.done)
}

func (b *FakeBroker) poll() {
	orders, err := b.repo.Orders.ListByStatus(database.OrderStatusNew, b.cfg.OrderBatchSize)
	if err != nil {
		log.Printf("❌ Order poll failed: %v", err)
		b.logError("order poll failed: "+err.Error(), database.SeverityError, nil, nil, nil)
		return
	}

	if len(orders) > 0 {
		log.Printf("🏦 New orders: %d", len(orders))
		for i := range orders {
			order := &orders[i]
			err := b.repo.Transaction(func(tx *database.Repository) error {
				return b.executeOrder(tx, order)
			})
			if err != nil {
				// the fill rolled back; reject in fresh writes so the order
				// never spins in the queue
				log.Printf("❌ Order %d failed: %v", order.ID, err)
				b.logError("order execution failed: "+err.Error(), database.SeverityError,
					&order.StrategyUniverseID, &order.Symbol, &order.Timeframe)
				if err := b.repo.Orders.MarkRejected(order.ID); err != nil {
					log.Printf("❌ Could not reject order %d: %v", order.ID, err)
				}
				mtxOrdersFilled.WithLabelValues("rejected").Inc()
			}
		}
	}

	if err := b.repo.Control.Heartbeat(database.ServiceFakeBroker, "ok", nil); err != nil {
		log.Printf("⚠️  Broker heartbeat failed: %v", err)
	}
}

// executeOrder fills one order inside a transaction. A rejection for a
// missing price or unsupported type is final: the order is marked REJECTED
// in the same transaction and nil is returned.
func (b *FakeBroker) executeOrder(tx *database.Repository, order *models.LiveOrder) error {
	marketPrice, ok, err := b.lastPrice(tx, order.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		b.rejectOrder(tx, order, "no_market_price_for_symbol")
		return tx.Orders.MarkRejected(order.ID)
	}

	switch order.OrderType {
	case database.OrderTypeMarket, database.OrderTypeLimit, database.OrderTypeStop:
		// LIMIT and STOP fill at market, same as MARKET
	default:
		b.rejectOrder(tx, order, "unsupported_order_type")
		return tx.Orders.MarkRejected(order.ID)
	}
	execPrice := marketPrice

	if err := b.applyFill(tx, order, execPrice); err != nil {
		return err
	}

	acct, err := tx.Positions.GetAccountForUpdate()
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &models.AccountState{ID: 1}
	}
	settle := SettleFill(acct.FreeCash, acct.UsedMargin, order.Side, order.Quantity, execPrice, b.cfg.FeeRate)
	acct.FreeCash = settle.FreeCash
	acct.Equity = settle.Equity
	if err := tx.Positions.SaveAccount(acct); err != nil {
		return err
	}

	err = tx.Orders.InsertTrade(&models.LiveTrade{
		LiveOrderID:        order.ID,
		StrategyUniverseID: order.StrategyUniverseID,
		Symbol:             order.Symbol,
		Timeframe:          order.Timeframe,
		Side:               order.Side,
		Quantity:           order.Quantity,
		Price:              execPrice,
		Fee:                settle.Fee,
		ExecutedAt:         time.Now().UTC(),
		TradeType:          "FILL",
	})
	if err != nil {
		return err
	}

	brokerOrderID := fmt.Sprintf("fake-%d", order.ID)
	if err := tx.Orders.MarkFilled(order.ID, brokerOrderID); err != nil {
		return err
	}

	mtxOrdersFilled.WithLabelValues("filled").Inc()
	mtxEquity.Set(acct.Equity)
	mtxFreeCash.Set(acct.FreeCash)
	log.Printf("🏦 Filled order %d: %s %s x%.0f @ %.4f (fee %.4f)",
		order.ID, order.Side, order.Symbol, order.Quantity, execPrice, settle.Fee)
	return nil
}

// Settlement is the account mutation for one fill
type Settlement struct {
	FreeCash float64
	Equity   float64
	Fee      float64
}

// SettleFill applies one fill to the cash model: a BUY pays notional plus fee
// out of free cash, a SELL collects notional minus fee, and equity is free
// cash plus used margin.
func SettleFill(freeCash, usedMargin float64, side string, quantity, price, feeRate float64) Settlement {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
	fee := notional.Mul(decimal.NewFromFloat(feeRate))
	cash := decimal.NewFromFloat(freeCash)
	if side == database.SideBuy {
		cash = cash.Sub(notional).Sub(fee)
	} else {
		cash = cash.Add(notional).Sub(fee)
	}

	var s Settlement
	s.FreeCash, _ = cash.Float64()
	s.Equity, _ = cash.Add(decimal.NewFromFloat(usedMargin)).Float64()
	s.Fee, _ = fee.Float64()
	return s
}

// lastPrice resolves the symbol and returns its latest minute close
func (b *FakeBroker) lastPrice(tx *database.Repository, ticker string) (float64, bool, error) {
	sym, err := b.symbols.ByTicker(context.Background(), ticker)
	if err != nil {
		return 0, false, err
	}
	if sym == nil {
		return 0, false, nil
	}
	candle, err := tx.Candles.LatestMinuteClose(sym.ID)
	if err != nil {
		return 0, false, err
	}
	if candle == nil {
		return 0, false, nil
	}
	return candle.Close, true, nil
}

// applyFill moves the position for one fill. BUY opens or grows a LONG and
// shrinks a SHORT; SELL mirrors it. Adds average in at volume weight, closes
// realize PnL against the average, a fully closed position goes FLAT but the
// row stays so realized PnL survives.
func (b *FakeBroker) applyFill(tx *database.Repository, order *models.LiveOrder, execPrice float64) error {
	pos, err := tx.Positions.GetForUpdate(order.StrategyUniverseID, order.Symbol, order.Timeframe)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	if pos == nil {
		direction := database.DirectionLong
		if order.Side == database.SideSell {
			direction = database.DirectionShort
		}
		return tx.Positions.Create(&models.LivePosition{
			StrategyUniverseID: order.StrategyUniverseID,
			Symbol:             order.Symbol,
			Timeframe:          order.Timeframe,
			Direction:          direction,
			Quantity:           order.Quantity,
			AvgPrice:           execPrice,
			LastPrice:          execPrice,
			OpenedAt:           &now,
		})
	}

	next := NextPosition(PositionState{
		Direction:   pos.Direction,
		Quantity:    pos.Quantity,
		AvgPrice:    pos.AvgPrice,
		RealizedPnL: pos.RealizedPnL,
	}, order.Side, order.Quantity, execPrice)

	pos.Direction = next.Direction
	pos.Quantity = next.Quantity
	pos.AvgPrice = next.AvgPrice
	pos.RealizedPnL = next.RealizedPnL
	pos.LastPrice = execPrice
	pos.UnrealizedPnL = 0
	if pos.OpenedAt == nil && next.Direction != database.DirectionFlat {
		pos.OpenedAt = &now
	}
	return tx.Positions.Save(pos)
}

func (b *FakeBroker) rejectOrder(tx *database.Repository, order *models.LiveOrder, reason string) {
	log.Printf("🏦 Order %d rejected: %s", order.ID, reason)
	raw, _ := json.Marshal(map[string]interface{}{
		"reason":     reason,
		"order_id":   order.ID,
		"order_type": order.OrderType,
	})
	details := string(raw)
	err := tx.Control.LogError(&models.LiveError{
		Source:             database.SourceBroker,
		Severity:           database.SeverityWarning,
		StrategyUniverseID: &order.StrategyUniverseID,
		Symbol:             &order.Symbol,
		Timeframe:          &order.Timeframe,
		Message:            reason,
		DetailsJSON:        &details,
	})
	if err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}

func (b *FakeBroker) logError(message, severity string, universeID *int64, symbol, timeframe *string) {
	err := b.repo.Control.LogError(&models.LiveError{
		Source:             database.SourceBroker,
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

// PositionState is the fill-relevant slice of a position row
type PositionState struct {
	Direction   string
	Quantity    float64
	AvgPrice    float64
	RealizedPnL float64
}

// NextPosition applies one fill to a position. Same-side fills grow the
// position with a volume-weighted average price; opposite-side fills close up
// to the open quantity, realizing PnL against the average, and a quantity
// reaching zero flattens the position. Decimal arithmetic keeps the VWAP and
// PnL exact across repeated fills.
func NextPosition(pos PositionState, side string, quantity, price float64) PositionState {
	qty := decimal.NewFromFloat(pos.Quantity)
	avg := decimal.NewFromFloat(pos.AvgPrice)
	realized := decimal.NewFromFloat(pos.RealizedPnL)
	fillQty := decimal.NewFromFloat(quantity)
	fillPrice := decimal.NewFromFloat(price)

	grows := (pos.Direction == database.DirectionLong && side == database.SideBuy) ||
		(pos.Direction == database.DirectionShort && side == database.SideSell)

	switch {
	case pos.Direction == database.DirectionFlat || qty.Sign() == 0:
		direction := database.DirectionLong
		if side == database.SideSell {
			direction = database.DirectionShort
		}
		next := PositionState{Direction: direction, RealizedPnL: pos.RealizedPnL}
		next.Quantity, _ = fillQty.Float64()
		next.AvgPrice = price
		return next

	case grows:
		newQty := qty.Add(fillQty)
		newAvg := avg.Mul(qty).Add(fillPrice.Mul(fillQty)).Div(newQty)
		next := PositionState{Direction: pos.Direction, RealizedPnL: pos.RealizedPnL}
		next.Quantity, _ = newQty.Float64()
		next.AvgPrice, _ = newAvg.Float64()
		return next

	default:
		closeQty := decimal.Min(qty, fillQty)
		var pnl decimal.Decimal
		if pos.Direction == database.DirectionLong {
			pnl = fillPrice.Sub(avg).Mul(closeQty)
		} else {
			pnl = avg.Sub(fillPrice).Mul(closeQty)
		}
		realized = realized.Add(pnl)
		remaining := qty.Sub(closeQty)

		next := PositionState{Direction: pos.Direction}
		next.RealizedPnL, _ = realized.Float64()
		if remaining.Sign() == 0 {
			next.Direction = database.DirectionFlat
			next.Quantity = 0
			next.AvgPrice = 0
			return next
		}
		next.Quantity, _ = remaining.Float64()
		next.AvgPrice = pos.AvgPrice
		return next
	}
}
