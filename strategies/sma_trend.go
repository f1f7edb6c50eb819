package strategies

func init() {
	Register("strategies.sma_trend1_live", "SMATrend1LiveStrategy", func() Strategy {
		return &SMATrend{}
	})
}

// SMATrend enters LONG when the fast SMA crosses above the slow SMA and
// closes on the reverse cross. Stops and takes are percent offsets from the
// entry price; position size is the execution engine's job.
type SMATrend struct{}

// OnBar implements Strategy
func (s *SMATrend) OnBar(ctx *Context) *Signal {
	price := ctx.Bar.Close

	fastPeriod := int(Param(ctx.Params, "fast_period", 20))
	slowPeriod := int(Param(ctx.Params, "slow_period", 100))
	slPct := Param(ctx.Params, "sl_pct", 2.0)
	tpPct := Param(ctx.Params, "tp_pct", 4.0)

	closes := ctx.Closes()
	prev := closes[:len(closes)-1]

	fastPrev, ok1 := SMA(prev, fastPeriod)
	slowPrev, ok2 := SMA(prev, slowPeriod)
	fastCur, ok3 := SMA(closes, fastPeriod)
	slowCur, ok4 := SMA(closes, slowPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil // not enough history
	}

	// exit on the downward cross
	if ctx.HasLong() && fastPrev > slowPrev && fastCur <= slowCur {
		return &Signal{
			Type:    "CLOSE",
			Comment: "sma_trend: close on fast<slow",
		}
	}

	// no new entries while positioned or while orders are pending
	if ctx.HasLong() || len(ctx.Orders) > 0 {
		return nil
	}

	if fastPrev < slowPrev && fastCur >= slowCur {
		return &Signal{
			Type:       "OPEN",
			Direction:  "LONG",
			EntryType:  "MARKET",
			EntryPrice: price,
			StopLoss:   price * (1.0 - slPct/100.0),
			TakeProfit: price * (1.0 + tpPct/100.0),
			SizeMode:   "RISK_FRACTION",
			SizeValue:  1.0,
			Comment:    "sma_trend: open long on fast>slow",
		}
	}

	return nil
}
