package strategies

func init() {
	Register("strategies.ema_rsi_pullback", "EMARSIPullbackStrategy", func() Strategy {
		return &EMARSIPullback{}
	})
}

// EMARSIPullback trades pullbacks against a slow EMA baseline: long when
// price dips to the EMA with RSI oversold, short when it stretches above
// with RSI overbought, closing on the opposite extreme.
type EMARSIPullback struct{}

// OnBar implements Strategy
func (s *EMARSIPullback) OnBar(ctx *Context) *Signal {
	price := ctx.Bar.Close

	emaPeriod := int(Param(ctx.Params, "ema_period", 50))
	rsiPeriod := int(Param(ctx.Params, "rsi_period", 14))
	oversold := Param(ctx.Params, "rsi_oversold", 30)
	overbought := Param(ctx.Params, "rsi_overbought", 70)
	slPct := Param(ctx.Params, "sl_pct", 1.5)
	tpPct := Param(ctx.Params, "tp_pct", 3.0)

	closes := ctx.Closes()
	emaVal, okEMA := EMA(closes, emaPeriod)
	rsiVal, okRSI := RSI(closes, rsiPeriod)
	if !okEMA || !okRSI {
		return nil
	}

	if ctx.HasLong() && price > emaVal && rsiVal > overbought {
		return &Signal{Type: "CLOSE", Comment: "ema_rsi_pullback: rsi recovered"}
	}
	if ctx.HasShort() && price < emaVal && rsiVal < oversold {
		return &Signal{Type: "CLOSE", Comment: "ema_rsi_pullback: rsi recovered"}
	}

	if ctx.Position != nil && ctx.Position.Direction != "FLAT" {
		return nil
	}
	if len(ctx.Orders) > 0 {
		return nil
	}

	if price <= emaVal && rsiVal <= oversold {
		return &Signal{
			Type:       "OPEN",
			Direction:  "LONG",
			EntryType:  "MARKET",
			EntryPrice: price,
			StopLoss:   price * (1.0 - slPct/100.0),
			TakeProfit: price * (1.0 + tpPct/100.0),
			SizeMode:   "RISK_FRACTION",
			SizeValue:  1.0,
			Comment:    "ema_rsi_pullback: open long on oversold dip",
		}
	}

	if price >= emaVal && rsiVal >= overbought {
		return &Signal{
			Type:       "OPEN",
			Direction:  "SHORT",
			EntryType:  "MARKET",
			EntryPrice: price,
			StopLoss:   price * (1.0 + slPct/100.0),
			TakeProfit: price * (1.0 - tpPct/100.0),
			SizeMode:   "RISK_FRACTION",
			SizeValue:  1.0,
			Comment:    "ema_rsi_pullback: open short on overbought stretch",
		}
	}

	return nil
}
