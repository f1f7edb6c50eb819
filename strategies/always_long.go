package strategies

func init() {
	Register("strategies.test_always_long", "TestAlwaysLongStrategy", func() Strategy {
		return &AlwaysLong{}
	})
}

// AlwaysLong opens a market LONG whenever flat with no pending orders.
// Smoke strategy for exercising the whole pipeline end to end.
type AlwaysLong struct{}

// OnBar implements Strategy
func (s *AlwaysLong) OnBar(ctx *Context) *Signal {
	price := ctx.Bar.Close

	if ctx.HasLong() {
		return nil
	}
	if len(ctx.Orders) > 0 {
		return nil
	}

	return &Signal{
		Type:       "OPEN",
		Direction:  "LONG",
		EntryType:  "MARKET",
		EntryPrice: price,
		StopLoss:   price * 0.98,
		TakeProfit: price * 1.04,
		SizeMode:   "RISK_FRACTION",
		SizeValue:  1.0,
		Comment:    "test_always_long",
	}
}
