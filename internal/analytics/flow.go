package analytics

import (
	"time"

	"depthwatch/internal/types"
)

// FlowDirection is the five-level categorical order-flow label.
type FlowDirection string

const (
	FlowStrongBuy  FlowDirection = "strong_buy"
	FlowBuy        FlowDirection = "buy"
	FlowNeutral    FlowDirection = "neutral"
	FlowSell       FlowDirection = "sell"
	FlowStrongSell FlowDirection = "strong_sell"
)

// OrderFlowSnapshot aggregates book-side additions and removals over a
// trailing window. Counts are aggregated, not per-order.
type OrderFlowSnapshot struct {
	Symbol      string        `json:"symbol"`
	Window      time.Duration `json:"window"`
	BidAdds     int           `json:"bid_adds"`
	BidRemoves  int           `json:"bid_removes"`
	AskAdds     int           `json:"ask_adds"`
	AskRemoves  int           `json:"ask_removes"`
	BidRate     float64       `json:"bid_rate"` // net bid additions per second
	AskRate     float64       `json:"ask_rate"` // net ask additions per second
	NetFlow     float64       `json:"net_flow"` // bid_rate - ask_rate
	Direction   FlowDirection `json:"direction"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// computeFlow aggregates the window's delta events and labels the direction
// from the configured ratio thresholds.
func computeFlow(symbol string, events []deltaEvent, window types.Window, now time.Time, strongRatio, moderateRatio float64) *OrderFlowSnapshot {
	snap := &OrderFlowSnapshot{
		Symbol:      symbol,
		Window:      window.Duration(),
		GeneratedAt: now,
	}

	for _, ev := range events {
		snap.BidAdds += ev.bidAdds
		snap.BidRemoves += ev.bidRemoves
		snap.AskAdds += ev.askAdds
		snap.AskRemoves += ev.askRemoves
	}

	secs := window.Duration().Seconds()
	if secs > 0 {
		snap.BidRate = float64(snap.BidAdds-snap.BidRemoves) / secs
		snap.AskRate = float64(snap.AskAdds-snap.AskRemoves) / secs
	}
	snap.NetFlow = snap.BidRate - snap.AskRate
	snap.Direction = classifyFlow(snap.BidRate, snap.AskRate, strongRatio, moderateRatio)
	return snap
}

// classifyFlow maps the bid/ask pressure ratio onto the five-level label.
// Rates are net and can go negative; the comparison uses pressure offsets
// from the common floor so the ratio stays meaningful.
func classifyFlow(bidRate, askRate, strongRatio, moderateRatio float64) FlowDirection {
	// Shift both rates to be non-negative before forming the ratio.
	floor := bidRate
	if askRate < floor {
		floor = askRate
	}
	if floor < 0 {
		bidRate -= floor
		askRate -= floor
	}

	switch {
	case askRate == 0 && bidRate == 0:
		return FlowNeutral
	case askRate == 0:
		return FlowStrongBuy
	case bidRate == 0:
		return FlowStrongSell
	}

	ratio := bidRate / askRate
	switch {
	case ratio >= strongRatio:
		return FlowStrongBuy
	case ratio >= moderateRatio:
		return FlowBuy
	case ratio <= 1/strongRatio:
		return FlowStrongSell
	case ratio <= 1/moderateRatio:
		return FlowSell
	}
	return FlowNeutral
}
