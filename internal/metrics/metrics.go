// Package metrics computes instantaneous L1 aggregates from a book view:
// spread, microprice, imbalance, walls, and slippage estimates. Pure and
// synchronous; no I/O, no mutation, nothing cached beyond one response.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/book"
	"depthwatch/internal/types"
)

const (
	// TopN is the fixed window of levels per side feeding volume sums,
	// imbalance, and wall statistics.
	TopN = 20

	// minWallLevels is the smallest sample on which a wall median is
	// meaningful; below it walls are reported empty.
	minWallLevels = 5

	// wallMultiple is the median multiple at which a level counts as a wall.
	wallMultiple = 2
)

// SlippageNotionals are the fixed quote-currency targets estimated per call.
var SlippageNotionals = []int64{1_000, 10_000, 100_000}

// Wall is a price level whose quantity stands out against its side's median.
type Wall struct {
	Side     types.Side      `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SlippageEstimate is the execution cost of a target notional in one
// direction. FilledNotional may be below the target when liquidity runs out.
type SlippageEstimate struct {
	Side           types.Side      `json:"side"` // direction of the taker order
	TargetNotional decimal.Decimal `json:"target_notional"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	SlippageBps    decimal.Decimal `json:"slippage_bps"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledNotional decimal.Decimal `json:"filled_notional"`
	FullyFilled    bool            `json:"fully_filled"`
}

// BookMetrics is the derived per-request metric set. Never stored.
type BookMetrics struct {
	Symbol     string             `json:"symbol"`
	Timestamp  time.Time          `json:"timestamp"`
	BestBid    decimal.Decimal    `json:"best_bid"`
	BestAsk    decimal.Decimal    `json:"best_ask"`
	SpreadBps  decimal.Decimal    `json:"spread_bps"`
	MidPrice   decimal.Decimal    `json:"mid_price"`
	MicroPrice decimal.Decimal    `json:"micro_price"`
	BidVolume  decimal.Decimal    `json:"bid_volume"`
	AskVolume  decimal.Decimal    `json:"ask_volume"`
	Imbalance  decimal.Decimal    `json:"imbalance"`
	Walls      []Wall             `json:"walls"`
	Slippage   []SlippageEstimate `json:"slippage"`
}

var (
	two         = decimal.NewFromInt(2)
	tenThousand = decimal.NewFromInt(10_000)
)

// Compute derives the full metric set from a view. Requires at least one
// level on each side and an uncrossed book; otherwise fails with
// ErrInsufficientData. A crossed view means the book is mid-resync and any
// spread derived from it would be negative.
func Compute(v book.View) (*BookMetrics, error) {
	if len(v.Bids) == 0 || len(v.Asks) == 0 || v.Crossed() {
		return nil, types.ErrInsufficientData
	}

	bb := v.BestBid()
	ba := v.BestAsk()
	bv := sumTopN(v.Bids, TopN)
	av := sumTopN(v.Asks, TopN)

	m := &BookMetrics{
		Symbol:    v.Symbol,
		Timestamp: v.LastUpdate,
		BestBid:   bb,
		BestAsk:   ba,
		BidVolume: bv,
		AskVolume: av,
		MidPrice:  bb.Add(ba).Div(two),
	}

	// spread_bps = (ba - bb) / bb * 10000
	if !bb.IsZero() {
		m.SpreadBps = ba.Sub(bb).Div(bb).Mul(tenThousand)
	}

	// micro price = (bb*av + ba*bv) / (bv + av)
	if total := bv.Add(av); !total.IsZero() {
		m.MicroPrice = bb.Mul(av).Add(ba.Mul(bv)).Div(total)
	} else {
		m.MicroPrice = m.MidPrice
	}

	// imbalance = bv / av
	if !av.IsZero() {
		m.Imbalance = bv.Div(av)
	}

	m.Walls = DetectWalls(v)
	m.Slippage = estimateAll(v)
	return m, nil
}

func sumTopN(levels []types.PriceLevel, n int) decimal.Decimal {
	if len(levels) > n {
		levels = levels[:n]
	}
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Quantity)
	}
	return total
}

// DetectWalls reports levels at or above twice the median quantity of the
// top-N levels on their side. Sides with fewer than five levels report no
// walls rather than computing on insufficient statistics.
func DetectWalls(v book.View) []Wall {
	walls := make([]Wall, 0)
	walls = append(walls, sideWalls(types.Bid, v.Bids)...)
	walls = append(walls, sideWalls(types.Ask, v.Asks)...)
	return walls
}

func sideWalls(side types.Side, levels []types.PriceLevel) []Wall {
	if len(levels) > TopN {
		levels = levels[:TopN]
	}
	if len(levels) < minWallLevels {
		return nil
	}

	threshold := medianQuantity(levels).Mul(two)
	if threshold.IsZero() {
		return nil
	}

	var walls []Wall
	for _, lvl := range levels {
		if lvl.Quantity.GreaterThanOrEqual(threshold) {
			walls = append(walls, Wall{Side: side, Price: lvl.Price, Quantity: lvl.Quantity})
		}
	}
	return walls
}

func medianQuantity(levels []types.PriceLevel) decimal.Decimal {
	qtys := make([]decimal.Decimal, len(levels))
	for i, lvl := range levels {
		qtys[i] = lvl.Quantity
	}
	sort.Slice(qtys, func(i, j int) bool {
		return qtys[i].LessThan(qtys[j])
	})
	mid := len(qtys) / 2
	if len(qtys)%2 == 1 {
		return qtys[mid]
	}
	return qtys[mid-1].Add(qtys[mid]).Div(two)
}

func estimateAll(v book.View) []SlippageEstimate {
	out := make([]SlippageEstimate, 0, 2*len(SlippageNotionals))
	for _, notional := range SlippageNotionals {
		target := decimal.NewFromInt(notional)
		// A buy walks the ask ladder, a sell walks the bid ladder.
		out = append(out, EstimateSlippage(v, types.Bid, target))
		out = append(out, EstimateSlippage(v, types.Ask, target))
	}
	return out
}

// EstimateSlippage walks the opposing ladder from the best price outward,
// accumulating fills until the target notional is reached or liquidity is
// exhausted. side is the taker direction: Bid means a buy consuming asks.
func EstimateSlippage(v book.View, side types.Side, targetNotional decimal.Decimal) SlippageEstimate {
	ladder := v.Asks
	best := v.BestAsk()
	if side == types.Ask {
		ladder = v.Bids
		best = v.BestBid()
	}

	est := SlippageEstimate{
		Side:           side,
		TargetNotional: targetNotional,
		AvgFillPrice:   decimal.Zero,
		SlippageBps:    decimal.Zero,
		FilledQty:      decimal.Zero,
		FilledNotional: decimal.Zero,
	}
	if len(ladder) == 0 || targetNotional.LessThanOrEqual(decimal.Zero) {
		return est
	}

	remaining := targetNotional
	for _, lvl := range ladder {
		levelNotional := lvl.Price.Mul(lvl.Quantity)
		if levelNotional.GreaterThanOrEqual(remaining) {
			qty := remaining.Div(lvl.Price)
			est.FilledQty = est.FilledQty.Add(qty)
			est.FilledNotional = est.FilledNotional.Add(remaining)
			remaining = decimal.Zero
			break
		}
		est.FilledQty = est.FilledQty.Add(lvl.Quantity)
		est.FilledNotional = est.FilledNotional.Add(levelNotional)
		remaining = remaining.Sub(levelNotional)
	}

	est.FullyFilled = remaining.IsZero()
	if est.FilledQty.IsZero() {
		return est
	}

	est.AvgFillPrice = est.FilledNotional.Div(est.FilledQty)
	if !best.IsZero() {
		diff := est.AvgFillPrice.Sub(best)
		if side == types.Ask {
			diff = best.Sub(est.AvgFillPrice)
		}
		est.SlippageBps = diff.Div(best).Mul(tenThousand)
	}
	return est
}
