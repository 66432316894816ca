package book

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/types"
)

// View is an immutable per-request snapshot of a book. External readers only
// ever see Views, never the live maps.
type View struct {
	Symbol       string
	Bids         []types.PriceLevel // sorted descending by price
	Asks         []types.PriceLevel // sorted ascending by price
	LastUpdateID int64
	LastUpdate   time.Time
	Stale        bool
}

// View captures the current state into sorted ladders.
func (b *Book) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := make([]types.PriceLevel, 0, len(b.bids))
	for _, level := range b.bids {
		bids = append(bids, level)
	}
	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Price.GreaterThan(bids[j].Price)
	})

	asks := make([]types.PriceLevel, 0, len(b.asks))
	for _, level := range b.asks {
		asks = append(asks, level)
	}
	sort.Slice(asks, func(i, j int) bool {
		return asks[i].Price.LessThan(asks[j].Price)
	})

	return View{
		Symbol:       b.symbol,
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: b.lastUpdateID,
		LastUpdate:   b.lastUpdate,
		Stale:        b.stale,
	}
}

// BestBid returns the highest bid price, zero when the side is empty.
func (v View) BestBid() decimal.Decimal {
	if len(v.Bids) == 0 {
		return decimal.Zero
	}
	return v.Bids[0].Price
}

// BestAsk returns the lowest ask price, zero when the side is empty.
func (v View) BestAsk() decimal.Decimal {
	if len(v.Asks) == 0 {
		return decimal.Zero
	}
	return v.Asks[0].Price
}

// Crossed reports a best bid at or above the best ask, which means the book
// is mid-resync and should not be trusted for metrics.
func (v View) Crossed() bool {
	if len(v.Bids) == 0 || len(v.Asks) == 0 {
		return false
	}
	return v.BestBid().GreaterThanOrEqual(v.BestAsk())
}
