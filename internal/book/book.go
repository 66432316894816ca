package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// Book holds the authoritative order book state for one symbol. It is
// synchronized from a fetched snapshot plus applied deltas; a detected
// sequence gap marks it stale until the next snapshot load.
type Book struct {
	mu           sync.RWMutex
	symbol       string
	bids         map[string]types.PriceLevel
	asks         map[string]types.PriceLevel
	lastUpdateID int64
	lastUpdate   time.Time
	stale        bool
	synced       bool
	// Cached best bid/ask for performance
	bestBid decimal.Decimal
	bestAsk decimal.Decimal
}

// LevelChange records one price level mutation from an applied delta.
type LevelChange struct {
	Side   types.Side
	Price  decimal.Decimal
	OldQty decimal.Decimal
	NewQty decimal.Decimal
}

// DeltaSummary reports what an applied delta did, for the analytics recorder.
type DeltaSummary struct {
	Applied     bool
	GapDetected bool
	BidAdds     int
	BidRemoves  int
	AskAdds     int
	AskRemoves  int
	Changes     []LevelChange
}

// NewBook creates an empty, unsynced book for a symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol:  symbol,
		bids:    make(map[string]types.PriceLevel),
		asks:    make(map[string]types.PriceLevel),
		bestBid: decimal.Zero,
		bestAsk: decimal.Zero,
	}
}

// Symbol returns the book's symbol.
func (b *Book) Symbol() string {
	return b.symbol
}

// LoadSnapshot replaces the book state with a full snapshot and clears any
// staleness.
func (b *Book) LoadSnapshot(snapshot *venue.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bids := make(map[string]types.PriceLevel, len(snapshot.Bids))
	asks := make(map[string]types.PriceLevel, len(snapshot.Asks))

	for _, bid := range snapshot.Bids {
		price, err := decimal.NewFromString(bid.Price)
		if err != nil {
			return fmt.Errorf("invalid bid price %s: %w", bid.Price, err)
		}
		qty, err := decimal.NewFromString(bid.Quantity)
		if err != nil {
			return fmt.Errorf("invalid bid quantity %s: %w", bid.Quantity, err)
		}
		if !qty.IsZero() {
			bids[bid.Price] = types.PriceLevel{Price: price, Quantity: qty}
		}
	}

	for _, ask := range snapshot.Asks {
		price, err := decimal.NewFromString(ask.Price)
		if err != nil {
			return fmt.Errorf("invalid ask price %s: %w", ask.Price, err)
		}
		qty, err := decimal.NewFromString(ask.Quantity)
		if err != nil {
			return fmt.Errorf("invalid ask quantity %s: %w", ask.Quantity, err)
		}
		if !qty.IsZero() {
			asks[ask.Price] = types.PriceLevel{Price: price, Quantity: qty}
		}
	}

	b.bids = bids
	b.asks = asks
	b.lastUpdateID = snapshot.LastUpdateID
	b.lastUpdate = snapshot.Timestamp
	b.stale = false
	b.synced = true
	b.recalculateBestBid()
	b.recalculateBestAsk()
	return nil
}

// ApplyDelta applies a depth delta against the most recent accepted
// snapshot. Duplicates and out-of-order deltas are dropped; a sequence gap
// marks the book stale and leaves state untouched so replays are idempotent.
func (b *Book) ApplyDelta(update *venue.DepthUpdate) DeltaSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.synced {
		return DeltaSummary{}
	}

	// Already covered by the current snapshot or an earlier delta.
	if update.FinalUpdateID <= b.lastUpdateID {
		return DeltaSummary{}
	}

	// Gap: the delta starts past the next expected sequence. The book can
	// no longer be trusted until a fresh snapshot is loaded.
	if update.FirstUpdateID > b.lastUpdateID+1 {
		b.stale = true
		return DeltaSummary{GapDetected: true}
	}

	summary := DeltaSummary{Applied: true}

	for _, lvl := range update.Bids {
		b.applyLevel(types.Bid, lvl, &summary)
	}
	for _, lvl := range update.Asks {
		b.applyLevel(types.Ask, lvl, &summary)
	}

	if b.bestBid.IsZero() || hasPrice(update.Bids) {
		b.recalculateBestBid()
	}
	if b.bestAsk.IsZero() || hasPrice(update.Asks) {
		b.recalculateBestAsk()
	}

	b.lastUpdateID = update.FinalUpdateID
	b.lastUpdate = update.EventTime
	return summary
}

func (b *Book) applyLevel(side types.Side, lvl venue.PriceLevel, summary *DeltaSummary) {
	levels := b.bids
	if side == types.Ask {
		levels = b.asks
	}

	price, err := decimal.NewFromString(lvl.Price)
	if err != nil {
		return
	}
	qty, err := decimal.NewFromString(lvl.Quantity)
	if err != nil {
		return
	}

	old, existed := levels[lvl.Price]
	oldQty := decimal.Zero
	if existed {
		oldQty = old.Quantity
	}

	if qty.IsZero() {
		if !existed {
			return
		}
		delete(levels, lvl.Price)
	} else {
		levels[lvl.Price] = types.PriceLevel{Price: price, Quantity: qty}
	}

	summary.Changes = append(summary.Changes, LevelChange{
		Side:   side,
		Price:  price,
		OldQty: oldQty,
		NewQty: qty,
	})

	added := qty.GreaterThan(oldQty)
	switch {
	case side == types.Bid && added:
		summary.BidAdds++
	case side == types.Bid:
		summary.BidRemoves++
	case added:
		summary.AskAdds++
	default:
		summary.AskRemoves++
	}
}

func hasPrice(levels []venue.PriceLevel) bool {
	return len(levels) > 0
}

// MarkStale flags the book as untrusted until the next snapshot load.
func (b *Book) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = true
}

// IsStale reports whether the book needs resynchronization.
func (b *Book) IsStale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// LastUpdate returns the timestamp of the most recent accepted mutation.
func (b *Book) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// LastUpdateID returns the current sequence position.
func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

func (b *Book) recalculateBestBid() {
	b.bestBid = decimal.Zero
	for _, level := range b.bids {
		if level.Price.GreaterThan(b.bestBid) {
			b.bestBid = level.Price
		}
	}
}

func (b *Book) recalculateBestAsk() {
	b.bestAsk = decimal.Zero
	for _, level := range b.asks {
		if b.bestAsk.IsZero() || level.Price.LessThan(b.bestAsk) {
			b.bestAsk = level.Price
		}
	}
}
