package venue

import (
	"context"
	"time"
)

// Feed is the upstream venue boundary for one symbol: a streaming
// subscription for depth deltas and aggregated trades, plus a REST snapshot
// fetch for bootstrap and staleness recovery. Implementations normalize the
// venue's payloads into the canonical types below.
type Feed interface {
	// Symbol returns the subscribed trading symbol.
	Symbol() string

	// Connect establishes the streaming subscription.
	Connect(ctx context.Context) error

	// Close tears down the subscription gracefully.
	Close() error

	// Snapshot fetches the current top-N levels via REST. Callers are
	// expected to gate this through the request governor.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Updates delivers normalized depth deltas. The channel closes when the
	// stream drops.
	Updates() <-chan *DepthUpdate

	// Trades delivers normalized aggregated trade events on the same
	// connection lifetime as Updates.
	Trades() <-chan *Trade

	// IsConnected reports current stream connectivity.
	IsConnected() bool
}

// Dialer builds a Feed for a symbol. Injected into the book manager so
// reconnection logic is testable without real network I/O.
type Dialer func(symbol string) Feed

// Snapshot represents a canonical orderbook snapshot.
type Snapshot struct {
	Symbol       string       // Trading symbol
	LastUpdateID int64        // Last update ID from the venue
	Bids         []PriceLevel // Bid levels [price, quantity]
	Asks         []PriceLevel // Ask levels [price, quantity]
	Timestamp    time.Time    // Snapshot timestamp
}

// DepthUpdate represents a canonical depth delta event. A zero quantity at a
// price signals deletion of that level.
type DepthUpdate struct {
	Symbol        string       // Trading symbol
	EventTime     time.Time    // Event timestamp
	FirstUpdateID int64        // First update ID in this event
	FinalUpdateID int64        // Final update ID in this event
	Bids          []PriceLevel // Updated bid levels
	Asks          []PriceLevel // Updated ask levels
}

// Trade represents a canonical aggregated trade event.
type Trade struct {
	Symbol     string
	EventTime  time.Time
	Price      string // string to avoid precision loss until parsed
	Quantity   string
	BuyerMaker bool // true when the buyer was the resting order (sell aggression)
}

// PriceLevel represents a single price level [price, quantity].
type PriceLevel struct {
	Price    string // Price as string to avoid precision loss
	Quantity string // Quantity as string to avoid precision loss
}

// HealthStatus represents connection health counters for one feed.
type HealthStatus struct {
	Connected    bool
	LastMessage  time.Time
	MessageCount int64
	ErrorCount   int64
}
