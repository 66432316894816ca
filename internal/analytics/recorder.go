package analytics

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/book"
	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// maxWindow bounds how much event history the recorder retains; the longest
// analytics window plus slack for baseline comparisons.
const maxWindow = 6 * time.Minute

// deltaEvent is one applied depth delta, reduced to the counts the windowed
// analytics need.
type deltaEvent struct {
	ts         time.Time
	bidAdds    int
	bidRemoves int
	askAdds    int
	askRemoves int
}

// refillEvent is one quantity increase at an existing price level.
type refillEvent struct {
	ts    time.Time
	side  types.Side
	price string
}

// tradeEvent is one aggregated trade.
type tradeEvent struct {
	ts         time.Time
	price      decimal.Decimal
	qty        decimal.Decimal
	buyerMaker bool
}

// symbolHistory holds the rolling event buffers for one symbol.
type symbolHistory struct {
	mu      sync.Mutex
	deltas  []deltaEvent
	refills []refillEvent
	trades  []tradeEvent
}

// Recorder consumes ingestion events from the book manager and keeps rolling
// per-symbol windows for the analytics engine. Implements book.Recorder.
type Recorder struct {
	mu      sync.Mutex
	symbols map[string]*symbolHistory
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{symbols: make(map[string]*symbolHistory)}
}

func (r *Recorder) history(symbol string) *symbolHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.symbols[symbol]
	if !ok {
		h = &symbolHistory{}
		r.symbols[symbol] = h
	}
	return h
}

// RecordDelta stores an applied delta summary.
func (r *Recorder) RecordDelta(symbol string, ts time.Time, summary book.DeltaSummary) {
	h := r.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deltas = append(h.deltas, deltaEvent{
		ts:         ts,
		bidAdds:    summary.BidAdds,
		bidRemoves: summary.BidRemoves,
		askAdds:    summary.AskAdds,
		askRemoves: summary.AskRemoves,
	})

	for _, change := range summary.Changes {
		// A refill is a quantity increase at a level that already existed.
		if !change.OldQty.IsZero() && change.NewQty.GreaterThan(change.OldQty) {
			h.refills = append(h.refills, refillEvent{
				ts:    ts,
				side:  change.Side,
				price: change.Price.String(),
			})
		}
	}

	h.pruneLocked(ts)
}

// RecordTrade stores an aggregated trade.
func (r *Recorder) RecordTrade(trade *venue.Trade) {
	price, err := decimal.NewFromString(trade.Price)
	if err != nil {
		return
	}
	qty, err := decimal.NewFromString(trade.Quantity)
	if err != nil {
		return
	}

	h := r.history(trade.Symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades = append(h.trades, tradeEvent{
		ts:         trade.EventTime,
		price:      price,
		qty:        qty,
		buyerMaker: trade.BuyerMaker,
	})
	h.pruneLocked(trade.EventTime)
}

// pruneLocked drops events older than maxWindow relative to now.
func (h *symbolHistory) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxWindow)
	h.deltas = pruneDeltas(h.deltas, cutoff)
	h.refills = pruneRefills(h.refills, cutoff)
	h.trades = pruneTrades(h.trades, cutoff)
}

func pruneDeltas(events []deltaEvent, cutoff time.Time) []deltaEvent {
	i := 0
	for i < len(events) && events[i].ts.Before(cutoff) {
		i++
	}
	return events[i:]
}

func pruneRefills(events []refillEvent, cutoff time.Time) []refillEvent {
	i := 0
	for i < len(events) && events[i].ts.Before(cutoff) {
		i++
	}
	return events[i:]
}

func pruneTrades(events []tradeEvent, cutoff time.Time) []tradeEvent {
	i := 0
	for i < len(events) && events[i].ts.Before(cutoff) {
		i++
	}
	return events[i:]
}

// deltasSince returns delta events at or after cutoff.
func (r *Recorder) deltasSince(symbol string, cutoff time.Time) []deltaEvent {
	h := r.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := pruneDeltas(h.deltas, cutoff)
	copied := make([]deltaEvent, len(out))
	copy(copied, out)
	return copied
}

// refillsSince returns refill events at or after cutoff.
func (r *Recorder) refillsSince(symbol string, cutoff time.Time) []refillEvent {
	h := r.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := pruneRefills(h.refills, cutoff)
	copied := make([]refillEvent, len(out))
	copy(copied, out)
	return copied
}

// tradesSince returns trade events at or after cutoff.
func (r *Recorder) tradesSince(symbol string, cutoff time.Time) []tradeEvent {
	h := r.history(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := pruneTrades(h.trades, cutoff)
	copied := make([]tradeEvent, len(out))
	copy(copied, out)
	return copied
}
