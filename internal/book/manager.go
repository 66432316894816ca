package book

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"depthwatch/internal/config"
	"depthwatch/internal/depth"
	"depthwatch/internal/store"
	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// Health is the aggregate operational status across all tracked symbols.
type Health struct {
	Status             types.BookStatus        `json:"status"`
	TrackedSymbols     int                     `json:"tracked_symbols"`
	LastUpdateAge      time.Duration           `json:"last_update_age"`
	StreamingConnected bool                    `json:"streaming_connected"`
	Symbols            map[string]SymbolHealth `json:"symbols"`
}

// SymbolHealth is the per-symbol slice of Health.
type SymbolHealth struct {
	State     ConnState     `json:"state"`
	Stale     bool          `json:"stale"`
	UpdateAge time.Duration `json:"update_age"`
	LastSeqID int64         `json:"last_seq_id"`
}

type tracked struct {
	book   *Book
	runner *runner
	cancel context.CancelFunc
	done   chan struct{}

	// ready closes once bootstrap finishes; initErr is only read after that.
	ready   chan struct{}
	initErr error
}

// Manager owns one authoritative book per tracked symbol. Activation is lazy
// (on first request), capacity is hard-capped, and staleness triggers a
// synchronous REST resync through the governor.
type Manager struct {
	cfg      config.BookConfig
	dial     venue.Dialer
	limiter  Limiter
	recorder Recorder
	snaps    store.SnapshotStore
	log      *logrus.Entry
	now      func() time.Time

	mu    sync.Mutex
	books map[string]*tracked
}

// NewManager wires the manager. recorder and snaps may be nil when the
// corresponding features are disabled.
func NewManager(cfg config.BookConfig, dial venue.Dialer, limiter Limiter, recorder Recorder, snaps store.SnapshotStore, logger *logrus.Logger) *Manager {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Manager{
		cfg:      cfg,
		dial:     dial,
		limiter:  limiter,
		recorder: recorder,
		snaps:    snaps,
		log:      logger.WithField("component", "book-manager"),
		now:      time.Now,
		books:    make(map[string]*tracked),
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Track ensures a symbol is tracked. Returns immediately when it already is;
// otherwise checks the cap, bootstraps the book from a governor-gated
// snapshot, and starts the ingestion runner. First activation takes seconds;
// steady-state requests do not pay that cost.
func (m *Manager) Track(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return types.ErrInvalidParameter
	}

	m.mu.Lock()
	if t, ok := m.books[symbol]; ok {
		m.mu.Unlock()
		// Another caller may still be bootstrapping this symbol.
		select {
		case <-t.ready:
			return t.initErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(m.books) >= m.cfg.MaxSymbols {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d symbols tracked", types.ErrCapacityExceeded, m.cfg.MaxSymbols)
	}
	// Reserve the slot before the slow bootstrap so concurrent activations
	// of the same symbol do not double-fetch.
	t := &tracked{book: NewBook(symbol), ready: make(chan struct{})}
	m.books[symbol] = t
	m.mu.Unlock()

	err := m.bootstrap(ctx, t, symbol)
	t.initErr = err
	close(t.ready)
	if err != nil {
		m.mu.Lock()
		delete(m.books, symbol)
		m.mu.Unlock()
	}
	return err
}

func (m *Manager) bootstrap(ctx context.Context, t *tracked, symbol string) error {
	rcfg := runnerConfig{
		snapshotRetries:    m.cfg.SnapshotRetries,
		snapshotRetryDelay: m.cfg.SnapshotRetryDelay,
		reconnectMinDelay:  m.cfg.ReconnectMinDelay,
		reconnectMaxDelay:  m.cfg.ReconnectMaxDelay,
	}
	log := m.log.WithField("symbol", symbol)
	r := newRunner(symbol, t.book, m.dial, m.limiter, m.recorder, rcfg, log)

	// Initial snapshot is fetched synchronously so activation errors surface
	// to the first caller instead of hiding in the runner loop.
	feed := m.dial(symbol)
	err := r.syncSnapshot(ctx, feed)
	feed.Close()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.runner = r
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		r.run(runCtx)
	}()

	log.Info("symbol tracked")
	return nil
}

// View returns the current immutable view for a tracked symbol, lazily
// activating it first. When the book has gone stale past the threshold, a
// synchronous re-snapshot runs before returning.
func (m *Manager) View(ctx context.Context, symbol string) (View, error) {
	symbol = normalizeSymbol(symbol)
	if err := m.Track(ctx, symbol); err != nil {
		return View{}, err
	}

	m.mu.Lock()
	t, ok := m.books[symbol]
	m.mu.Unlock()
	if !ok || t.runner == nil {
		return View{}, types.ErrSymbolNotFound
	}

	age := m.now().Sub(t.book.LastUpdate())
	if t.book.IsStale() || age > m.cfg.StalenessThreshold {
		// REST fallback path: the stream is behind or down, so refresh the
		// book synchronously through the governor.
		feed := m.dial(symbol)
		err := t.runner.syncSnapshot(ctx, feed)
		feed.Close()
		if err != nil {
			return View{}, err
		}
	}

	return t.book.View(), nil
}

// Evict tears down a symbol's subscription and frees tracking capacity.
func (m *Manager) Evict(symbol string) {
	symbol = normalizeSymbol(symbol)

	m.mu.Lock()
	t, ok := m.books[symbol]
	if ok {
		delete(m.books, symbol)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	m.log.WithField("symbol", symbol).Info("symbol evicted")
}

// Tracked returns the currently tracked symbols.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.books))
	for symbol := range m.books {
		out = append(out, symbol)
	}
	return out
}

// Health aggregates connection and staleness status across tracked symbols.
func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{
		Status:  types.StatusHealthy,
		Symbols: make(map[string]SymbolHealth, len(m.books)),
	}

	now := m.now()
	connected := 0
	degraded := 0
	newest := time.Duration(-1)

	for symbol, t := range m.books {
		if t.runner == nil {
			continue
		}
		h.TrackedSymbols++

		age := now.Sub(t.book.LastUpdate())
		stale := t.book.IsStale() || age > m.cfg.StalenessThreshold
		isConnected := t.runner.Connected()
		if isConnected {
			connected++
		}
		if stale || !isConnected {
			degraded++
		}
		if newest < 0 || age < newest {
			newest = age
		}

		h.Symbols[symbol] = SymbolHealth{
			State:     t.runner.State(),
			Stale:     stale,
			UpdateAge: age,
			LastSeqID: t.book.LastUpdateID(),
		}
	}

	if newest >= 0 {
		h.LastUpdateAge = newest
	}
	h.StreamingConnected = connected > 0

	switch {
	case h.TrackedSymbols == 0:
		h.Status = types.StatusHealthy
	case connected == 0:
		h.Status = types.StatusFailed
	case degraded > 0:
		h.Status = types.StatusDegraded
	}
	return h
}

// RunPersistence periodically encodes each live book's top levels and writes
// them to the snapshot store for historical analytics. No-op when the store
// is absent.
func (m *Manager) RunPersistence(ctx context.Context) {
	if m.snaps == nil {
		return
	}

	ticker := time.NewTicker(m.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.persistOnce()
		}
	}
}

func (m *Manager) persistOnce() {
	m.mu.Lock()
	views := make([]View, 0, len(m.books))
	for _, t := range m.books {
		if t.runner != nil && !t.book.IsStale() {
			views = append(views, t.book.View())
		}
	}
	m.mu.Unlock()

	for _, v := range views {
		enc, err := depth.Encode(v.Symbol, v.LastUpdateID, v.LastUpdate, v.Bids, v.Asks, m.cfg.TopLevels)
		if err != nil {
			continue
		}
		if err := m.snaps.Put(v.Symbol, m.now(), enc); err != nil {
			m.log.WithError(err).WithField("symbol", v.Symbol).Warn("snapshot persist failed")
		}
	}
}
