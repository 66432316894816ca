// Package analytics computes windowed, statistically-derived market signals:
// order flow, volume profile, anomaly detection, liquidity structure, and a
// composite health score. It reads live state from the book manager and
// historical state from the snapshot store; it never writes book state.
package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"depthwatch/internal/book"
	"depthwatch/internal/config"
	"depthwatch/internal/store"
	"depthwatch/internal/types"
)

// BookSource provides live immutable book views. Satisfied by book.Manager.
type BookSource interface {
	View(ctx context.Context, symbol string) (book.View, error)
}

// Engine is the analytics facade.
type Engine struct {
	books    BookSource
	recorder *Recorder
	snaps    store.SnapshotStore
	cfg      config.AnalyticsConfig
	log      *logrus.Entry
	now      func() time.Time
}

// NewEngine wires the engine. snaps may be nil; baseline-dependent signals
// then fall back to recorder-only data.
func NewEngine(books BookSource, recorder *Recorder, snaps store.SnapshotStore, cfg config.AnalyticsConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		books:    books,
		recorder: recorder,
		snaps:    snaps,
		cfg:      cfg,
		log:      logger.WithField("component", "analytics"),
		now:      time.Now,
	}
}

// OrderFlow aggregates book-side additions/removals over the window and
// labels the pressure direction.
func (e *Engine) OrderFlow(ctx context.Context, symbol string, window types.Window) (*OrderFlowSnapshot, error) {
	v, err := e.books.View(ctx, symbol)
	if err != nil {
		return nil, err
	}
	now := e.now()
	events := e.recorder.deltasSince(v.Symbol, now.Add(-window.Duration()))
	return computeFlow(v.Symbol, events, window, now, e.cfg.StrongFlowRatio, e.cfg.ModerateFlowRatio), nil
}

// VolumeProfile bins traded volume over the window and reports the point of
// control and value area.
func (e *Engine) VolumeProfile(ctx context.Context, symbol string, window types.Window) (*VolumeProfile, error) {
	v, err := e.books.View(ctx, symbol)
	if err != nil {
		return nil, err
	}
	now := e.now()
	trades := e.recorder.tradesSince(v.Symbol, now.Add(-window.Duration()))
	return computeProfile(v.Symbol, trades, v, window, now, e.cfg.ValueAreaFraction, e.cfg.MaxProfileBins)
}

// Anomalies runs every detector over the window and returns the conditions
// that clear the confidence floor.
func (e *Engine) Anomalies(ctx context.Context, symbol string, window types.Window) ([]Anomaly, error) {
	v, err := e.books.View(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	cutoff := now.Add(-window.Duration())
	events := e.recorder.deltasSince(v.Symbol, cutoff)
	trades := e.recorder.tradesSince(v.Symbol, cutoff)
	refills := e.recorder.refillsSince(v.Symbol, cutoff)
	history := e.baseline(v.Symbol, now)

	anomalies := make([]Anomaly, 0)
	if a := detectQuoteStuffing(v.Symbol, events, trades, window, now, e.cfg); a != nil {
		anomalies = append(anomalies, *a)
	}
	anomalies = append(anomalies, detectIcebergs(v.Symbol, refills, now, e.cfg)...)
	if a := detectFlashCrashRisk(v.Symbol, v, history, events, window, now, e.cfg); a != nil {
		anomalies = append(anomalies, *a)
	}

	// Suppress low-confidence detections to bound false positives.
	filtered := anomalies[:0]
	for _, a := range anomalies {
		if a.Confidence >= e.cfg.ConfidenceFloor {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// Liquidity reports vacuums and absorption events over the window.
func (e *Engine) Liquidity(ctx context.Context, symbol string, window types.Window) (*LiquidityReport, error) {
	v, err := e.books.View(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	cutoff := now.Add(-window.Duration())
	refills := e.recorder.refillsSince(v.Symbol, cutoff)
	trades := e.recorder.tradesSince(v.Symbol, cutoff)

	report := &LiquidityReport{
		Symbol:      v.Symbol,
		Window:      window.Duration(),
		Vacuums:     make([]LiquidityVacuum, 0),
		Absorptions: findAbsorptions(v, refills, e.cfg),
		GeneratedAt: now,
	}
	if profile, err := computeProfile(v.Symbol, trades, v, window, now, e.cfg.ValueAreaFraction, e.cfg.MaxProfileBins); err == nil {
		report.Vacuums = findVacuums(profile, e.cfg)
	}
	return report, nil
}

// HealthScore computes the 0–100 composite for a symbol.
func (e *Engine) HealthScore(ctx context.Context, symbol string) (*HealthScore, error) {
	v, err := e.books.View(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	recent := e.recorder.deltasSince(v.Symbol, now.Add(-types.Window60s.Duration()))
	baseline := e.recorder.deltasSince(v.Symbol, now.Add(-types.Window5m.Duration()))
	history := e.baseline(v.Symbol, now)
	return computeHealthScore(v.Symbol, v, history, recent, baseline, now), nil
}

// baseline loads the trailing five minutes of persisted snapshots reduced to
// depth/spread points.
func (e *Engine) baseline(symbol string, now time.Time) []histPoint {
	if e.snaps == nil {
		return nil
	}
	records, err := e.snaps.Scan(symbol, now.Add(-types.Window5m.Duration()), now)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).Warn("baseline scan failed")
		return nil
	}

	points := make([]histPoint, 0, len(records))
	for _, rec := range records {
		p, ok := histPointFrom(rec)
		if !ok {
			e.log.WithField("symbol", symbol).Warn("skipping snapshot with invalid scale")
			continue
		}
		points = append(points, p)
	}
	return points
}

// histPointFrom reduces a stored snapshot to its baseline statistics using
// the integer payload directly. Records with a non-positive quantity scale
// cannot be reduced and are reported as invalid.
func histPointFrom(rec store.Record) (histPoint, bool) {
	snap := rec.Snapshot
	if snap.QuantityScale <= 0 {
		return histPoint{}, false
	}
	p := histPoint{ts: rec.Timestamp}

	var qty int64
	for _, lvl := range snap.Bids {
		qty += lvl.Quantity
	}
	for _, lvl := range snap.Asks {
		qty += lvl.Quantity
	}
	p.depthQty = float64(qty) / float64(snap.QuantityScale)

	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		bb := float64(snap.Bids[0].Price)
		ba := float64(snap.Asks[0].Price)
		if bb > 0 {
			p.spreadBps = (ba - bb) / bb * 10_000
		}
	}
	return p, true
}
