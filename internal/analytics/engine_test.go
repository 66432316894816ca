package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthwatch/internal/book"
	"depthwatch/internal/depth"
	"depthwatch/internal/store"
	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// staticBooks serves one fixed view per symbol.
type staticBooks map[string]book.View

func (s staticBooks) View(ctx context.Context, symbol string) (book.View, error) {
	v, ok := s[symbol]
	if !ok {
		return book.View{}, types.ErrSymbolNotFound
	}
	return v, nil
}

func newTestEngine(books staticBooks, rec *Recorder) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(books, rec, nil, defaultAnalyticsConfig(), logger)
}

func TestEngineOrderFlow(t *testing.T) {
	rec := NewRecorder()
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, rec)

	now := time.Now()
	rec.RecordDelta("BTCUSDT", now.Add(-2*time.Second), book.DeltaSummary{
		Applied: true, BidAdds: 40, AskAdds: 10,
	})

	snap, err := e.OrderFlow(context.Background(), "BTCUSDT", types.Window10s)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 40, snap.BidAdds)
	assert.Equal(t, FlowStrongBuy, snap.Direction)
}

func TestEngineUnknownSymbol(t *testing.T) {
	e := newTestEngine(staticBooks{}, NewRecorder())
	ctx := context.Background()

	_, err := e.OrderFlow(ctx, "NOPEUSDT", types.Window10s)
	require.ErrorIs(t, err, types.ErrSymbolNotFound)

	_, err = e.VolumeProfile(ctx, "NOPEUSDT", types.Window10s)
	require.ErrorIs(t, err, types.ErrSymbolNotFound)

	_, err = e.HealthScore(ctx, "NOPEUSDT")
	require.ErrorIs(t, err, types.ErrSymbolNotFound)
}

func TestEngineVolumeProfileFromTrades(t *testing.T) {
	rec := NewRecorder()
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, rec)

	now := time.Now()
	for _, price := range []string{"100", "100", "100", "101"} {
		rec.RecordTrade(&venue.Trade{
			Symbol:    "BTCUSDT",
			Price:     price,
			Quantity:  "1",
			EventTime: now.Add(-time.Second),
		})
	}

	profile, err := e.VolumeProfile(context.Background(), "BTCUSDT", types.Window60s)
	require.NoError(t, err)
	assert.True(t, profile.PointOfControl.IntPart() == 100, "POC %s", profile.PointOfControl)
	assert.True(t, profile.TotalVolume.IntPart() == 4)
}

func TestEngineVolumeProfileNoTrades(t *testing.T) {
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, NewRecorder())
	_, err := e.VolumeProfile(context.Background(), "BTCUSDT", types.Window60s)
	require.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestEngineAnomaliesConfidenceFloor(t *testing.T) {
	rec := NewRecorder()
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, rec)
	now := time.Now()

	// 60 updates/s is past the stuffing threshold but only scores 0.55, which
	// the 0.6 floor must suppress.
	rec.RecordDelta("BTCUSDT", now.Add(-time.Second), book.DeltaSummary{
		Applied: true, BidAdds: 300, BidRemoves: 300,
	})

	anomalies, err := e.Anomalies(context.Background(), "BTCUSDT", types.Window10s)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	// Push the rate to 200/s; confidence saturates and the anomaly surfaces.
	rec.RecordDelta("BTCUSDT", now.Add(-time.Second), book.DeltaSummary{
		Applied: true, BidAdds: 700, BidRemoves: 700,
	})

	anomalies, err = e.Anomalies(context.Background(), "BTCUSDT", types.Window10s)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyQuoteStuffing, anomalies[0].Type)
	assert.GreaterOrEqual(t, anomalies[0].Confidence, 0.6)
}

func TestEngineLiquidityWithoutTrades(t *testing.T) {
	// No trade history means no profile; the report still carries absorptions
	// and an empty vacuum list rather than failing.
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, NewRecorder())

	report, err := e.Liquidity(context.Background(), "BTCUSDT", types.Window60s)
	require.NoError(t, err)
	assert.NotNil(t, report.Vacuums)
	assert.Empty(t, report.Vacuums)
	assert.Empty(t, report.Absorptions)
}

func TestHistPointFromRejectsInvalidScale(t *testing.T) {
	ts := time.Now()
	valid := &depth.Encoded{
		Symbol:        "BTCUSDT",
		QuantityScale: depth.QuantityScale,
		PriceScale:    depth.PriceScale,
		Bids:          []depth.Level{{Price: 50000 * depth.PriceScale, Quantity: 2 * depth.QuantityScale}},
		Asks:          []depth.Level{{Price: 50010 * depth.PriceScale, Quantity: depth.QuantityScale}},
	}

	p, ok := histPointFrom(store.Record{Timestamp: ts, Snapshot: valid})
	require.True(t, ok)
	assert.InDelta(t, 3.0, p.depthQty, 1e-9)
	assert.InDelta(t, 2.0, p.spreadBps, 1e-9)

	// A zero scale cannot be divided through; the record must be dropped
	// rather than poisoning the baseline with Inf.
	corrupt := &depth.Encoded{Symbol: "BTCUSDT", QuantityScale: 0, Bids: valid.Bids, Asks: valid.Asks}
	_, ok = histPointFrom(store.Record{Timestamp: ts, Snapshot: corrupt})
	assert.False(t, ok)

	negative := &depth.Encoded{Symbol: "BTCUSDT", QuantityScale: -1, Bids: valid.Bids, Asks: valid.Asks}
	_, ok = histPointFrom(store.Record{Timestamp: ts, Snapshot: negative})
	assert.False(t, ok)
}

func TestEngineHealthScoreBounds(t *testing.T) {
	rec := NewRecorder()
	e := newTestEngine(staticBooks{"BTCUSDT": tickedView()}, rec)

	hs, err := e.HealthScore(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, hs.Score, 0)
	assert.LessOrEqual(t, hs.Score, 100)
	assert.Equal(t, "BTCUSDT", hs.Symbol)
}
