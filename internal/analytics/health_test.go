package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthwatch/internal/book"
)

func balancedEvents(now time.Time) []deltaEvent {
	return []deltaEvent{
		{ts: now.Add(-2 * time.Second), bidAdds: 2, bidRemoves: 1, askAdds: 2, askRemoves: 1},
		{ts: now.Add(-time.Second), bidAdds: 2, bidRemoves: 1, askAdds: 2, askRemoves: 1},
		{ts: now, bidAdds: 2, bidRemoves: 1, askAdds: 2, askRemoves: 1},
	}
}

func TestHealthScoreSteadyMarket(t *testing.T) {
	now := time.Now()
	v := crashView(50, "0.02") // 100 depth, 2 bps, matching the baseline
	events := balancedEvents(now)

	hs := computeHealthScore("BTCUSDT", v, crashHistory(now), events, events, now)

	assert.Equal(t, 100, hs.Score, "steady-state market scores full marks: %+v", hs.Components)
	assert.InDelta(t, 1.0, hs.Components.SpreadStability, 1e-9)
	assert.InDelta(t, 1.0, hs.Components.DepthSufficiency, 1e-9)
	assert.InDelta(t, 1.0, hs.Components.FlowBalance, 1e-9)
	assert.InDelta(t, 1.0, hs.Components.UpdateNormality, 1e-9)
}

func TestHealthScoreStressedMarket(t *testing.T) {
	now := time.Now()
	// Depth a tenth of baseline, spread 5x wider, all flow one-sided.
	v := crashView(5, "0.1")
	oneSided := []deltaEvent{
		{ts: now.Add(-time.Second), bidRemoves: 50},
		{ts: now, bidRemoves: 50},
	}

	hs := computeHealthScore("BTCUSDT", v, crashHistory(now), oneSided, balancedEvents(now), now)

	assert.Less(t, hs.Score, 50, "stressed market must score low: %+v", hs.Components)
	assert.GreaterOrEqual(t, hs.Score, 0)
	assert.Less(t, hs.Components.SpreadStability, 0.5)
	assert.Less(t, hs.Components.DepthSufficiency, 0.2)
	assert.Zero(t, hs.Components.FlowBalance)
}

func TestHealthScoreNoHistory(t *testing.T) {
	now := time.Now()
	v := crashView(50, "0.02")

	hs := computeHealthScore("BTCUSDT", v, nil, nil, nil, now)

	require.GreaterOrEqual(t, hs.Score, 0)
	require.LessOrEqual(t, hs.Score, 100)
	// Without baselines the relative components settle at the midpoint.
	assert.InDelta(t, 0.5, hs.Components.DepthSufficiency, 1e-9)
	assert.InDelta(t, 0.5, hs.Components.UpdateNormality, 1e-9)
	assert.InDelta(t, 0.5, hs.Components.FlowBalance, 1e-9)
}

func TestHealthScoreEmptyBook(t *testing.T) {
	now := time.Now()
	hs := computeHealthScore("BTCUSDT", book.View{}, crashHistory(now), nil, nil, now)

	assert.Zero(t, hs.Components.DepthSufficiency)
	assert.GreaterOrEqual(t, hs.Score, 0)
	assert.LessOrEqual(t, hs.Score, 100)
}

func TestFlowBalance(t *testing.T) {
	tests := []struct {
		name   string
		events []deltaEvent
		want   float64
	}{
		{name: "No events", events: nil, want: 0.5},
		{
			name:   "Perfect balance",
			events: []deltaEvent{{bidAdds: 10, askAdds: 10}},
			want:   1.0,
		},
		{
			name:   "Entirely bid side",
			events: []deltaEvent{{bidAdds: 10}},
			want:   0.0,
		},
		{
			name:   "Three to one",
			events: []deltaEvent{{bidAdds: 30, askAdds: 10}},
			want:   0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, flowBalance(tt.events), 1e-9)
		})
	}
}

func TestUpdateNormalitySymmetry(t *testing.T) {
	base := time.Now()
	mk := func(count, perEvent int, spacing time.Duration) []deltaEvent {
		events := make([]deltaEvent, count)
		for i := range events {
			events[i] = deltaEvent{ts: base.Add(time.Duration(i) * spacing), bidAdds: perEvent}
		}
		return events
	}

	baseline := mk(10, 4, time.Second) // ~4/s

	surge := updateNormality(mk(10, 16, time.Second), baseline)  // 4x
	silence := updateNormality(mk(10, 1, time.Second), baseline) // 1/4x

	assert.InDelta(t, surge, silence, 1e-9, "surge and silence of equal magnitude score alike")
	assert.InDelta(t, 0.0, surge, 1e-9, "a 4x deviation exhausts the score")
	assert.InDelta(t, 1.0, updateNormality(baseline, baseline), 1e-9)
}
