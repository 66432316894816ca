package analytics

import (
	"math"
	"time"

	"depthwatch/internal/book"
)

// HealthComponents are the individual 0–1 scores feeding the composite.
type HealthComponents struct {
	SpreadStability  float64 `json:"spread_stability"`
	DepthSufficiency float64 `json:"depth_sufficiency"`
	FlowBalance      float64 `json:"flow_balance"`
	UpdateNormality  float64 `json:"update_normality"`
}

// HealthScore is the 0–100 composite liquidity-health indicator. Intended as
// a leading signal correlated with near-term volatility, not a guarantee.
type HealthScore struct {
	Symbol      string           `json:"symbol"`
	Score       int              `json:"score"`
	Components  HealthComponents `json:"components"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Component weights; spread and depth carry more than flow and update rate.
const (
	weightSpread = 0.30
	weightDepth  = 0.30
	weightFlow   = 0.20
	weightUpdate = 0.20
)

// computeHealthScore combines spread stability, depth sufficiency, flow
// balance, and update-rate normality against the trailing baseline.
func computeHealthScore(symbol string, v book.View, history []histPoint, recent, baseline []deltaEvent, now time.Time) *HealthScore {
	comps := HealthComponents{
		SpreadStability:  spreadStability(v, history),
		DepthSufficiency: depthSufficiency(v, history),
		FlowBalance:      flowBalance(recent),
		UpdateNormality:  updateNormality(recent, baseline),
	}

	score := weightSpread*comps.SpreadStability +
		weightDepth*comps.DepthSufficiency +
		weightFlow*comps.FlowBalance +
		weightUpdate*comps.UpdateNormality

	return &HealthScore{
		Symbol:      symbol,
		Score:       int(math.Round(100 * score)),
		Components:  comps,
		GeneratedAt: now,
	}
}

// spreadStability scores how close the current spread sits to its trailing
// mean; a spread at or below baseline scores 1, widening decays toward 0.
func spreadStability(v book.View, history []histPoint) float64 {
	current := spreadBps(v)
	if len(history) == 0 {
		if current <= 0 {
			return 0.5
		}
		return clamp01(1 / (1 + current/10))
	}

	var mean float64
	for _, p := range history {
		mean += p.spreadBps
	}
	mean /= float64(len(history))
	if mean <= 0 {
		return 0.5
	}
	ratio := current / mean
	if ratio <= 1 {
		return 1
	}
	return clamp01(1 / ratio)
}

// depthSufficiency scores current depth against the trailing average.
func depthSufficiency(v book.View, history []histPoint) float64 {
	current := sumDepthQty(v)
	if current <= 0 {
		return 0
	}
	if len(history) == 0 {
		return 0.5
	}

	var mean float64
	for _, p := range history {
		mean += p.depthQty
	}
	mean /= float64(len(history))
	if mean <= 0 {
		return 0.5
	}
	return clamp01(current / mean)
}

// flowBalance scores how even the two sides' activity is; heavily one-sided
// flow scores low.
func flowBalance(events []deltaEvent) float64 {
	bid, ask := 0, 0
	for _, ev := range events {
		bid += ev.bidAdds + ev.bidRemoves
		ask += ev.askAdds + ev.askRemoves
	}
	total := bid + ask
	if total == 0 {
		return 0.5
	}
	// 1 at perfect balance, approaches 0 as one side dominates.
	return 1 - math.Abs(float64(bid-ask))/float64(total)
}

// updateNormality scores the recent update rate against the longer trailing
// rate; both silence and a surge reduce the score.
func updateNormality(recent, baseline []deltaEvent) float64 {
	if len(baseline) == 0 {
		return 0.5
	}
	recentRate := eventRate(recent)
	baseRate := eventRate(baseline)
	if baseRate <= 0 {
		return 0.5
	}
	ratio := recentRate / baseRate
	if ratio <= 0 {
		return 0
	}
	// Symmetric in log space: ratio 1 scores 1, 4x or 1/4x scores 0.
	return clamp01(1 - math.Abs(math.Log2(ratio))/2)
}

func eventRate(events []deltaEvent) float64 {
	if len(events) < 2 {
		return float64(len(events))
	}
	span := events[len(events)-1].ts.Sub(events[0].ts).Seconds()
	if span <= 0 {
		return float64(len(events))
	}
	total := 0
	for _, ev := range events {
		total += ev.bidAdds + ev.bidRemoves + ev.askAdds + ev.askRemoves
	}
	return float64(total) / span
}
