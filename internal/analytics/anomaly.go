package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/book"
	"depthwatch/internal/config"
	"depthwatch/internal/types"
)

// AnomalyType names a detected abnormal market condition.
type AnomalyType string

const (
	AnomalyQuoteStuffing  AnomalyType = "quote_stuffing"
	AnomalyIcebergOrder   AnomalyType = "iceberg_order"
	AnomalyFlashCrashRisk AnomalyType = "flash_crash_risk"
)

// Anomaly is one detected condition with its confidence and the price levels
// involved. Only anomalies at or above the configured confidence floor
// surface to callers.
type Anomaly struct {
	Type        AnomalyType       `json:"type"`
	Symbol      string            `json:"symbol"`
	Confidence  float64           `json:"confidence"`
	PriceLevels []decimal.Decimal `json:"price_levels,omitempty"`
	Note        string            `json:"note,omitempty"`
	DetectedAt  time.Time         `json:"detected_at"`
}

// histPoint is one historical snapshot reduced to the baseline statistics
// the detectors compare against.
type histPoint struct {
	ts        time.Time
	depthQty  float64 // summed top-N quantity, both sides
	spreadBps float64
}

// detectQuoteStuffing flags a book-update rate far above the trade-fill
// rate: rapid placement/cancellation that burdens observers without
// executing.
func detectQuoteStuffing(symbol string, events []deltaEvent, trades []tradeEvent, window types.Window, now time.Time, cfg config.AnalyticsConfig) *Anomaly {
	secs := window.Duration().Seconds()
	if secs <= 0 {
		return nil
	}

	updates := 0
	for _, ev := range events {
		updates += ev.bidAdds + ev.bidRemoves + ev.askAdds + ev.askRemoves
	}
	updateRate := float64(updates) / secs
	fillRate := float64(len(trades)) / secs

	if updateRate < cfg.StuffingUpdateRate {
		return nil
	}
	if updateRate == 0 || fillRate >= cfg.StuffingMaxFillRatio*updateRate {
		return nil
	}

	// Confidence grows with the excess over the threshold and the scarcity
	// of fills.
	excess := updateRate / cfg.StuffingUpdateRate
	confidence := clamp01(0.5 + 0.25*(excess-1))
	return &Anomaly{
		Type:       AnomalyQuoteStuffing,
		Symbol:     symbol,
		Confidence: confidence,
		Note:       fmt.Sprintf("%.0f updates/s vs %.2f fills/s", updateRate, fillRate),
		DetectedAt: now,
	}
}

// detectIcebergs flags price levels whose refill rate exceeds the configured
// multiple of the median refill rate across levels, suggesting hidden size
// feeding the visible quote.
func detectIcebergs(symbol string, refills []refillEvent, now time.Time, cfg config.AnalyticsConfig) []Anomaly {
	if len(refills) == 0 {
		return nil
	}

	counts := make(map[string]int)
	sides := make(map[string]types.Side)
	for _, rf := range refills {
		counts[rf.price]++
		sides[rf.price] = rf.side
	}

	all := make([]int, 0, len(counts))
	for _, c := range counts {
		all = append(all, c)
	}
	sort.Ints(all)
	median := float64(all[len(all)/2])
	if median < 1 {
		median = 1
	}

	var out []Anomaly
	for priceKey, count := range counts {
		rate := float64(count)
		if rate < cfg.IcebergRefillMultiple*median || count < cfg.IcebergMinRefills {
			continue
		}
		price, err := decimal.NewFromString(priceKey)
		if err != nil {
			continue
		}
		confidence := clamp01(0.5 + 0.1*(rate/median-cfg.IcebergRefillMultiple))
		out = append(out, Anomaly{
			Type:        AnomalyIcebergOrder,
			Symbol:      symbol,
			Confidence:  confidence,
			PriceLevels: []decimal.Decimal{price},
			Note:        fmt.Sprintf("%d refills at level (%s side), median %.0f", count, sides[priceKey], median),
			DetectedAt:  now,
		})
	}
	return out
}

// detectFlashCrashRisk flags the conjunction of rapid depth loss, abnormal
// spread widening versus the rolling baseline, and an elevated cancellation
// rate. All three must hold.
func detectFlashCrashRisk(symbol string, v book.View, history []histPoint, events []deltaEvent, window types.Window, now time.Time, cfg config.AnalyticsConfig) *Anomaly {
	if len(history) < 3 || len(v.Bids) == 0 || len(v.Asks) == 0 {
		return nil
	}

	var baseDepth, baseSpread float64
	for _, p := range history {
		baseDepth += p.depthQty
		baseSpread += p.spreadBps
	}
	baseDepth /= float64(len(history))
	baseSpread /= float64(len(history))
	if baseDepth <= 0 {
		return nil
	}

	curDepth := sumDepthQty(v)
	curSpread := spreadBps(v)

	depthDropped := curDepth < baseDepth*(1-cfg.CrashDepthDropRatio)
	spreadWidened := baseSpread > 0 && curSpread > baseSpread*cfg.CrashSpreadMultiple

	secs := window.Duration().Seconds()
	cancels := 0
	for _, ev := range events {
		cancels += ev.bidRemoves + ev.askRemoves
	}
	cancelRate := float64(cancels) / secs
	cancelsElevated := cancelRate > cfg.CrashCancelRate

	if !depthDropped || !spreadWidened || !cancelsElevated {
		return nil
	}

	depthScore := clamp01((baseDepth - curDepth) / baseDepth)
	spreadScore := clamp01(curSpread / (baseSpread * cfg.CrashSpreadMultiple * 2))
	cancelScore := clamp01(cancelRate / (cfg.CrashCancelRate * 2))
	confidence := clamp01((depthScore + spreadScore + cancelScore) / 3)

	return &Anomaly{
		Type:       AnomalyFlashCrashRisk,
		Symbol:     symbol,
		Confidence: confidence,
		Note: fmt.Sprintf("depth %.0f%% of baseline, spread %.1fbps vs %.1fbps, %.0f cancels/s",
			100*curDepth/baseDepth, curSpread, baseSpread, cancelRate),
		DetectedAt: now,
	}
}

func sumDepthQty(v book.View) float64 {
	total := decimal.Zero
	for i, lvl := range v.Bids {
		if i >= 20 {
			break
		}
		total = total.Add(lvl.Quantity)
	}
	for i, lvl := range v.Asks {
		if i >= 20 {
			break
		}
		total = total.Add(lvl.Quantity)
	}
	f, _ := total.Float64()
	return f
}

func spreadBps(v book.View) float64 {
	bb := v.BestBid()
	ba := v.BestAsk()
	if bb.IsZero() || ba.IsZero() {
		return 0
	}
	f, _ := ba.Sub(bb).Div(bb).Mul(decimal.NewFromInt(10_000)).Float64()
	return f
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
