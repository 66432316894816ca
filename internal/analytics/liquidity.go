package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/book"
	"depthwatch/internal/config"
	"depthwatch/internal/types"
)

// LiquidityVacuum is a contiguous price range with volume far below the
// local median, implying fast traversal if price enters it.
type LiquidityVacuum struct {
	From decimal.Decimal `json:"from"`
	To   decimal.Decimal `json:"to"`
}

// AbsorptionEvent is a price level repeatedly absorbing incoming flow
// without displacement, suggesting large resting interest.
type AbsorptionEvent struct {
	Side    types.Side      `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Refills int             `json:"refills"`
}

// LiquidityReport bundles vacuums and absorption events for one window.
type LiquidityReport struct {
	Symbol      string            `json:"symbol"`
	Window      time.Duration     `json:"window"`
	Vacuums     []LiquidityVacuum `json:"vacuums"`
	Absorptions []AbsorptionEvent `json:"absorptions"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// findVacuums scans the profile bins for contiguous runs whose volume falls
// below the configured fraction of the median bin volume.
func findVacuums(profile *VolumeProfile, cfg config.AnalyticsConfig) []LiquidityVacuum {
	bins := profile.Bins
	if len(bins) < 3 {
		return nil
	}

	vols := make([]decimal.Decimal, len(bins))
	for i, b := range bins {
		vols[i] = b.Volume
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].LessThan(vols[j]) })
	median := vols[len(vols)/2]
	if median.IsZero() {
		return nil
	}
	threshold := median.Mul(decimal.NewFromFloat(cfg.VacuumMedianFraction))

	var vacuums []LiquidityVacuum
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		vacuums = append(vacuums, LiquidityVacuum{
			From: bins[runStart].Price,
			To:   bins[end].Price.Add(profile.BinWidth),
		})
		runStart = -1
	}

	for i, b := range bins {
		if b.Volume.LessThan(threshold) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(bins) - 1)
	return vacuums
}

// findAbsorptions reports levels that refilled at least the configured
// number of times within the window and still rest in the book, meaning the
// flow hitting them never depleted the queue.
func findAbsorptions(v book.View, refills []refillEvent, cfg config.AnalyticsConfig) []AbsorptionEvent {
	counts := make(map[string]int)
	sides := make(map[string]types.Side)
	for _, rf := range refills {
		counts[rf.price]++
		sides[rf.price] = rf.side
	}

	present := make(map[string]bool)
	for _, lvl := range v.Bids {
		present[lvl.Price.String()] = true
	}
	for _, lvl := range v.Asks {
		present[lvl.Price.String()] = true
	}

	var out []AbsorptionEvent
	for priceKey, count := range counts {
		if count < cfg.AbsorptionMinRefills || !present[priceKey] {
			continue
		}
		price, err := decimal.NewFromString(priceKey)
		if err != nil {
			continue
		}
		out = append(out, AbsorptionEvent{
			Side:    sides[priceKey],
			Price:   price,
			Refills: count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Refills > out[j].Refills })
	return out
}
