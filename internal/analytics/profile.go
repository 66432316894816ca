package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/book"
	"depthwatch/internal/types"
)

// ProfileBin is one price bucket of traded volume.
type ProfileBin struct {
	Price  decimal.Decimal `json:"price"` // lower bound of the bin
	Volume decimal.Decimal `json:"volume"`
}

// VolumeProfile is a histogram of traded volume by price bin over a window,
// with the point of control and the bounding value area.
type VolumeProfile struct {
	Symbol         string          `json:"symbol"`
	Window         time.Duration   `json:"window"`
	BinWidth       decimal.Decimal `json:"bin_width"`
	Bins           []ProfileBin    `json:"bins"`
	PointOfControl decimal.Decimal `json:"point_of_control"`
	ValueAreaHigh  decimal.Decimal `json:"value_area_high"`
	ValueAreaLow   decimal.Decimal `json:"value_area_low"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// tickSize infers the instrument's native price increment from the spacing
// of adjacent book levels. Falls back to the price's exponent when the book
// is too thin.
func tickSize(v book.View) decimal.Decimal {
	min := decimal.Zero
	scan := func(levels []types.PriceLevel) {
		for i := 1; i < len(levels) && i < 50; i++ {
			diff := levels[i-1].Price.Sub(levels[i].Price).Abs()
			if diff.IsZero() {
				continue
			}
			if min.IsZero() || diff.LessThan(min) {
				min = diff
			}
		}
	}
	scan(v.Bids)
	scan(v.Asks)

	if !min.IsZero() {
		return min
	}
	if len(v.Bids) > 0 {
		// One cent of the price's magnitude as a last resort.
		return v.Bids[0].Price.Div(decimal.NewFromInt(10_000))
	}
	return decimal.New(1, -2)
}

// computeProfile bins trade volume into adaptive-width buckets. Bin width is
// the native increment scaled up until the bin count fits maxBins.
func computeProfile(symbol string, trades []tradeEvent, v book.View, window types.Window, now time.Time, valueArea float64, maxBins int) (*VolumeProfile, error) {
	if len(trades) == 0 {
		return nil, types.ErrInsufficientData
	}

	lo, hi := trades[0].price, trades[0].price
	for _, t := range trades[1:] {
		if t.price.LessThan(lo) {
			lo = t.price
		}
		if t.price.GreaterThan(hi) {
			hi = t.price
		}
	}

	width := tickSize(v)
	if maxBins < 1 {
		maxBins = 1
	}
	span := hi.Sub(lo)
	// Widen bins until the span fits the bin budget.
	for span.Div(width).GreaterThan(decimal.NewFromInt(int64(maxBins))) {
		width = width.Mul(decimal.NewFromInt(10))
	}

	volumes := make(map[string]decimal.Decimal)
	for _, t := range trades {
		bin := t.price.Div(width).Floor().Mul(width)
		key := bin.String()
		volumes[key] = volumes[key].Add(t.qty)
	}

	bins := make([]ProfileBin, 0, len(volumes))
	total := decimal.Zero
	for key, vol := range volumes {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		bins = append(bins, ProfileBin{Price: price, Volume: vol})
		total = total.Add(vol)
	}
	sort.Slice(bins, func(i, j int) bool {
		return bins[i].Price.LessThan(bins[j].Price)
	})

	profile := &VolumeProfile{
		Symbol:      symbol,
		Window:      window.Duration(),
		BinWidth:    width,
		Bins:        bins,
		TotalVolume: total,
		GeneratedAt: now,
	}

	// Point of control: the bin with maximum volume.
	pocIdx := 0
	for i, bin := range bins {
		if bin.Volume.GreaterThan(bins[pocIdx].Volume) {
			pocIdx = i
		}
	}
	profile.PointOfControl = bins[pocIdx].Price

	// Value area: expand from the POC toward the heavier neighbor until the
	// captured volume reaches the configured fraction of the total.
	target := total.Mul(decimal.NewFromFloat(valueArea))
	lo2, hi2 := pocIdx, pocIdx
	captured := bins[pocIdx].Volume
	for captured.LessThan(target) && (lo2 > 0 || hi2 < len(bins)-1) {
		below := decimal.Zero
		if lo2 > 0 {
			below = bins[lo2-1].Volume
		}
		above := decimal.Zero
		if hi2 < len(bins)-1 {
			above = bins[hi2+1].Volume
		}
		if lo2 > 0 && (hi2 >= len(bins)-1 || below.GreaterThanOrEqual(above)) {
			lo2--
			captured = captured.Add(bins[lo2].Volume)
		} else {
			hi2++
			captured = captured.Add(bins[hi2].Volume)
		}
	}
	profile.ValueAreaLow = bins[lo2].Price
	profile.ValueAreaHigh = bins[hi2].Price.Add(width)
	return profile, nil
}
