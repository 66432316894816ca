// Package depth serializes configurable-depth price/quantity ladders using a
// compact fixed-point integer scheme. Integer-scaled levels roughly halve the
// wire size versus decimal strings and survive round trips losslessly at the
// chosen scale.
package depth

import (
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/types"
)

const (
	// PriceScale and QuantityScale are the fixed multipliers applied before
	// truncating to integers. 1e8 covers crypto tick and lot precision.
	PriceScale    int64 = 100_000_000
	QuantityScale int64 = 100_000_000

	// MaxLevels bounds the caller-chosen level count.
	MaxLevels = 100
)

// Level is one integer-scaled price level.
type Level struct {
	Price    int64 `json:"p"`
	Quantity int64 `json:"q"`
}

// Encoded is a snapshot-at-a-point serialization of the top N levels per
// side. Bids are ordered descending, asks ascending; both strictly monotone.
// Always derived, never the system of record.
type Encoded struct {
	Symbol        string  `json:"symbol"`
	LastUpdateID  int64   `json:"last_update_id"`
	Timestamp     int64   `json:"ts"` // unix milliseconds
	PriceScale    int64   `json:"price_scale"`
	QuantityScale int64   `json:"qty_scale"`
	Bids          []Level `json:"bids"`
	Asks          []Level `json:"asks"`
}

var (
	priceScaleDec = decimal.NewFromInt(PriceScale)
	qtyScaleDec   = decimal.NewFromInt(QuantityScale)
)

// Encode converts sorted ladders (bids descending, asks ascending) into the
// fixed-point representation, keeping at most levels per side. A levels value
// outside [1, MaxLevels] fails with ErrInvalidParameter.
func Encode(symbol string, lastUpdateID int64, ts time.Time, bids, asks []types.PriceLevel, levels int) (*Encoded, error) {
	if levels < 1 || levels > MaxLevels {
		return nil, types.ErrInvalidParameter
	}

	enc := &Encoded{
		Symbol:        symbol,
		LastUpdateID:  lastUpdateID,
		Timestamp:     ts.UnixMilli(),
		PriceScale:    PriceScale,
		QuantityScale: QuantityScale,
		Bids:          encodeSide(bids, levels),
		Asks:          encodeSide(asks, levels),
	}
	return enc, nil
}

func encodeSide(side []types.PriceLevel, levels int) []Level {
	if len(side) > levels {
		side = side[:levels]
	}
	out := make([]Level, 0, len(side))
	var prev int64
	for i, lvl := range side {
		price := lvl.Price.Mul(priceScaleDec).IntPart()
		// Truncation must not collapse adjacent levels; drop any level that
		// lands on the previous one so the side stays strictly monotone.
		if i > 0 && price == prev {
			continue
		}
		prev = price
		out = append(out, Level{
			Price:    price,
			Quantity: lvl.Quantity.Mul(qtyScaleDec).IntPart(),
		})
	}
	return out
}

// Decode is the exact inverse division back to decimal ladders.
func Decode(enc *Encoded) (bids, asks []types.PriceLevel) {
	return decodeSide(enc.Bids, enc.PriceScale, enc.QuantityScale),
		decodeSide(enc.Asks, enc.PriceScale, enc.QuantityScale)
}

func decodeSide(side []Level, priceScale, qtyScale int64) []types.PriceLevel {
	ps := decimal.NewFromInt(priceScale)
	qs := decimal.NewFromInt(qtyScale)
	out := make([]types.PriceLevel, len(side))
	for i, lvl := range side {
		out[i] = types.PriceLevel{
			Price:    decimal.NewFromInt(lvl.Price).Div(ps),
			Quantity: decimal.NewFromInt(lvl.Quantity).Div(qs),
		}
	}
	return out
}
