package depth

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"depthwatch/internal/types"
)

func lvl(price, qty string) types.PriceLevel {
	return types.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bids := []types.PriceLevel{
		lvl("50000.12345678", "1.5"),
		lvl("49999.99", "2.00000001"),
		lvl("49998", "0.5"),
	}
	asks := []types.PriceLevel{
		lvl("50001.00000001", "1"),
		lvl("50002.5", "3"),
	}

	enc, err := Encode("BTCUSDT", 42, time.UnixMilli(1_700_000_000_000), bids, asks, 20)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if enc.LastUpdateID != 42 || enc.Timestamp != 1_700_000_000_000 {
		t.Errorf("Metadata lost: %+v", enc)
	}

	gotBids, gotAsks := Decode(enc)
	if len(gotBids) != len(bids) || len(gotAsks) != len(asks) {
		t.Fatalf("Level counts changed: %d/%d", len(gotBids), len(gotAsks))
	}
	for i := range bids {
		if !gotBids[i].Price.Equal(bids[i].Price) || !gotBids[i].Quantity.Equal(bids[i].Quantity) {
			t.Errorf("Bid %d: %s@%s became %s@%s", i,
				bids[i].Quantity, bids[i].Price, gotBids[i].Quantity, gotBids[i].Price)
		}
	}
	for i := range asks {
		if !gotAsks[i].Price.Equal(asks[i].Price) || !gotAsks[i].Quantity.Equal(asks[i].Quantity) {
			t.Errorf("Ask %d: %s@%s became %s@%s", i,
				asks[i].Quantity, asks[i].Price, gotAsks[i].Quantity, gotAsks[i].Price)
		}
	}
}

func TestEncodeTruncatesToRequestedLevels(t *testing.T) {
	var bids []types.PriceLevel
	for i := 0; i < 50; i++ {
		bids = append(bids, types.PriceLevel{
			Price:    decimal.NewFromInt(int64(50000 - i)),
			Quantity: decimal.NewFromInt(1),
		})
	}

	enc, err := Encode("BTCUSDT", 1, time.Now(), bids, nil, 10)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(enc.Bids) != 10 {
		t.Errorf("Expected 10 levels, got %d", len(enc.Bids))
	}
	// Descending and strictly monotone after scaling.
	for i := 1; i < len(enc.Bids); i++ {
		if enc.Bids[i].Price >= enc.Bids[i-1].Price {
			t.Errorf("Bid ordering violated at %d: %d >= %d", i, enc.Bids[i].Price, enc.Bids[i-1].Price)
		}
	}
}

func TestEncodeLevelBounds(t *testing.T) {
	bids := []types.PriceLevel{lvl("100", "1")}

	tests := []struct {
		name   string
		levels int
		ok     bool
	}{
		{name: "Zero levels", levels: 0, ok: false},
		{name: "Negative levels", levels: -5, ok: false},
		{name: "One level", levels: 1, ok: true},
		{name: "Max levels", levels: MaxLevels, ok: true},
		{name: "Above max", levels: MaxLevels + 1, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode("BTCUSDT", 1, time.Now(), bids, nil, tt.levels)
			if tt.ok && err != nil {
				t.Errorf("Expected success, got %v", err)
			}
			if !tt.ok && !errors.Is(err, types.ErrInvalidParameter) {
				t.Errorf("Expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestEncodeDropsCollapsedLevels(t *testing.T) {
	// These two prices differ below the 1e-8 scale and truncate to the same
	// integer; only the first survives.
	bids := []types.PriceLevel{
		lvl("100.000000001", "1"),
		lvl("100.000000000", "2"),
		lvl("99", "3"),
	}

	enc, err := Encode("BTCUSDT", 1, time.Now(), bids, nil, 20)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(enc.Bids) != 2 {
		t.Fatalf("Expected collapsed duplicate to be dropped, got %d levels", len(enc.Bids))
	}
	if enc.Bids[0].Quantity != QuantityScale {
		t.Errorf("First level quantity changed: %d", enc.Bids[0].Quantity)
	}
}
