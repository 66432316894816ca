package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the book a level or event belongs to.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// PriceLevel represents a single price level in the order book
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Window represents a trailing analytics window length.
type Window time.Duration

const (
	Window10s Window = Window(10 * time.Second)
	Window30s Window = Window(30 * time.Second)
	Window60s Window = Window(time.Minute)
	Window5m  Window = Window(5 * time.Minute)
)

// AvailableWindows lists the supported analytics windows, shortest first.
var AvailableWindows = []Window{
	Window10s,
	Window30s,
	Window60s,
	Window5m,
}

// Duration returns the window as a time.Duration.
func (w Window) Duration() time.Duration {
	return time.Duration(w)
}

// ParseWindow maps a textual window name ("10s", "30s", "60s", "5m") to a
// Window. Unknown names fail with ErrInvalidParameter.
func ParseWindow(s string) (Window, error) {
	switch s {
	case "10s":
		return Window10s, nil
	case "30s":
		return Window30s, nil
	case "60s", "1m":
		return Window60s, nil
	case "5m":
		return Window5m, nil
	}
	return 0, ErrInvalidParameter
}

// BookStatus is the aggregate operational status across tracked symbols.
type BookStatus string

const (
	StatusHealthy  BookStatus = "healthy"
	StatusDegraded BookStatus = "degraded"
	StatusFailed   BookStatus = "failed"
)
