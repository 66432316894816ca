package types

import "errors"

// Caller-visible error kinds. Callers branch on these with errors.Is; the
// boundary layer maps them to named error codes. Transient upstream failures
// are retried internally and never reach these.
var (
	// ErrSymbolNotFound means the symbol is invalid or not supported by the venue.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrCapacityExceeded means the tracked-symbol cap is reached and no new
	// symbol can be activated without evicting one first.
	ErrCapacityExceeded = errors.New("tracked symbol capacity exceeded")

	// ErrRateLimited means the request governor queue wait timed out.
	ErrRateLimited = errors.New("rate limited: governor queue timeout")

	// ErrInitializationFailed means the bootstrap snapshot fetch exhausted
	// its retries.
	ErrInitializationFailed = errors.New("order book initialization failed")

	// ErrInsufficientData means the book holds too few levels for the
	// requested computation.
	ErrInsufficientData = errors.New("insufficient book data")

	// ErrInvalidParameter means a caller-supplied level count or window is
	// out of range.
	ErrInvalidParameter = errors.New("invalid parameter")
)
