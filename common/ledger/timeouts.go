package ledger

import (
	"context"
	"time"
)

// Timeouts for node round trips made on behalf of a caller that is itself
// waiting, such as an HTTP request.
const (
	// DefaultReadTimeout bounds head and log queries.
	DefaultReadTimeout = 10 * time.Second

	// DefaultScanTimeout bounds a full-range record scan.
	DefaultScanTimeout = 30 * time.Second
)

// ReadContext derives a context bounded by DefaultReadTimeout.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultReadTimeout)
}

// ScanContext derives a context bounded by DefaultScanTimeout.
func ScanContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultScanTimeout)
}
