// Package dispatch drives the two concurrent phases of a batch run:
// account initialization and per-account transaction dispatch.
package dispatch

import (
	"math/rand/v2"
	"time"

	"github.com/gateway-fm/batchsender/pkg/types"
)

// maxBackoffDelay caps exponential growth between attempts.
const maxBackoffDelay = 30 * time.Second

// Backoff computes the delay before a retry attempt. Keeping it a value
// makes retry timing testable without real sleeps.
type Backoff struct {
	Kind types.BackoffKind
	Base time.Duration
}

// Delay returns the wait before the given retry (attempt is 1-based:
// the delay taken after attempt N failed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		return 0
	}
	switch b.Kind {
	case types.BackoffExponential:
		d := b.Base << (attempt - 1)
		return min(d, maxBackoffDelay)
	case types.BackoffJittered:
		// Base plus up to one extra Base, uniformly.
		return b.Base + time.Duration(rand.Int64N(int64(b.Base)+1))
	default:
		return b.Base
	}
}
