package collector

import (
	"sync/atomic"

	"github.com/tomx220052/cryptoprice/internal/exchange"
)

// CancelFlag is a cancellation token owned by the caller. The zero value is
// ready to use and safe for concurrent use.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests cancellation. Subsequent checks observe it at the next
// decision point; an in-flight request is not aborted.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled implements exchange.Canceller.
func (f *CancelFlag) Cancelled() bool {
	return f.cancelled.Load()
}

// Reset clears the flag so the token can be reused for another run.
func (f *CancelFlag) Reset() {
	f.cancelled.Store(false)
}

// CancelFunc adapts a predicate to exchange.Canceller.
type CancelFunc func() bool

// Cancelled implements exchange.Canceller.
func (f CancelFunc) Cancelled() bool {
	return f != nil && f()
}

var (
	_ exchange.Canceller = (*CancelFlag)(nil)
	_ exchange.Canceller = CancelFunc(nil)
)
