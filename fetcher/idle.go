package fetcher

import (
	"io"
	"sync"
	"time"
)

// idleReader wraps a body reader with a watchdog: if no byte arrives within
// timeout, cancel is invoked exactly once. Grounded on the idle-timeout
// requirement of spec.md §5 ("5 s idle timeout" / "15 s idle timeout"); the
// upstream Rust client instead waited on a library-provided timeout future
// (src/fetch/http.rs), which has no direct stdlib equivalent, so the watchdog
// is rebuilt from a resettable timer.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	cancel  func()

	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel func()) *idleReader {
	ir := &idleReader{r: r, timeout: timeout, cancel: cancel}
	ir.timer = time.AfterFunc(timeout, ir.fire)
	return ir
}

func (ir *idleReader) fire() {
	ir.mu.Lock()
	ir.cancelled = true
	ir.mu.Unlock()
	ir.cancel()
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	ir.mu.Lock()
	if !ir.cancelled {
		ir.timer.Reset(ir.timeout)
	}
	ir.mu.Unlock()
	return n, err
}

func (ir *idleReader) Stop() {
	ir.timer.Stop()
}
