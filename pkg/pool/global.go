package pool

import (
	"sync"
	"time"
)

// The background pool is shared process-wide so request handlers and the
// chat service can push asynchronous work (cache writes, bookkeeping)
// without each owning a pool.
var (
	backgroundPool *Pool
	backgroundOnce sync.Once
	backgroundErr  error
)

// Background returns the shared background pool, creating it on first use.
func Background() (*Pool, error) {
	backgroundOnce.Do(func() {
		backgroundPool, backgroundErr = New("background", BackgroundConfig())
	})
	return backgroundPool, backgroundErr
}

// SubmitBackground submits a task to the shared background pool. Callers
// that must not drop the task should fall back to a plain goroutine when
// this returns an error.
func SubmitBackground(task func()) error {
	p, err := Background()
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// ReleaseBackground shuts down the shared background pool, waiting up to
// timeout for in-flight tasks. Used on service shutdown.
func ReleaseBackground(timeout time.Duration) error {
	if backgroundPool == nil {
		return nil
	}
	return backgroundPool.ReleaseTimeout(timeout)
}
