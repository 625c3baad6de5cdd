package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config defines the configuration for a worker pool.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker lives before being reclaimed.
	ExpiryDuration time.Duration
	// PreAlloc preallocates worker memory up front.
	PreAlloc bool
	// Nonblocking makes Submit fail with ErrPoolOverload instead of waiting
	// when the pool is full.
	Nonblocking bool
	// MaxBlockingTasks caps the number of waiting submitters when blocking.
	// Zero means unlimited.
	MaxBlockingTasks int
	// PanicHandler receives panics recovered from tasks. When nil, panics
	// are logged.
	PanicHandler func(any)
}

// DefaultConfig returns a general-purpose pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:       100,
		ExpiryDuration: 10 * time.Second,
	}
}

// StartupConfig returns the configuration for the pool that opens category
// stores and probes providers at boot. Small and blocking: startup waits
// for every probe.
func StartupConfig() *Config {
	return &Config{
		Capacity:       8,
		ExpiryDuration: 30 * time.Second,
	}
}

// IngestConfig returns the configuration for the embedding workers used
// during ingestion. Blocking, so the chunk producer naturally throttles to
// the embedding provider's pace.
func IngestConfig(capacity int) *Config {
	if capacity <= 0 {
		capacity = 4
	}
	return &Config{
		Capacity:       capacity,
		ExpiryDuration: 60 * time.Second,
	}
}

// BackgroundConfig returns the configuration for fire-and-forget work such
// as cache writes. Nonblocking: request paths must never wait on it.
func BackgroundConfig() *Config {
	return &Config{
		Capacity:         50,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      true,
		MaxBlockingTasks: 100,
	}
}

// Pool is a named worker pool with task counters.
type Pool struct {
	name   string
	config *Config
	inner  *ants.Pool

	closed    atomic.Bool
	releaseMu sync.Mutex

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	waitNs    atomic.Int64
}

// Stats is a snapshot of pool counters.
type Stats struct {
	SubmittedTasks  int64
	CompletedTasks  int64
	FailedTasks     int64
	RejectedTasks   int64
	PanicRecovered  int64
	TotalWaitTimeNs int64
}

// New creates a worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	handler := config.PanicHandler
	if handler == nil {
		handler = func(r any) {
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}
	}

	inner, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(handler),
	)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}

	logger.Infow("Worker pool created",
		"name", name,
		"capacity", config.Capacity,
		"nonblocking", config.Nonblocking,
	)

	return &Pool{name: name, config: config, inner: inner}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int {
	return p.inner.Cap()
}

// Submit hands a task to the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	queuedAt := time.Now()
	err := p.inner.Submit(func() {
		p.waitNs.Add(int64(time.Since(queuedAt)))
		p.submitted.Add(1)

		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
				// Re-panic so the ants panic handler sees it.
				panic(r)
			}
			p.completed.Add(1)
		}()

		task()
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	default:
		p.failed.Add(1)
		return err
	}
}

// markClosed flips the pool to closed exactly once.
func (p *Pool) markClosed() bool {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()

	if p.closed.Load() {
		return false
	}
	p.closed.Store(true)
	return true
}

// Release closes the pool and discards pending work.
func (p *Pool) Release() {
	if !p.markClosed() {
		return
	}
	p.inner.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout closes the pool, waiting up to timeout for running tasks.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if !p.markClosed() {
		return nil
	}
	return p.inner.ReleaseTimeout(timeout)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.submitted.Load(),
		CompletedTasks:  p.completed.Load(),
		FailedTasks:     p.failed.Load(),
		RejectedTasks:   p.rejected.Load(),
		PanicRecovered:  p.panics.Load(),
		TotalWaitTimeNs: p.waitNs.Load(),
	}
}
