// Package pool wraps ants worker pools with task statistics. The service
// uses bounded pools for startup probes, ingestion embedding, and
// fire-and-forget background work.
package pool

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolOverload is returned by nonblocking pools that are full.
	ErrPoolOverload = errors.New("pool is overloaded")
)
