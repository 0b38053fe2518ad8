// Package admission gates server sessions against a fixed capacity.
//
// The active counter is shared by every Worker of one server and is only
// touched through atomic operations. A slot is taken with a single
// compare-and-swap test-and-increment, so concurrent accepts can never push the
// counter past capacity.
package admission

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/netspeed/internal/protocol"
)

// Controller tracks active sessions for one server.
type Controller struct {
	capacity uint32
	active   atomic.Int64

	accepted atomic.Uint64
	declined atomic.Uint64
}

// NewController admits at most capacity concurrent sessions.
func NewController(capacity uint32) *Controller {
	return &Controller{capacity: capacity}
}

// Capacity is the configured session limit.
func (c *Controller) Capacity() uint32 {
	return c.capacity
}

// Active returns the number of admitted sessions not yet released.
func (c *Controller) Active() int64 {
	return c.active.Load()
}

// Stats is a point-in-time snapshot of admission counters.
type Stats struct {
	Capacity uint32 `json:"capacity"`
	Active   int64  `json:"active"`
	Accepted uint64 `json:"accepted"`
	Declined uint64 `json:"declined"`
}

// Stats snapshots the counters. Fields are read independently.
func (c *Controller) Stats() Stats {
	return Stats{
		Capacity: c.capacity,
		Active:   c.active.Load(),
		Accepted: c.accepted.Load(),
		Declined: c.declined.Load(),
	}
}

// TryAcquire takes one slot. On success it returns a release func that
// decrements the counter exactly once no matter how often it is called. On
// failure it returns the reason to send with Decline.
func (c *Controller) TryAcquire() (release func(), reason protocol.DeclineReason, ok bool) {
	for {
		cur := c.active.Load()
		if cur >= int64(c.capacity) {
			c.declined.Add(1)
			return nil, protocol.MaxThreadsExceeded(c.capacity), false
		}
		if c.active.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	c.accepted.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			c.active.Add(-1)
		})
	}, protocol.DeclineReason{}, true
}
