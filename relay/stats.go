package relay

import (
	"fmt"
	"sync/atomic"
)

// Stats accumulates the relay core's forwarded/relayed/delivered message
// counters (spec.md §6 "Management surface"). Nanosecond accumulators let
// the admin/stats layer compute a running average without re-deriving it
// from individual samples.
type Stats struct {
	Relayed           counter
	ForwardToLocalMbr counter
	ForwardToMaster   counter
	Delivered         counter
	Unreachable       counter
}

type counter struct {
	n  atomic.Int64
	ns atomic.Int64
}

func (c *counter) Add(durationNs int64) {
	c.n.Add(1)
	c.ns.Add(durationNs)
}

func (c *counter) Count() int64 { return c.n.Load() }
func (c *counter) Nanos() int64 { return c.ns.Load() }

func (c *counter) AvgNanos() int64 {
	n := c.n.Load()
	if n == 0 {
		return 0
	}
	return c.ns.Load() / n
}

// String renders a human-readable dump for the admin surface's /stats
// endpoint.
func (s *Stats) String() string {
	return fmt.Sprintf(
		"relayed=%d forward_to_local_mbr=%d forward_to_master=%d delivered=%d unreachable=%d\n",
		s.Relayed.Count(), s.ForwardToLocalMbr.Count(), s.ForwardToMaster.Count(),
		s.Delivered.Count(), s.Unreachable.Count(),
	)
}
