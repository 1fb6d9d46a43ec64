// Package suppress implements rate-limited logging keyed by an arbitrary
// string (spec.md §4.5 SuppressLog): "log this kind of event for this key
// at most once per window." A cuckoo filter, probed under the same mutex,
// recognizes keys that have never been seen, so a brand-new key is recorded
// and allowed without a lookup in the exact last-seen map.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package suppress

import (
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/xsite-relay/xsite/cmn/mono"
)

const defaultFilterCapacity = 1 << 16

// Log suppresses repeated log calls for the same key within a window.
type Log struct {
	mu     sync.Mutex
	seen   map[string]int64 // key -> last-logged mono.NanoTime
	filter *cuckoo.Filter
}

func New() *Log {
	return &Log{
		seen:   make(map[string]int64),
		filter: cuckoo.NewFilter(defaultFilterCapacity),
	}
}

// Allow reports whether an event for key should be logged now, given it
// must not repeat more often than window. It is itself responsible for
// recording that the event fired.
func (l *Log) Allow(key string, window time.Duration) bool {
	b := []byte(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.filter.Lookup(b) {
		// Definitely never seen before: log unconditionally and remember it.
		l.filter.Insert(b)
		l.seen[key] = mono.NanoTime()
		return true
	}

	last, ok := l.seen[key]
	now := mono.NanoTime()
	if !ok || mono.Since(last) >= window {
		l.seen[key] = now
		return true
	}
	return false
}

// Log calls logFn iff Allow(key, window) permits it.
func (l *Log) Log(key string, window time.Duration, logFn func()) {
	if l.Allow(key, window) {
		logFn()
	}
}

// RemoveExpired evicts entries whose last-logged time is older than
// window, bounding the exact map's growth. The cuckoo filter is left
// alone - a stale "maybe seen" entry there only costs an extra map probe,
// never a correctness issue.
func (l *Log) RemoveExpired(window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, last := range l.seen {
		if mono.Since(last) >= window {
			delete(l.seen, k)
			n++
		}
	}
	return n
}

// Reset clears all suppression state, used by the admin surface's
// clear-suppress-cache operation.
func (l *Log) Reset() {
	l.mu.Lock()
	l.seen = make(map[string]int64)
	l.filter = cuckoo.NewFilter(defaultFilterCapacity)
	l.mu.Unlock()
}
