// Package mono provides low-level monotonic time used for latency
// accumulators and window arithmetic across the relay core.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// origin anchors NanoTime to a reading of the monotonic clock taken at
// process start.
var origin = time.Now()

// NanoTime returns a monotonic nanosecond timestamp suitable for computing
// durations (it is not wall-clock time and must never be serialized).
func NanoTime() int64 { return int64(time.Since(origin)) }

// Since returns the elapsed duration since a NanoTime() reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
