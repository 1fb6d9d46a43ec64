// Package stats exports the relay core's counters (spec.md §6 "Management
// surface") as Prometheus metrics: one count gauge and one running-average-
// nanoseconds gauge per relay.Stats accumulator, following the
// teacher's client_golang registration convention.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xsite-relay/xsite/relay"
)

const namespace = "xsite"

// Exporter copies a relay.Stats snapshot into Prometheus collectors on
// every Collect call (spec.md §6 names no wire format; Prometheus's own pull
// model is the natural fit for a long-lived counter set).
type Exporter struct {
	src *relay.Stats

	count   *prometheus.GaugeVec
	avgNans *prometheus.GaugeVec
}

var labelNames = []string{"op"}

// NewExporter builds an Exporter over src. Call MustRegister to wire it
// into a prometheus.Registerer.
func NewExporter(src *relay.Stats) *Exporter {
	return &Exporter{
		src: src,
		count: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Count of relay core operations by kind.",
		}, labelNames),
		avgNans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "avg_duration_nanoseconds",
			Help:      "Running average duration, in nanoseconds, per relay core operation.",
		}, labelNames),
	}
}

// MustRegister registers the exporter's collectors with reg.
func (e *Exporter) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(e.count, e.avgNans)
}

// counter is the subset of relay.Stats' per-operation accumulator that
// this exporter needs.
type counter interface {
	Count() int64
	AvgNanos() int64
}

type namedCounter struct {
	name string
	c    counter
}

// ops names the Stats fields this exporter tracks, paired with an accessor.
// The admin text dump does not use it; it renders relay.Stats.String.
func (e *Exporter) ops() []namedCounter {
	return []namedCounter{
		{"relayed", &e.src.Relayed},
		{"forward_to_local_mbr", &e.src.ForwardToLocalMbr},
		{"forward_to_master", &e.src.ForwardToMaster},
		{"delivered", &e.src.Delivered},
		{"unreachable", &e.src.Unreachable},
	}
}

// Collect refreshes every gauge from the current Stats snapshot. Intended
// to run on a short interval (e.g. driven by the admin HTTP handler) since
// GaugeVec has no native "compute on scrape" hook without a custom
// Collector, and the teacher's stats runner likewise polls on a timer
// rather than implementing prometheus.Collector directly.
func (e *Exporter) Collect() {
	for _, op := range e.ops() {
		e.count.WithLabelValues(op.name).Set(float64(op.c.Count()))
		e.avgNans.WithLabelValues(op.name).Set(float64(op.c.AvgNanos()))
	}
}
