// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by Metrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeAsync = "async"
)

// Metrics holds the Prometheus collectors for parsing and evaluation.
type Metrics struct {
	Parses      *prometheus.CounterVec
	Evaluations *prometheus.CounterVec
	Duration    prometheus.Histogram
	CacheHits   prometheus.Counter
	Suspensions prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpr",
			Name:      "parses_total",
			Help:      "Expressions compiled, by outcome.",
		}, []string{"outcome"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpr",
			Name:      "evaluations_total",
			Help:      "Expressions evaluated, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xpr",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent in synchronous evaluation.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xpr",
			Name:      "compile_cache_hits_total",
			Help:      "Parses served from the compile cache.",
		}),
		Suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xpr",
			Name:      "async_suspensions_total",
			Help:      "Evaluations suspended on a pending asynchronous value.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Parses, m.Evaluations, m.Duration, m.CacheHits, m.Suspensions)
	}
	return m
}

// ObserveParse counts a compile.
func (m *Metrics) ObserveParse(err error) {
	if m == nil {
		return
	}
	m.Parses.WithLabelValues(outcome(err)).Inc()
}

// ObserveEvaluation counts an evaluation that started at start. async marks
// results still pending when Evaluate returned.
func (m *Metrics) ObserveEvaluation(start time.Time, async bool, err error) {
	if m == nil {
		return
	}
	m.Duration.Observe(time.Since(start).Seconds())
	o := outcome(err)
	if async && err == nil {
		o = OutcomeAsync
	}
	m.Evaluations.WithLabelValues(o).Inc()
}

// CacheHit counts a compile cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// Suspended counts an async suspension.
func (m *Metrics) Suspended() {
	if m != nil {
		m.Suspensions.Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
