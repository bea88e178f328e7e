// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics exposes Prometheus metrics for batches, statements and pools.
// Each Metrics value owns its registry, so several can coexist in one process
// (tests, multiple hosts). All methods are safe on a nil *Metrics and do nothing.
package metrics

import (
	"net/http"
	"time"

	"pgmulti/cli/internal/pool"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pgmulti"

// Batch results.
const (
	BatchOK               = "ok"
	BatchPartial          = "partial"
	BatchRejected         = "rejected"
	BatchConnectionFailed = "connection_failed"
	BatchUnconfigured     = "unconfigured"
)

// PoolStatter is anything that can report pool counters.
type PoolStatter interface {
	Stat() pool.Stats
}

// Metrics holds the connector's collectors.
type Metrics struct {
	registry *prometheus.Registry

	batches           *prometheus.CounterVec
	statements        *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	acquireDuration   *prometheus.HistogramVec
	rowsEmitted       *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batches processed, by node and result",
			},
			[]string{"node", "result"},
		),
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statements_total",
				Help:      "Total number of statements executed, by node and status",
			},
			[]string{"node", "status"},
		),
		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "statement_duration_milliseconds",
				Help:      "Statement execution time in milliseconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
			},
			[]string{"node"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquire_duration_milliseconds",
				Help:      "Time spent waiting for a pooled connection in milliseconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"node"},
		),
		rowsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_emitted_total",
				Help:      "Total number of rows placed in outbound payloads",
			},
			[]string{"node"},
		),
	}

	m.registry.MustRegister(
		m.batches,
		m.statements,
		m.statementDuration,
		m.acquireDuration,
		m.rowsEmitted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch counts one finished batch.
func (m *Metrics) ObserveBatch(node, result string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(node, result).Inc()
}

// ObserveStatement counts one statement and records its duration.
func (m *Metrics) ObserveStatement(node string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
	}
	m.statements.WithLabelValues(node, status).Inc()
	m.statementDuration.WithLabelValues(node).Observe(float64(d.Microseconds()) / 1000)
}

// ObserveAcquire records how long a batch waited for its connection.
func (m *Metrics) ObserveAcquire(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.acquireDuration.WithLabelValues(node).Observe(float64(d.Microseconds()) / 1000)
}

// ObserveRows counts rows emitted downstream.
func (m *Metrics) ObserveRows(node string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsEmitted.WithLabelValues(node).Add(float64(n))
}

// WatchPool exports pool gauges for one node. It returns a function that
// unregisters them again, to be called when the pool is closed.
func (m *Metrics) WatchPool(node string, p PoolStatter) (unregister func()) {
	if m == nil || p == nil {
		return func() {}
	}

	labels := prometheus.Labels{"node": node}
	gauge := func(name, help string, read func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return read(p.Stat()) })
	}

	cs := []prometheus.Collector{
		gauge("max_conns", "Maximum pool size", func(s pool.Stats) float64 { return float64(s.MaxConns) }),
		gauge("total_conns", "Connections currently open", func(s pool.Stats) float64 { return float64(s.TotalConns) }),
		gauge("idle_conns", "Idle connections", func(s pool.Stats) float64 { return float64(s.IdleConns) }),
		gauge("acquired_conns", "Connections leased to batches", func(s pool.Stats) float64 { return float64(s.AcquiredConns) }),
		gauge("discarded_conns", "Connections dropped after a connection-level failure", func(s pool.Stats) float64 { return float64(s.Discarded) }),
	}

	var registered []prometheus.Collector
	for _, c := range cs {
		if err := m.registry.Register(c); err == nil {
			registered = append(registered, c)
		}
	}
	return func() {
		for _, c := range registered {
			m.registry.Unregister(c)
		}
	}
}
