// Package metrics exposes Prometheus instrumentation for the watcher.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "treewatch"

// Collector holds the watcher's metric vectors.
type Collector struct {
	records         *prometheus.CounterVec
	translated      *prometheus.CounterVec
	dispatched      *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	protocolErrors  prometheus.Counter
	overflows       prometheus.Counter
	loopErrors      *prometheus.CounterVec
	nodes           prometheus.Gauge
	queued          prometheus.Gauge
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_records_total",
			Help:      "Raw notification records drained from the watch source, by primary flag.",
		}, []string{"flag"}),
		translated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_translated_total",
			Help:      "Typed events produced by the watch tree.",
		}, []string{"kind"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Events delivered to a registered handler.",
		}, []string{"kind"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that panicked.",
		}, []string{"kind"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Raw records that violated the watch tree's invariants.",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_overflows_total",
			Help:      "Kernel notification queue overflows.",
		}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Errors recovered by the watcher's worker loops.",
		}, []string{"loop"}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_nodes",
			Help:      "Entries currently tracked by the watch tree.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_events",
			Help:      "Events waiting for dispatch.",
		}),
	}

	if reg != nil {
		for _, collector := range c.collectors() {
			if err := reg.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.records, c.translated, c.dispatched, c.handlerFailures,
		c.protocolErrors, c.overflows, c.loopErrors, c.nodes, c.queued,
	}
}

// RecordDrained counts one raw record.
func (c *Collector) RecordDrained(flag string) {
	if c == nil {
		return
	}
	c.records.WithLabelValues(flag).Inc()
}

// EventTranslated counts one event produced by the tree.
func (c *Collector) EventTranslated(kind string) {
	if c == nil {
		return
	}
	c.translated.WithLabelValues(kind).Inc()
}

// EventDispatched counts one handler invocation.
func (c *Collector) EventDispatched(kind string) {
	if c == nil {
		return
	}
	c.dispatched.WithLabelValues(kind).Inc()
}

// HandlerFailed counts one panicking handler.
func (c *Collector) HandlerFailed(kind string) {
	if c == nil {
		return
	}
	c.handlerFailures.WithLabelValues(kind).Inc()
}

// ProtocolError counts one invariant violation.
func (c *Collector) ProtocolError() {
	if c == nil {
		return
	}
	c.protocolErrors.Inc()
}

// Overflow counts one kernel queue overflow.
func (c *Collector) Overflow() {
	if c == nil {
		return
	}
	c.overflows.Inc()
}

// LoopError counts one error recovered by the named loop.
func (c *Collector) LoopError(loop string) {
	if c == nil {
		return
	}
	c.loopErrors.WithLabelValues(loop).Inc()
}

// SetNodes records the tree size.
func (c *Collector) SetNodes(n int) {
	if c == nil {
		return
	}
	c.nodes.Set(float64(n))
}

// SetQueued records the dispatch backlog.
func (c *Collector) SetQueued(n int) {
	if c == nil {
		return
	}
	c.queued.Set(float64(n))
}
