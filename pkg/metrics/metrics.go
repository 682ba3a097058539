// Package metrics exposes the server's Prometheus collectors
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jzx17/wserver/pkg/types"
)

const namespace = "wserver"

const (
	AcceptedMetric        = namespace + "_connections_accepted_total"
	AcceptErrorsMetric    = namespace + "_accept_errors_total"
	HandledMetric         = namespace + "_handled_total"
	HandlerDurationMetric = namespace + "_handler_duration_seconds"
	QueueLengthMetric     = namespace + "_queue_length"
	QueueCapacityMetric   = namespace + "_queue_capacity"
	WaitingProducerMetric = namespace + "_queue_waiting_producers"
	WaitingConsumerMetric = namespace + "_queue_waiting_consumers"
	ActiveWorkersMetric   = namespace + "_workers_active"
)

// Metrics holds the collectors of one server, registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	accepted        prometheus.Counter
	acceptErrors    prometheus.Counter
	handled         *prometheus.CounterVec
	handlerDuration prometheus.Histogram
}

// New creates the collectors and registers them. withRuntime adds the Go
// runtime and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Count of connections accepted and handed to the queue.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Count of failed accept calls.",
		}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handled_total",
			Help:      "Count of connections served by a worker, by outcome.",
		}, []string{"result"}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time a worker spent serving one connection.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}

	m.registry.MustRegister(m.accepted, m.acceptErrors, m.handled, m.handlerDuration)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// both outcomes are exported from the start
	m.handled.WithLabelValues("success")
	m.handled.WithLabelValues("failure")

	return m
}

// RegisterQueue exports the queue gauges, read from stats at scrape time
func (m *Metrics) RegisterQueue(stats func() types.QueueStats) {
	gauge := func(name, help string, value func(types.QueueStats) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats())) })
	}

	m.registry.MustRegister(
		gauge("queue_length", "Connections waiting in the queue.",
			func(s types.QueueStats) int { return s.Len }),
		gauge("queue_capacity", "Fixed capacity of the queue.",
			func(s types.QueueStats) int { return s.Capacity }),
		gauge("queue_waiting_producers", "Producers blocked on a full queue.",
			func(s types.QueueStats) int { return s.WaitingProducers }),
		gauge("queue_waiting_consumers", "Workers blocked on an empty queue.",
			func(s types.QueueStats) int { return s.WaitingConsumers }),
	)
}

// RegisterWorkers exports the number of workers currently serving a connection
func (m *Metrics) RegisterWorkers(active func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers_active",
		Help:      "Workers currently serving a connection.",
	}, func() float64 { return float64(active()) }))
}

// RecordAccepted counts one enqueued connection
func (m *Metrics) RecordAccepted() {
	m.accepted.Inc()
}

// RecordAcceptError counts one failed accept
func (m *Metrics) RecordAcceptError(error) {
	m.acceptErrors.Inc()
}

// RecordHandled records the outcome and duration of one served connection.
// Its signature matches the worker pool completion callback.
func (m *Metrics) RecordHandled(d time.Duration, failed bool) {
	result := "success"
	if failed {
		result = "failure"
	}
	m.handled.WithLabelValues(result).Inc()
	m.handlerDuration.Observe(d.Seconds())
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}
