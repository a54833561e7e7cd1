// Package metrics exposes pushwatch's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results reported through DeliveryResult.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDeduped = "deduped"
	ResultDropped = "dropped"
)

type Recorder interface {
	ChangeEnqueued(property string, postponed bool)
	BatchFlushed(records int)
	CountdownEvent(kind string)
	DeliveryResult(result string)
	SetTrackedEntities(n int)
	Handler() http.Handler
}

type Config struct {
	Enabled bool
}

type Metrics struct {
	reg *prometheus.Registry

	changesTotal    *prometheus.CounterVec
	postponedTotal  prometheus.Counter
	batchesTotal    prometheus.Counter
	batchSize       prometheus.Histogram
	countdownTotal  *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	trackedEntities prometheus.Gauge
}

func New(cfg Config) Recorder {
	if !cfg.Enabled {
		return Noop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		changesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushwatch_changes_enqueued_total",
			Help: "Change records queued for delivery, by property.",
		}, []string{"property"}),
		postponedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pushwatch_flush_postponed_total",
			Help: "Enqueues that restarted an already scheduled debounce timer.",
		}),
		batchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pushwatch_batches_flushed_total",
			Help: "Debounced batches rendered into a notification.",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pushwatch_batch_records",
			Help:    "Records per flushed batch.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		countdownTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushwatch_countdown_events_total",
			Help: "Countdown inference events, by kind.",
		}, []string{"kind"}),
		deliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushwatch_deliveries_total",
			Help: "Notification deliveries, by result.",
		}, []string{"result"}),
		trackedEntities: f.NewGauge(prometheus.GaugeOpts{
			Name: "pushwatch_tracked_entities",
			Help: "Entities with an active subscription.",
		}),
	}
}

func (m *Metrics) ChangeEnqueued(property string, postponed bool) {
	m.changesTotal.WithLabelValues(property).Inc()
	if postponed {
		m.postponedTotal.Inc()
	}
}

func (m *Metrics) BatchFlushed(records int) {
	m.batchesTotal.Inc()
	m.batchSize.Observe(float64(records))
}

func (m *Metrics) CountdownEvent(kind string) { m.countdownTotal.WithLabelValues(kind).Inc() }

func (m *Metrics) DeliveryResult(result string) { m.deliveriesTotal.WithLabelValues(result).Inc() }

func (m *Metrics) SetTrackedEntities(n int) { m.trackedEntities.Set(float64(n)) }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

type noopMetrics struct{}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noopMetrics{} }

func (noopMetrics) ChangeEnqueued(string, bool) {}
func (noopMetrics) BatchFlushed(int)            {}
func (noopMetrics) CountdownEvent(string)       {}
func (noopMetrics) DeliveryResult(string)       {}
func (noopMetrics) SetTrackedEntities(int)      {}
func (noopMetrics) Handler() http.Handler       { return http.NotFoundHandler() }
