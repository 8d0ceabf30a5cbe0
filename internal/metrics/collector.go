package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the process's Prometheus instruments.
type Collector struct {
	subscribers        prometheus.Gauge
	broadcastsTotal    prometheus.Counter
	droppedSubscribers prometheus.Counter
	sampleDuration     prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdeck_ws_subscribers",
			Help: "Currently connected websocket subscribers.",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdeck_ws_broadcasts_total",
			Help: "Metric broadcast ticks fanned out to subscribers.",
		}),
		droppedSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdeck_ws_dropped_subscribers_total",
			Help: "Subscribers dropped for stalled or failed writes.",
		}),
		sampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsdeck_sample_duration_seconds",
			Help:    "Time spent producing one metric snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.subscribers,
		c.broadcastsTotal,
		c.droppedSubscribers,
		c.sampleDuration,
	)

	return c
}

func (c *Collector) SubscriberConnected()    { c.subscribers.Inc() }
func (c *Collector) SubscriberDisconnected() { c.subscribers.Dec() }
func (c *Collector) RecordBroadcast()        { c.broadcastsTotal.Inc() }
func (c *Collector) RecordDrop()             { c.droppedSubscribers.Inc() }

func (c *Collector) RecordSampleDuration(d time.Duration) {
	c.sampleDuration.Observe(d.Seconds())
}
