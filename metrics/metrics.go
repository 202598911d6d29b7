// Package metrics exports block cache events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/djdv/go-blockcache"
)

// Prometheus implements [blockcache.Observer].
// Constructed by [New].
type Prometheus struct {
	requests   *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	writeBacks *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	checkpoint *prometheus.CounterVec
}

var _ blockcache.Observer = (*Prometheus)(nil)

// New creates the collectors and registers them with registerer.
// namespace prefixes every metric name.
func New(registerer prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Block requests served, by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Blocks evicted to make room, by whether they were dirty.",
		}, []string{"dirty"}),
		writeBacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_backs_total",
			Help:      "Device writes issued by the cache, by status.",
		}, []string{"status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of write-back, sync, and flush operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op", "status"}),
		checkpoint: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Blocks written by sync and flush.",
		}, []string{"op"}),
	}
	for _, collector := range []prometheus.Collector{
		p.requests, p.evictions, p.writeBacks,
		p.latency, p.checkpoint,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) OnHit(int64) {
	p.requests.WithLabelValues("hit").Inc()
}

func (p *Prometheus) OnMiss(int64) {
	p.requests.WithLabelValues("miss").Inc()
}

func (p *Prometheus) OnEviction(_ int64, dirty bool) {
	label := "false"
	if dirty {
		label = "true"
	}
	p.evictions.WithLabelValues(label).Inc()
}

func (p *Prometheus) OnWriteBack(d time.Duration, err error) {
	status := statusOf(err)
	p.writeBacks.WithLabelValues(status).Inc()
	p.latency.WithLabelValues("write_back", status).Observe(d.Seconds())
}

func (p *Prometheus) OnSync(d time.Duration, writes int, err error) {
	p.latency.WithLabelValues("sync", statusOf(err)).Observe(d.Seconds())
	p.checkpoint.WithLabelValues("sync").Add(float64(writes))
}

func (p *Prometheus) OnFlush(d time.Duration, writes int, err error) {
	p.latency.WithLabelValues("flush", statusOf(err)).Observe(d.Seconds())
	p.checkpoint.WithLabelValues("flush").Add(float64(writes))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
