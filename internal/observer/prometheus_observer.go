package observer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// PrometheusObserver turns analysis events into Prometheus series on a private registry
type PrometheusObserver struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rejection *prometheus.CounterVec
	flagged   *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
}

// NewPrometheusObserver creates the observer and registers its collectors
func NewPrometheusObserver() *PrometheusObserver {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_requests_total",
			Help: "Analysis operations by outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vision_inference_duration_seconds",
			Help:    "Time spent in successful analysis operations",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		rejection: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_rejections_total",
			Help: "Images rejected by the validation pipeline",
		}, []string{"reason"}),
		flagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_flagged_total",
			Help: "Images flagged by content moderation",
		}, []string{"severity"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_cache_hits_total",
			Help: "Analysis operations answered from the result cache",
		}, []string{"operation"}),
	}

	o.registry.MustRegister(
		o.requests,
		o.duration,
		o.rejection,
		o.flagged,
		o.cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

// RegisterGauge exposes a value computed at scrape time
func (o *PrometheusObserver) RegisterGauge(name, help string, fn func() float64) error {
	if err := o.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)); err != nil {
		return fmt.Errorf("register gauge %s: %w", name, err)
	}
	return nil
}

// RegisterHostGauges exposes host memory and CPU utilisation
func (o *PrometheusObserver) RegisterHostGauges() error {
	if err := o.RegisterGauge("vision_host_memory_used_percent", "Host memory in use, percent.", func() float64 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return 0
		}
		return vm.UsedPercent
	}); err != nil {
		return err
	}
	return o.RegisterGauge("vision_host_cpu_percent", "Host CPU utilisation since the previous scrape, percent.", func() float64 {
		percent, err := cpu.Percent(0, false)
		if err != nil || len(percent) == 0 {
			return 0
		}
		return percent[0]
	})
}

// Registry returns the registry backing this observer
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// OnEvent handles analysis events by updating metrics
func (o *PrometheusObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	switch event.EventType {
	case DetectionCompleted:
		o.requests.WithLabelValues("detect", "success").Inc()
		o.observeDuration("detect", event)
	case DetectionFailed:
		o.requests.WithLabelValues("detect", "error").Inc()
	case ModerationCompleted:
		o.requests.WithLabelValues("moderate", "success").Inc()
		o.observeDuration("moderate", event)
		if safe, ok := event.Metadata[MetaIsSafe].(bool); ok && !safe {
			o.flagged.WithLabelValues(metaString(event, MetaSeverity)).Inc()
		}
	case ModerationFailed:
		o.requests.WithLabelValues("moderate", "error").Inc()
	case ValidationRejected:
		o.rejection.WithLabelValues(metaString(event, MetaReason)).Inc()
	case ImageFetched:
		o.requests.WithLabelValues("fetch", "success").Inc()
	case ImageFetchFailed:
		o.requests.WithLabelValues("fetch", "error").Inc()
	}
}

// observeDuration records inference latency; cache hits are counted instead
func (o *PrometheusObserver) observeDuration(operation string, event AnalysisEvent) {
	if cached, _ := event.Metadata[MetaCached].(bool); cached {
		o.cacheHits.WithLabelValues(operation).Inc()
		return
	}
	o.duration.WithLabelValues(operation).Observe(event.ProcessingTime.Seconds())
}

// GetObserverName returns the observer name
func (o *PrometheusObserver) GetObserverName() string {
	return "prometheus_observer"
}

func metaString(event AnalysisEvent, key string) string {
	if v, ok := event.Metadata[key]; ok {
		return fmt.Sprint(v)
	}
	return "unknown"
}
