package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shopsync/pkg/queue"
)

// MetricsCollector holds every metric the service exports. Metrics live in
// their own registry so tests can build collectors freely.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	reconcileOutcomeTotal *prometheus.CounterVec
	reconcileRunDuration  prometheus.Histogram

	webhookReceivedTotal *prometheus.CounterVec
	relayEventTotal      *prometheus.CounterVec
	relayRedeliveryTotal *prometheus.CounterVec

	upstreamRequestTotal    *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	queueMessages *prometheus.GaugeVec
}

// NewMetricsCollector creates a collector under namespace
func NewMetricsCollector(namespace string) *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,

		httpRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		reconcileOutcomeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_sku_outcomes_total",
			Help:      "SKUs processed by inventory reconciliation, by outcome",
		}, []string{"status"}),
		reconcileRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_run_duration_seconds",
			Help:      "Duration of a full reconciliation run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		webhookReceivedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Inbound Shopify webhooks, by topic and intake result",
		}, []string{"topic", "result"}),
		relayEventTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Order webhook relay invocations, by terminal state",
		}, []string{"topic", "state"}),
		relayRedeliveryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_probable_redeliveries_total",
			Help:      "Webhook ids that were probably seen before",
		}, []string{"topic"}),

		upstreamRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound calls to Shopify and the external API",
		}, []string{"target", "operation", "outcome"}),
		upstreamRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of outbound calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "operation"}),

		queueMessages: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages",
			Help:      "Webhook queue counters, by state",
		}, []string{"state"}),
	}
}

// RecordHTTPRequest records one served request
func (mc *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	mc.httpRequestTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveSKUOutcome implements inventory.Recorder
func (mc *MetricsCollector) ObserveSKUOutcome(status string) {
	mc.reconcileOutcomeTotal.WithLabelValues(status).Inc()
}

// ObserveReconcileRun implements inventory.Recorder
func (mc *MetricsCollector) ObserveReconcileRun(elapsed time.Duration) {
	mc.reconcileRunDuration.Observe(elapsed.Seconds())
}

// RecordWebhook records the intake result of an inbound webhook
func (mc *MetricsCollector) RecordWebhook(topic, result string) {
	mc.webhookReceivedTotal.WithLabelValues(topic, result).Inc()
}

// ObserveRelay implements relay.Recorder
func (mc *MetricsCollector) ObserveRelay(topic, state string) {
	mc.relayEventTotal.WithLabelValues(topic, state).Inc()
}

// ObserveRedelivery implements relay.Recorder
func (mc *MetricsCollector) ObserveRedelivery(topic string) {
	mc.relayRedeliveryTotal.WithLabelValues(topic).Inc()
}

// ObserveUpstream records one outbound call
func (mc *MetricsCollector) ObserveUpstream(target, operation, outcome string, elapsed time.Duration) {
	mc.upstreamRequestTotal.WithLabelValues(target, operation, outcome).Inc()
	mc.upstreamRequestDuration.WithLabelValues(target, operation).Observe(elapsed.Seconds())
}

// UpdateQueueStats copies queue counters into gauges
func (mc *MetricsCollector) UpdateQueueStats(s queue.Stats) {
	mc.queueMessages.WithLabelValues("published").Set(float64(s.Published))
	mc.queueMessages.WithLabelValues("dropped").Set(float64(s.Dropped))
	mc.queueMessages.WithLabelValues("handled").Set(float64(s.Handled))
	mc.queueMessages.WithLabelValues("failed").Set(float64(s.Failed))
	mc.queueMessages.WithLabelValues("pending").Set(float64(s.Pending))
}

// StartQueueStatsCollection polls stats every interval until ctx is done
func (mc *MetricsCollector) StartQueueStatsCollection(ctx context.Context, stats func() queue.Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.UpdateQueueStats(stats())
			}
		}
	}()
}

// GetRegistry returns the registry backing the collector
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
