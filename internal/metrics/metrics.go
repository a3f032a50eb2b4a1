// Package metrics exposes Prometheus counters for HTTP traffic and the idea
// lifecycle.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ideaforge/api/internal/lifecycle"
)

const namespace = "ideaforge"

// Collector owns its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeRequests      prometheus.Gauge

	ideasGenerated *prometheus.CounterVec
	ideaEvents     *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	c.activeRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_requests",
		Help:      "Number of in-flight HTTP requests",
	})

	c.ideasGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ideas_generated_total",
		Help:      "Candidate ideas produced by the synthesizer",
	}, []string{"category"})

	c.ideaEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idea_events_total",
		Help:      "Durable idea lifecycle events",
	}, []string{"kind", "category"})

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.activeRequests,
		c.ideasGenerated,
		c.ideaEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Middleware records one sample per request, labelled by route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		c.activeRequests.Inc()
		defer c.activeRequests.Dec()

		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Observe counts lifecycle events.
func (c *Collector) Observe(_ context.Context, event lifecycle.Event) error {
	switch event.Kind {
	case lifecycle.EventGenerated:
		if event.Batch != nil {
			c.ideasGenerated.WithLabelValues(string(event.Batch.Category)).Add(float64(len(event.Batch.Ideas)))
		}
	default:
		c.ideaEvents.WithLabelValues(string(event.Kind), string(event.Idea.Category)).Inc()
	}
	return nil
}
