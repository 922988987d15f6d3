package watch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/plugbuild/internal/logfields"
)

// Metrics records watch-loop activity in a Prometheus registry.
type Metrics struct {
	registry        *prom.Registry
	eventsTotal     prom.Counter
	rebuildsTotal   *prom.CounterVec
	rebuildDuration prom.Histogram
	lastRebuild     prom.Gauge
}

// NewMetrics constructs and registers the watch metrics. Pass nil to get a
// fresh registry.
func NewMetrics(reg *prom.Registry) *Metrics {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		eventsTotal: prom.NewCounter(prom.CounterOpts{
			Namespace: "plugbuild",
			Name:      "watch_source_events_total",
			Help:      "Relevant source file events seen by the watcher",
		}),
		rebuildsTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "plugbuild",
			Name:      "watch_rebuilds_total",
			Help:      "Rebuild passes by outcome",
		}, []string{"outcome"}),
		rebuildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "plugbuild",
			Name:      "watch_rebuild_duration_seconds",
			Help:      "Duration of rebuild passes",
			Buckets:   prom.DefBuckets,
		}),
		lastRebuild: prom.NewGauge(prom.GaugeOpts{
			Namespace: "plugbuild",
			Name:      "watch_last_rebuild_timestamp_seconds",
			Help:      "Unix time of the most recent rebuild pass",
		}),
	}
	reg.MustRegister(m.eventsTotal, m.rebuildsTotal, m.rebuildDuration, m.lastRebuild)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return m
}

// EventSeen counts one relevant source change event.
func (m *Metrics) EventSeen() {
	m.eventsTotal.Inc()
}

// RebuildFinished records one rebuild pass.
func (m *Metrics) RebuildFinished(outcome string, d time.Duration) {
	m.rebuildsTotal.WithLabelValues(outcome).Inc()
	m.rebuildDuration.Observe(d.Seconds())
	m.lastRebuild.SetToCurrentTime()
}

// Serve exposes /metrics on addr in a background goroutine and returns a
// function that shuts the server down.
func (m *Metrics) Serve(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics endpoint listening", logfields.URL("http://"+addr+"/metrics"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics endpoint failed", logfields.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
