// Package metrics exposes detector and capture counters to Prometheus.
package metrics

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
)

// Capture modes used as the "mode" label.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	tickErrors      prometheus.Counter
	candidates      prometheus.Counter
	promotions      prometheus.Counter
	stability       prometheus.Gauge
	captures        *prometheus.CounterVec
	captureFailures prometheus.Counter
	memUsage        prometheus.Gauge
	cpuUsage        prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doccapture_detector_ticks_total",
			Help: "Frames analyzed by the live detector",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doccapture_detector_tick_errors_total",
			Help: "Ticks that failed to read or analyze a frame",
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doccapture_detector_quads_total",
			Help: "Ticks that found a document quadrilateral",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doccapture_detector_stable_updates_total",
			Help: "Ticks that recorded a stable quadrilateral",
		}),
		stability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "doccapture_detector_stability_counter",
			Help: "Current consecutive-frame detection count",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doccapture_captures_total",
			Help: "Capture requests by resolution path",
		}, []string{"mode"}),
		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doccapture_capture_failures_total",
			Help: "Capture or crop attempts that produced no document",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
	}

	m.registry.MustRegister(
		m.ticks, m.tickErrors, m.candidates, m.promotions, m.stability,
		m.captures, m.captureFailures, m.memUsage, m.cpuUsage,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records one analyzed frame.
func (m *Metrics) ObserveTick(found, stableUpdated bool, counter int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	if found {
		m.candidates.Inc()
	}
	if stableUpdated {
		m.promotions.Inc()
	}
	m.stability.Set(float64(counter))
}

// TickError records a tick that failed.
func (m *Metrics) TickError() {
	if m == nil {
		return
	}
	m.tickErrors.Inc()
}

// Captured records a document produced by the given mode.
func (m *Metrics) Captured(mode string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(mode).Inc()
}

// CaptureFailed records a capture that produced nothing.
func (m *Metrics) CaptureFailed() {
	if m == nil {
		return
	}
	m.captureFailures.Inc()
}

// StartProcessMonitor samples this process's memory and CPU every interval
// until ctx is cancelled.
func (m *Metrics) StartProcessMonitor(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if info, err := proc.MemoryInfo(); err == nil {
				m.memUsage.Set(float64(info.RSS / 1024 / 1024))
			}
			if pct, err := proc.CPUPercent(); err == nil {
				m.cpuUsage.Set(math.Round(pct*100) / 100)
			}
		}
	}
}
