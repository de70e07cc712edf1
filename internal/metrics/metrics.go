// Package metrics exposes engine counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boldengine"

// Pass results.
const (
	PassOK      = "ok"
	PassError   = "error"
	PassSkipped = "skipped"
)

// Recorder holds the engine's collectors on a private registry. Every method
// is safe on a nil *Recorder, which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	passRuns      *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	lastPass      *prometheus.GaugeVec
	vaults        *prometheus.CounterVec
	betsSettled   *prometheus.CounterVec
	ledgerLookups *prometheus.CounterVec
}

// New creates a Recorder with its collectors registered, including the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		passRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "pass_runs_total",
				Help:      "Scheduled passes by task and result.",
			},
			[]string{"task", "result"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "pass_duration_seconds",
				Help:      "Duration of completed passes.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"task"},
		),
		lastPass: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "last_pass_timestamp_seconds",
				Help:      "Unix time the last pass of each task finished.",
			},
			[]string{"task"},
		),
		vaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provisioner",
				Name:      "vaults_total",
				Help:      "Vault provisioning attempts by result.",
			},
			[]string{"result"},
		),
		betsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "bets_total",
				Help:      "Pending bets examined by outcome of the examination.",
			},
			[]string{"result"},
		),
		ledgerLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "lookups_total",
				Help:      "Ledger transaction lookups by result.",
			},
			[]string{"result"},
		),
	}

	r.registry.MustRegister(
		r.passRuns,
		r.passDuration,
		r.lastPass,
		r.vaults,
		r.betsSettled,
		r.ledgerLookups,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObservePass records one pass of task. Skipped passes carry no duration.
func (r *Recorder) ObservePass(task, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.passRuns.WithLabelValues(task, result).Inc()
	if result == PassSkipped {
		return
	}
	r.passDuration.WithLabelValues(task).Observe(d.Seconds())
	r.lastPass.WithLabelValues(task).SetToCurrentTime()
}

// VaultResult counts a provisioning attempt ("created", "reused", "failed").
func (r *Recorder) VaultResult(result string) {
	if r == nil {
		return
	}
	r.vaults.WithLabelValues(result).Inc()
}

// BetResult counts an examined bet ("confirmed", "failed", "pending").
func (r *Recorder) BetResult(result string) {
	if r == nil {
		return
	}
	r.betsSettled.WithLabelValues(result).Inc()
}

// LedgerLookup counts a ledger lookup ("found", "not_found", "error").
func (r *Recorder) LedgerLookup(result string) {
	if r == nil {
		return
	}
	r.ledgerLookups.WithLabelValues(result).Inc()
}
