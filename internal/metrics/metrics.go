// Package metrics provides Prometheus metrics for observability.
//
// One metric-set struct exists per concern: compilation, input resolution,
// pipeline execution, identity checks, dry-runs and artifact apply. Metric
// names are a contract with dashboards and must not change. Record helpers
// are nil-safe so components can run without metrics wired (tests, library
// embedding).
//
// Usage:
//
//	compile := metrics.NewCompileMetrics()
//	exec := metrics.NewExecMetrics()
//	eng := engine.New(engine.Options{CompileMetrics: compile, ExecMetrics: exec})
//
//	srv := metrics.NewServer(":9090")
//	srv.Start()
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dryRunBuckets are the contract buckets for dry_run_duration_ms.
var dryRunBuckets = []float64{100, 500, 1000, 1500, 2000, 5000}

// CompileMetrics covers mapping compilation.
type CompileMetrics struct {
	CallsTotal prometheus.Counter
	Duration   prometheus.Histogram
}

// NewCompileMetrics creates and registers compile metrics on the default
// registry.
func NewCompileMetrics() *CompileMetrics {
	return newCompileMetrics(prometheus.DefaultRegisterer)
}

// NewCompileMetricsWithRegistry registers on a custom registry. Useful for
// tests to avoid conflicts with the default registry.
func NewCompileMetricsWithRegistry(reg prometheus.Registerer) *CompileMetrics {
	return newCompileMetrics(reg)
}

func newCompileMetrics(reg prometheus.Registerer) *CompileMetrics {
	factory := promauto.With(reg)
	return &CompileMetrics{
		CallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_compile_calls_total",
			Help: "Total number of mapping compile calls.",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mapping_compile_duration_seconds",
			Help:    "Mapping compile duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveCompile records one compile call and its duration.
func (m *CompileMetrics) ObserveCompile(d time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.Inc()
	m.Duration.Observe(d.Seconds())
}

// ResolveMetrics covers JSONPath input resolution and its per-call cache.
type ResolveMetrics struct {
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	ResolveMs        prometheus.Histogram
	CacheSize        prometheus.Gauge
}

// NewResolveMetrics creates and registers resolve metrics on the default
// registry.
func NewResolveMetrics() *ResolveMetrics {
	return newResolveMetrics(prometheus.DefaultRegisterer)
}

// NewResolveMetricsWithRegistry registers on a custom registry.
func NewResolveMetricsWithRegistry(reg prometheus.Registerer) *ResolveMetrics {
	return newResolveMetrics(reg)
}

func newResolveMetrics(reg prometheus.Registerer) *ResolveMetrics {
	factory := promauto.With(reg)
	return &ResolveMetrics{
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jsonpath_cache_hits_total",
			Help: "Compiled JSONPath expression cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jsonpath_cache_misses_total",
			Help: "Compiled JSONPath expression cache misses.",
		}),
		ResolveMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jsonpath_resolve_ms",
			Help:    "JSONPath resolution latency in milliseconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jsonpath_cache_size",
			Help: "Number of compiled JSONPath expressions currently cached.",
		}),
	}
}

// CacheHit records a cache hit.
func (m *ResolveMetrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// CacheMiss records a cache miss.
func (m *ResolveMetrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetCacheSize updates the cache size gauge.
func (m *ResolveMetrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(n))
}

// ObserveResolve records one JSONPath evaluation.
func (m *ResolveMetrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.ResolveMs.Observe(float64(d.Microseconds()) / 1000.0)
}

// ExecMetrics covers pipeline operator execution.
type ExecMetrics struct {
	OpMs                  *prometheus.HistogramVec
	BudgetExceededTotal   prometheus.Counter
	ZipPadEventsTotal     prometheus.Counter
	ObjectifyRecordsTotal prometheus.Counter
	ObjectifyMissingTotal prometheus.Counter
}

// NewExecMetrics creates and registers executor metrics on the default
// registry.
func NewExecMetrics() *ExecMetrics {
	return newExecMetrics(prometheus.DefaultRegisterer)
}

// NewExecMetricsWithRegistry registers on a custom registry.
func NewExecMetricsWithRegistry(reg prometheus.Registerer) *ExecMetrics {
	return newExecMetrics(reg)
}

func newExecMetrics(reg prometheus.Registerer) *ExecMetrics {
	factory := promauto.With(reg)
	return &ExecMetrics{
		OpMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mapping_op_ms",
			Help:    "Per-operator execution latency in milliseconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}, []string{"op"}),
		BudgetExceededTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_op_budget_exceeded_total",
			Help: "Pipelines aborted for exceeding the operator budget.",
		}),
		ZipPadEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_zip_pad_events_total",
			Help: "zip operations that padded a shorter input list.",
		}),
		ObjectifyRecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_objectify_records_total",
			Help: "Records produced by objectify operations.",
		}),
		ObjectifyMissingTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_objectify_missing_fields_total",
			Help: "Missing field positions filled (or aborted) by objectify.",
		}),
	}
}

// ObserveOp records one operator invocation.
func (m *ExecMetrics) ObserveOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.OpMs.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000.0)
}

// BudgetExceeded records a pipeline aborted on budget.
func (m *ExecMetrics) BudgetExceeded() {
	if m == nil {
		return
	}
	m.BudgetExceededTotal.Inc()
}

// ZipPad records one zip padding event.
func (m *ExecMetrics) ZipPad() {
	if m == nil {
		return
	}
	m.ZipPadEventsTotal.Inc()
}

// ObjectifyRecords records records emitted by one objectify.
func (m *ExecMetrics) ObjectifyRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObjectifyRecordsTotal.Add(float64(n))
}

// ObjectifyMissing records missing field positions seen by objectify.
func (m *ExecMetrics) ObjectifyMissing(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObjectifyMissingTotal.Add(float64(n))
}

// CheckIDMetrics covers the check-ids entry point.
type CheckIDMetrics struct {
	CallsTotal      prometheus.Counter
	DuplicatesTotal prometheus.Counter
}

// NewCheckIDMetrics creates and registers check-ids metrics on the default
// registry.
func NewCheckIDMetrics() *CheckIDMetrics {
	return newCheckIDMetrics(prometheus.DefaultRegisterer)
}

// NewCheckIDMetricsWithRegistry registers on a custom registry.
func NewCheckIDMetricsWithRegistry(reg prometheus.Registerer) *CheckIDMetrics {
	return newCheckIDMetrics(reg)
}

func newCheckIDMetrics(reg prometheus.Registerer) *CheckIDMetrics {
	factory := promauto.With(reg)
	return &CheckIDMetrics{
		CallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_check_ids_total",
			Help: "Total check-ids calls.",
		}),
		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mapping_check_ids_duplicates",
			Help: "Duplicate ids found by check-ids calls.",
		}),
	}
}

// ObserveCheck records one check-ids call and its duplicate count.
func (m *CheckIDMetrics) ObserveCheck(duplicates int) {
	if m == nil {
		return
	}
	m.CallsTotal.Inc()
	if duplicates > 0 {
		m.DuplicatesTotal.Add(float64(duplicates))
	}
}

// DryRunMetrics covers dry-run execution.
type DryRunMetrics struct {
	Total       prometheus.Counter
	DurationMs  prometheus.Histogram
	IssuesTotal *prometheus.CounterVec
	SampleSize  prometheus.Histogram
}

// NewDryRunMetrics creates and registers dry-run metrics on the default
// registry.
func NewDryRunMetrics() *DryRunMetrics {
	return newDryRunMetrics(prometheus.DefaultRegisterer)
}

// NewDryRunMetricsWithRegistry registers on a custom registry.
func NewDryRunMetricsWithRegistry(reg prometheus.Registerer) *DryRunMetrics {
	return newDryRunMetrics(reg)
}

func newDryRunMetrics(reg prometheus.Registerer) *DryRunMetrics {
	factory := promauto.With(reg)
	return &DryRunMetrics{
		Total: factory.NewCounter(prometheus.CounterOpts{
			Name: "dry_run_total",
			Help: "Total dry-run calls.",
		}),
		DurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dry_run_duration_ms",
			Help:    "Dry-run duration in milliseconds.",
			Buckets: dryRunBuckets,
		}),
		IssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dry_run_issues_total",
			Help: "Issues produced by dry-runs, by code.",
		}, []string{"code"}),
		SampleSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dry_run_sample_size",
			Help:    "Number of rows per dry-run call.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000},
		}),
	}
}

// ObserveDryRun records one dry-run call.
func (m *DryRunMetrics) ObserveDryRun(d time.Duration, sampleSize int) {
	if m == nil {
		return
	}
	m.Total.Inc()
	m.DurationMs.Observe(float64(d.Milliseconds()))
	m.SampleSize.Observe(float64(sampleSize))
}

// Issue records issues of one code.
func (m *DryRunMetrics) Issue(code string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IssuesTotal.WithLabelValues(code).Add(float64(n))
}

// Apply resource labels.
const (
	ResourceILM      = "ilm"
	ResourcePipeline = "pipeline"
	ResourceIndex    = "index"
)

// ApplyMetrics covers pushing compiled artifacts to the search cluster.
type ApplyMetrics struct {
	SuccessTotal *prometheus.CounterVec
	FailTotal    *prometheus.CounterVec
}

// NewApplyMetrics creates and registers apply metrics on the default
// registry.
func NewApplyMetrics() *ApplyMetrics {
	return newApplyMetrics(prometheus.DefaultRegisterer)
}

// NewApplyMetricsWithRegistry registers on a custom registry.
func NewApplyMetricsWithRegistry(reg prometheus.Registerer) *ApplyMetrics {
	return newApplyMetrics(reg)
}

func newApplyMetrics(reg prometheus.Registerer) *ApplyMetrics {
	factory := promauto.With(reg)
	return &ApplyMetrics{
		SuccessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mapping_apply_success_total",
			Help: "Successfully applied artifacts, by resource.",
		}, []string{"resource"}),
		FailTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mapping_apply_fail_total",
			Help: "Failed artifact applies, by resource.",
		}, []string{"resource"}),
	}
}

// Success records one applied resource.
func (m *ApplyMetrics) Success(resource string) {
	if m == nil {
		return
	}
	m.SuccessTotal.WithLabelValues(resource).Inc()
}

// Fail records one failed apply.
func (m *ApplyMetrics) Fail(resource string) {
	if m == nil {
		return
	}
	m.FailTotal.WithLabelValues(resource).Inc()
}
