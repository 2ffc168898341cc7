// Package engine exposes the six mapping operations: validate, compile,
// dry-run, check-ids, infer-types and estimate-size. Each call builds its
// own session state (resolver cache, normalized dictionaries, compiled
// plans), so engines are safe for concurrent use.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/identity"
	"github.com/mapforge-io/mapforge/internal/infer"
	"github.com/mapforge-io/mapforge/internal/logging"
	"github.com/mapforge-io/mapforge/internal/metrics"
	"github.com/mapforge-io/mapforge/internal/schema"
)

// ErrValidation wraps validation errors that block compilation.
var ErrValidation = errors.New("engine: mapping validation failed")

// ValidationError carries the blocking issues behind ErrValidation.
type ValidationError struct {
	Issues []dsl.ValidationIssue
}

// Error implements error.
func (e *ValidationError) Error() string {
	codes := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		codes = append(codes, issue.Code)
	}
	return fmt.Sprintf("engine: mapping validation failed: %s", strings.Join(codes, ", "))
}

// Unwrap implements errors.Unwrap.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Options wires the engine's collaborators. Every field may be nil.
type Options struct {
	Logger         *logging.Logger
	CompileMetrics *metrics.CompileMetrics
	ResolveMetrics *metrics.ResolveMetrics
	ExecMetrics    *metrics.ExecMetrics
	CheckIDMetrics *metrics.CheckIDMetrics
	DryRunMetrics  *metrics.DryRunMetrics

	// OpBudget overrides the per-row per-field operator budget. Zero keeps
	// the executor default.
	OpBudget int
}

// Engine is the mapping subsystem facade.
type Engine struct {
	logger         *logging.Logger
	compiler       *schema.Compiler
	resolveMetrics *metrics.ResolveMetrics
	execMetrics    *metrics.ExecMetrics
	checkMetrics   *metrics.CheckIDMetrics
	dryRunMetrics  *metrics.DryRunMetrics
	opBudget       int
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Engine{
		logger:         logger,
		compiler:       schema.NewCompiler(opts.CompileMetrics),
		resolveMetrics: opts.ResolveMetrics,
		execMetrics:    opts.ExecMetrics,
		checkMetrics:   opts.CheckIDMetrics,
		dryRunMetrics:  opts.DryRunMetrics,
		opBudget:       opts.OpBudget,
	}
}

// Validate runs both validation stages against the mapping. Sample rows are
// optional; without them the unknown-column warnings are skipped.
func (e *Engine) Validate(m *dsl.Mapping, rows []map[string]any) dsl.ValidationResult {
	return dsl.Validate(m, rows)
}

// Compile validates the mapping and, when clean, emits the index artifacts.
// Validation errors block compilation entirely.
func (e *Engine) Compile(m *dsl.Mapping, includePlan bool) (*schema.Artifacts, error) {
	result := dsl.Validate(m, nil)
	if !result.OK() {
		return nil, &ValidationError{Issues: result.Errors}
	}
	return e.compiler.Compile(m, includePlan)
}

// CheckIDs runs the id policy over the rows.
func (e *Engine) CheckIDs(p *dsl.IDPolicy, rows []map[string]any) identity.CheckReport {
	return identity.CheckIDs(p, rows, e.checkMetrics)
}

// InferTypes collects column statistics and type suggestions from sample
// rows under the given globals.
func (e *Engine) InferTypes(rows []map[string]any, globals dsl.Globals) infer.Result {
	return infer.Infer(rows, globals.Conv())
}

// EstimateSize projects index size for the mapping and expected volume.
func (e *Engine) EstimateSize(m *dsl.Mapping, stats []infer.FieldStats, numDocs int64, replicas int, targetShardGB float64) infer.SizeEstimate {
	return infer.EstimateSize(m, stats, numDocs, replicas, targetShardGB)
}
