package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mapforge-io/mapforge/internal/assemble"
	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/identity"
	"github.com/mapforge-io/mapforge/internal/issues"
	"github.com/mapforge-io/mapforge/internal/pipeline"
	"github.com/mapforge-io/mapforge/internal/resolve"
	"github.com/mapforge-io/mapforge/internal/schema"
)

// DocPreview is one emitted document.
type DocPreview struct {
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

// DryRunStats aggregates the issue stream.
type DryRunStats struct {
	IssuesPerCode    map[string]int `json:"issues_per_code"`
	DateFailPerField map[string]int `json:"date_fail_per_field"`
}

// DryRunResult is the output of one dry-run call.
type DryRunResult struct {
	DocsPreview  []DocPreview   `json:"docs_preview"`
	Issues       []issues.Issue `json:"issues"`
	Stats        DryRunStats    `json:"stats"`
	CompiledHash string         `json:"compiled_hash"`
}

// session is the per-call execution state: resolver cache, compiled plans,
// dictionaries and the conflict tracker. It never outlives the call.
type session struct {
	exec      *pipeline.Exec
	plans     []*pipeline.Plan
	assembler *assemble.Assembler
	tracker   *identity.Tracker
}

func (e *Engine) newSession(m *dsl.Mapping) *session {
	s := &session{
		exec: &pipeline.Exec{
			Conv:     m.Globals.Conv(),
			Resolver: resolve.New(e.resolveMetrics),
			Dicts:    m.Dictionaries,
			Metrics:  e.execMetrics,
			Budget:   e.opBudget,
		},
		assembler: assemble.New(m.Containers),
		tracker:   identity.NewTracker(),
	}
	for _, f := range m.Fields {
		s.plans = append(s.plans, pipeline.Compile(f.Target, f.Pipeline))
	}
	return s
}

// DryRun validates the mapping and executes it over the sample rows,
// returning the documents that would be indexed plus every issue raised.
func (e *Engine) DryRun(m *dsl.Mapping, rows []map[string]any) (*DryRunResult, error) {
	start := time.Now()

	validation := dsl.Validate(m, rows)
	if !validation.OK() {
		return nil, &ValidationError{Issues: validation.Errors}
	}

	hash, err := schema.CompiledHash(m)
	if err != nil {
		return nil, fmt.Errorf("engine: compiled hash: %w", err)
	}

	sess := e.newSession(m)
	result := &DryRunResult{
		CompiledHash: hash,
		Stats: DryRunStats{
			IssuesPerCode:    map[string]int{},
			DateFailPerField: map[string]int{},
		},
	}

	previewByID := map[string]int{}
	for rowIdx, row := range rows {
		doc := map[string]any{}
		for i, f := range m.Fields {
			initial := sess.exec.Resolver.ResolveAll(f.Input, row)
			out, iss := sess.exec.Run(sess.plans[i], initial, row, rowIdx)
			result.addIssues(iss)
			sess.assembler.Place(doc, f.Target, out)
		}

		id, keep := e.resolveIdentity(m.IDPolicy, row, rowIdx, sess.tracker, result)
		if !keep {
			continue
		}
		if prev, dup := previewByID[id]; dup && m.IDPolicy != nil && m.IDPolicy.OnConflict == identity.ConflictOverwrite {
			result.DocsPreview[prev] = DocPreview{ID: id, Source: doc}
			continue
		}
		previewByID[id] = len(result.DocsPreview)
		result.DocsPreview = append(result.DocsPreview, DocPreview{ID: id, Source: doc})
	}

	e.dryRunMetrics.ObserveDryRun(time.Since(start), len(rows))
	for code, n := range result.Stats.IssuesPerCode {
		e.dryRunMetrics.Issue(code, n)
	}

	e.logger.WithRequestID(uuid.NewString()).Infof("dry-run complete", map[string]any{
		"route":         "dry_run",
		"dsl_version":   m.DSLVersion,
		"compiled_hash": hash,
		"sample_size":   len(rows),
		"latency_ms":    time.Since(start).Milliseconds(),
		"issues_count":  len(result.Issues),
	})
	return result, nil
}

// resolveIdentity builds the row's id and applies the conflict policy. The
// second return reports whether the document should be kept.
func (e *Engine) resolveIdentity(p *dsl.IDPolicy, row map[string]any, rowIdx int, tracker *identity.Tracker, result *DryRunResult) (string, bool) {
	if p == nil {
		return "", true
	}
	id := identity.BuildID(p, row)
	conflict, firstRow := tracker.Observe(id, rowIdx)
	if !conflict {
		return id, true
	}

	result.addIssues([]issues.Issue{{
		Row:   rowIdx,
		Field: "_id",
		Code:  issues.IDConflict,
		Msg:   fmt.Sprintf("id %q already produced by row %d", id, firstRow),
	}})

	switch p.OnConflict {
	case identity.ConflictSkip:
		return id, false
	default:
		// error keeps both documents; overwrite is handled by the caller.
		return id, true
	}
}

func (r *DryRunResult) addIssues(iss []issues.Issue) {
	for _, issue := range iss {
		r.Issues = append(r.Issues, issue)
		r.Stats.IssuesPerCode[issue.Code]++
		if issue.Code == issues.DateParseFail {
			r.Stats.DateFailPerField[issue.Field]++
		}
	}
}
