package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/issues"
	"github.com/mapforge-io/mapforge/internal/metrics"
	"github.com/mapforge-io/mapforge/internal/resolve"
	"github.com/mapforge-io/mapforge/internal/value"
)

// DefaultOpBudget bounds operator invocations per row per field, counting
// sub-pipeline invocations made by map and when.
const DefaultOpBudget = 200

// Exec executes compiled plans. One Exec serves one engine call; the
// normalized dictionaries are that call's shared cache.
type Exec struct {
	Conv     *value.Conv
	Resolver *resolve.Resolver
	Dicts    map[string]dsl.Dictionary
	Norm     map[string]map[string]any
	Metrics  *metrics.ExecMetrics
	Budget   int
}

// runState is the per-row, per-field execution state.
type runState struct {
	row       map[string]any
	rowIdx    int
	field     string
	issues    []issues.Issue
	remaining int
	exceeded  bool
}

func (rs *runState) add(code, msg string) {
	rs.issues = append(rs.issues, issues.Issue{
		Row: rs.rowIdx, Field: rs.field, Code: code, Msg: msg,
	})
}

// Run executes a plan against one row's initial value. It returns the final
// value and any issues raised. A budget overrun forces the result to nil.
func (e *Exec) Run(plan *Plan, initial any, row map[string]any, rowIdx int) (any, []issues.Issue) {
	budget := e.Budget
	if budget <= 0 {
		budget = DefaultOpBudget
	}
	rs := &runState{row: row, rowIdx: rowIdx, field: plan.Field, remaining: budget}
	out := e.runSteps(plan.Steps, initial, rs)
	if rs.exceeded {
		out = nil
	}
	return out, rs.issues
}

func (e *Exec) runSteps(steps []Step, cur any, rs *runState) any {
	for i := range steps {
		if rs.exceeded {
			return nil
		}
		if rs.remaining <= 0 {
			rs.exceeded = true
			rs.add(issues.OpBudgetExceeded, fmt.Sprintf("operator budget of %d exhausted", e.budget()))
			e.Metrics.BudgetExceeded()
			return nil
		}
		rs.remaining--

		step := &steps[i]
		start := time.Now()
		cur = e.applyStep(step, cur, rs)
		e.Metrics.ObserveOp(step.Op, time.Since(start))
	}
	return cur
}

func (e *Exec) budget() int {
	if e.Budget > 0 {
		return e.Budget
	}
	return DefaultOpBudget
}

func (e *Exec) applyStep(step *Step, cur any, rs *runState) any {
	if !knownOps[step.Op] {
		rs.add(issues.WarnOpUnknown, fmt.Sprintf("unknown operator %q", step.Op))
		return cur
	}
	if step.prepErr != nil {
		switch {
		case errors.Is(step.prepErr, errBadRegex):
			rs.add(issues.RegexError, step.prepErr.Error())
		case errors.Is(step.prepErr, errGuardedRegex):
			rs.add(issues.RegexGuard, step.prepErr.Error())
		default:
			rs.add(issues.OpExec, step.prepErr.Error())
		}
		return nil
	}
	if arrayAware[step.Op] {
		return e.applyArray(step, cur, rs)
	}
	// Per-value operators see a scalar: a list-typed current value is
	// collapsed first, except for the operators that consume whole lists.
	if _, isList := cur.([]any); isList && !listConsuming[step.Op] {
		cur = e.Conv.Collapse(cur)
	}
	return e.applyValue(step, cur, rs)
}
