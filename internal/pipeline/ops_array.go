package pipeline

import (
	"sort"
	"strings"

	"github.com/mapforge-io/mapforge/internal/value"
)

// applyArray dispatches the array-aware operators. These receive the
// current value uncollapsed.
func (e *Exec) applyArray(step *Step, cur any, rs *runState) any {
	switch step.Op {
	case "map":
		return e.opMap(step, cur, rs)
	case "take":
		return opTake(step, cur)
	case "join":
		return e.opJoin(step, cur)
	case "flatten":
		return opFlatten(cur)
	case "filter":
		return e.opFilter(step, cur)
	case "slice":
		return opSlice(step, cur)
	case "unique":
		return opUnique(step, cur)
	case "sort":
		return e.opSort(step, cur)
	case "zip":
		return e.opZip(step, cur, rs)
	case "objectify":
		return e.opObjectify(step, cur, rs)
	case "when":
		return e.opWhen(step, cur, rs)
	}
	return cur
}

func (e *Exec) opMap(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*subPlanPrep)
	list, ok := cur.([]any)
	if !ok {
		return e.runSteps(prep.then.Steps, cur, rs)
	}
	out := make([]any, len(list))
	for i, elem := range list {
		if rs.exceeded {
			return nil
		}
		out[i] = e.runSteps(prep.then.Steps, elem, rs)
	}
	return out
}

func opTake(step *Step, cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return cur
	}
	which, present := step.Args["which"]
	if !present {
		which = "first"
	}
	return takeFrom(list, which)
}

func (e *Exec) opJoin(step *Step, cur any) any {
	sep := argString(step.Args, "sep", "")
	list, ok := cur.([]any)
	if !ok {
		return value.Stringify(cur)
	}
	parts := make([]string, 0, len(list))
	for _, v := range list {
		if e.Conv.IsNothing(v) {
			continue
		}
		parts = append(parts, value.Stringify(v))
	}
	return strings.Join(parts, sep)
}

func opFlatten(cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return cur
	}
	out := make([]any, 0, len(list))
	for _, elem := range list {
		if inner, ok := elem.([]any); ok {
			out = append(out, inner...)
		} else {
			out = append(out, elem)
		}
	}
	return out
}

func (e *Exec) opFilter(step *Step, cur any) any {
	prep := step.prepared.(*condPrep)
	probeOf := func(elem any) any {
		if prep.by == "" {
			return elem
		}
		if rec, ok := elem.(map[string]any); ok {
			return rec[prep.by]
		}
		return elem
	}

	list, ok := cur.([]any)
	if !ok {
		if prep.cond.eval(probeOf(cur), e.Conv) {
			return cur
		}
		return nil
	}
	out := make([]any, 0, len(list))
	for _, elem := range list {
		if prep.cond.eval(probeOf(elem), e.Conv) {
			out = append(out, elem)
		}
	}
	return out
}

func opSlice(step *Step, cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return cur
	}
	start := argInt(step.Args, "start", 0)
	end := argInt(step.Args, "end", len(list))
	if start < 0 {
		start += len(list)
	}
	if end < 0 {
		end += len(list)
	}
	start = clamp(start, 0, len(list))
	end = clamp(end, 0, len(list))
	if start >= end {
		return []any{}
	}
	out := make([]any, end-start)
	copy(out, list[start:end])
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func opUnique(step *Step, cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return cur
	}
	by := argString(step.Args, "by", "")
	seen := make(map[string]bool, len(list))
	out := make([]any, 0, len(list))
	for _, elem := range list {
		key := uniqueKey(elem, by)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, elem)
	}
	return out
}

func uniqueKey(elem any, by string) string {
	if by != "" {
		if rec, ok := elem.(map[string]any); ok {
			return value.Stringify(rec[by])
		}
	}
	return value.Stringify(elem)
}

func (e *Exec) opSort(step *Step, cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return cur
	}
	by := argString(step.Args, "by", "")
	desc := argString(step.Args, "order", "asc") == "desc"
	numeric := argBool(step.Args, "numeric", false)
	missingLast := argBool(step.Args, "missing_last", true)

	keyOf := func(elem any) any {
		if by != "" {
			if rec, ok := elem.(map[string]any); ok {
				return rec[by]
			}
		}
		return elem
	}

	out := make([]any, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := keyOf(out[i]), keyOf(out[j])
		mi, mj := e.sortMissing(ki, numeric), e.sortMissing(kj, numeric)
		if mi != mj {
			// A missing key sorts to the configured end regardless of order.
			if missingLast {
				return !mi
			}
			return mi
		}
		if mi {
			return false
		}
		var less bool
		if numeric {
			ni, _ := e.Conv.ToFloat(ki)
			nj, _ := e.Conv.ToFloat(kj)
			less = ni < nj
		} else {
			less = value.Stringify(ki) < value.Stringify(kj)
		}
		if desc {
			return !less && !e.sortEqual(ki, kj, numeric)
		}
		return less
	})
	return out
}

func (e *Exec) sortMissing(k any, numeric bool) bool {
	if e.Conv.IsNothing(k) {
		return true
	}
	if numeric {
		_, ok := e.Conv.ToFloat(k)
		return !ok
	}
	return false
}

func (e *Exec) sortEqual(a, b any, numeric bool) bool {
	if numeric {
		na, _ := e.Conv.ToFloat(a)
		nb, _ := e.Conv.ToFloat(b)
		return na == nb
	}
	return value.Stringify(a) == value.Stringify(b)
}

func (e *Exec) opZip(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*zipPrep)

	lists := make([][]any, 0, len(prep.with)+1)
	lists = append(lists, asList(cur))
	for _, in := range prep.with {
		lists = append(lists, asList(e.Resolver.Resolve(in, rs.row)))
	}

	maxLen := 0
	for _, l := range lists {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}

	padded := false
	out := make([]any, maxLen)
	for i := 0; i < maxLen; i++ {
		tuple := make([]any, len(lists))
		for j, l := range lists {
			if i < len(l) {
				tuple[j] = l[i]
			} else {
				tuple[j] = prep.fill
				padded = true
			}
		}
		out[i] = tuple
	}
	if padded {
		e.Metrics.ZipPad()
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func (e *Exec) opObjectify(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*objectifyPrep)

	if tuples, ok := asTuples(cur); ok {
		return e.objectifyTuples(prep, tuples)
	}

	// Column mode: resolve each declared input into a parallel list and zip
	// by key. A nil input uses the current value.
	lists := make([][]any, len(prep.fields))
	maxLen := 0
	for i, f := range prep.fields {
		if f.input != nil {
			lists[i] = asList(e.Resolver.Resolve(*f.input, rs.row))
		} else {
			lists[i] = asList(cur)
		}
		if len(lists[i]) > maxLen {
			maxLen = len(lists[i])
		}
	}

	out := make([]any, 0, maxLen)
	missing := 0
	for i := 0; i < maxLen; i++ {
		rec := make(map[string]any, len(prep.fields))
		aborted := false
		for j, f := range prep.fields {
			if i < len(lists[j]) {
				rec[f.name] = lists[j][i]
				continue
			}
			missing++
			if prep.strict {
				aborted = true
				break
			}
			rec[f.name] = prep.fill
		}
		if aborted {
			continue
		}
		out = append(out, any(rec))
	}
	e.Metrics.ObjectifyRecords(len(out))
	e.Metrics.ObjectifyMissing(missing)
	return out
}

// asTuples reports whether the value is a non-empty list of zip tuples.
func asTuples(v any) ([][]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	tuples := make([][]any, len(list))
	for i, elem := range list {
		tuple, ok := elem.([]any)
		if !ok {
			return nil, false
		}
		tuples[i] = tuple
	}
	return tuples, true
}

func (e *Exec) objectifyTuples(prep *objectifyPrep, tuples [][]any) any {
	out := make([]any, 0, len(tuples))
	missing := 0
	for _, tuple := range tuples {
		rec := make(map[string]any, len(prep.fields))
		aborted := false
		for i, f := range prep.fields {
			if i < len(tuple) {
				rec[f.name] = tuple[i]
				continue
			}
			missing++
			if prep.strict {
				aborted = true
				break
			}
			rec[f.name] = prep.fill
		}
		if aborted {
			continue
		}
		out = append(out, any(rec))
	}
	e.Metrics.ObjectifyRecords(len(out))
	e.Metrics.ObjectifyMissing(missing)
	return out
}

func (e *Exec) opWhen(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*condPrep)
	probe := e.Conv.Collapse(cur)
	if prep.cond.eval(probe, e.Conv) {
		if prep.then != nil {
			return e.runSteps(prep.then.Steps, cur, rs)
		}
		return cur
	}
	if prep.els != nil {
		return e.runSteps(prep.els.Steps, cur, rs)
	}
	return cur
}
