// Package resolve turns a field's input specs into values for one row.
// Column and literal inputs are trivial; jsonpath inputs are compiled once
// per mapping instance through an LRU keyed by expression text, with hits,
// misses and cache size observable through metrics.
package resolve

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ohler55/ojg/jp"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/metrics"
)

// cacheSize bounds the compiled-expression cache. A mapping holds at most a
// few dozen distinct expressions, so this is never reached in practice.
const cacheSize = 512

// Resolver resolves input specs against rows. One Resolver lives per engine
// call; it must not be shared across calls.
type Resolver struct {
	cache   *lru.Cache[string, jp.Expr]
	metrics *metrics.ResolveMetrics
}

// New creates a Resolver. Metrics may be nil.
func New(m *metrics.ResolveMetrics) *Resolver {
	cache, _ := lru.New[string, jp.Expr](cacheSize)
	return &Resolver{cache: cache, metrics: m}
}

// Resolve returns the value of one input spec for a row, or nil when the
// input does not resolve. Path misses are normal and produce no issue.
func (r *Resolver) Resolve(in dsl.InputSpec, row map[string]any) any {
	switch in.Kind {
	case dsl.InputColumn:
		return row[in.Name]
	case dsl.InputLiteral:
		return in.Value
	case dsl.InputJSONPath:
		return r.resolvePath(in.Expr, row)
	default:
		return nil
	}
}

// ResolveAll resolves a field's input list. No inputs yield nil, a single
// input yields its value as-is, several inputs yield the list of values.
func (r *Resolver) ResolveAll(inputs []dsl.InputSpec, row map[string]any) any {
	switch len(inputs) {
	case 0:
		return nil
	case 1:
		return r.Resolve(inputs[0], row)
	}
	out := make([]any, len(inputs))
	for i, in := range inputs {
		out[i] = r.Resolve(in, row)
	}
	return out
}

// CacheLen returns the number of compiled expressions currently cached.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

func (r *Resolver) resolvePath(expr string, row map[string]any) any {
	compiled, ok := r.cache.Get(expr)
	if !ok {
		r.metrics.CacheMiss()
		var err error
		compiled, err = jp.ParseString(expr)
		if err != nil {
			// Malformed expressions are rejected at validation time;
			// at runtime they simply resolve to nothing.
			return nil
		}
		r.cache.Add(expr, compiled)
		r.metrics.SetCacheSize(r.cache.Len())
	} else {
		r.metrics.CacheHit()
	}

	start := time.Now()
	matches := compiled.Get(map[string]any(row))
	r.metrics.ObserveResolve(time.Since(start))

	switch len(matches) {
	case 0:
		return nil
	case 1:
		// A single match is returned bare. This is also where a path like
		// $.tags matching one list value yields the list itself rather
		// than [[...]].
		return matches[0]
	default:
		return matches
	}
}
