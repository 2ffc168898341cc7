// Package schema compiles a validated mapping into its index artifacts: the
// properties tree, the lifecycle policy, the ingest pipeline, and the
// deterministic compiled hash that keys idempotent re-compilation.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/mapforge-io/mapforge/internal/assemble"
	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/metrics"
)

// Lifecycle constants for the derived policy.
const (
	rolloverMaxSize = "30gb"
	rolloverMaxAge  = "30d"
	warmMinAge      = "30d"
	deleteMinAge    = "180d"
)

// Artifacts is the full output of one compile call.
type Artifacts struct {
	Settings       map[string]any `json:"settings"`
	Mappings       map[string]any `json:"mappings"`
	ExecutionPlan  []FieldPlan    `json:"execution_plan,omitempty"`
	CompiledHash   string         `json:"compiled_hash"`
	ILMPolicy      ILMPolicy      `json:"ilm_policy"`
	IngestPipeline IngestPipeline `json:"ingest_pipeline"`
}

// FieldPlan is one entry of the advisory execution plan.
type FieldPlan struct {
	Target   string          `json:"target"`
	Type     string          `json:"type"`
	Input    []dsl.InputSpec `json:"input,omitempty"`
	Pipeline []string        `json:"pipeline,omitempty"`
}

// ILMPolicy is the derived lifecycle policy.
type ILMPolicy struct {
	Name   string         `json:"name"`
	Policy map[string]any `json:"policy"`
}

// IngestPipeline is the derived ingest pipeline.
type IngestPipeline struct {
	Name string         `json:"name"`
	Body map[string]any `json:"body"`
}

// Compiler builds artifacts from validated mappings.
type Compiler struct {
	metrics *metrics.CompileMetrics
}

// NewCompiler creates a Compiler. Metrics may be nil.
func NewCompiler(m *metrics.CompileMetrics) *Compiler {
	return &Compiler{metrics: m}
}

// Compile produces the artifacts for one mapping. The mapping must already
// have passed validation.
func (c *Compiler) Compile(m *dsl.Mapping, includePlan bool) (*Artifacts, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveCompile(time.Since(start)) }()

	hash, err := CompiledHash(m)
	if err != nil {
		return nil, fmt.Errorf("schema: compiled hash: %w", err)
	}

	art := &Artifacts{
		Settings:       m.Settings,
		Mappings:       buildMappings(m),
		CompiledHash:   hash,
		ILMPolicy:      buildILM(m.Index),
		IngestPipeline: buildIngest(m),
	}
	if includePlan {
		art.ExecutionPlan = buildPlan(m)
	}
	return art, nil
}

// buildMappings assembles the index mappings body: the properties tree plus
// the carried-through dynamic templates and runtime fields.
func buildMappings(m *dsl.Mapping) map[string]any {
	out := map[string]any{
		"properties": buildProperties(m),
	}
	if len(m.DynamicTemplates) > 0 {
		out["dynamic_templates"] = m.DynamicTemplates
	}
	if len(m.RuntimeFields) > 0 {
		out["runtime"] = m.RuntimeFields
	}
	return out
}

// buildProperties merges container declarations with field definitions into
// the nested properties tree.
func buildProperties(m *dsl.Mapping) map[string]any {
	index := assemble.BuildIndex(m.Containers)
	features := m.Features()
	root := map[string]any{}

	for _, c := range m.Containers {
		node := ensureNode(root, strings.Split(c.BasePath(), "."), index)
		node["type"] = c.Type
	}

	for _, f := range m.Fields {
		parts := strings.Split(f.Target, ".")
		parent := root
		if len(parts) > 1 {
			node := ensureNode(root, parts[:len(parts)-1], index)
			props, ok := node["properties"].(map[string]any)
			if !ok {
				props = map[string]any{}
				node["properties"] = props
			}
			parent = props
		}
		parent[parts[len(parts)-1]] = fieldProperty(f, features)
	}
	return root
}

// ensureNode walks (creating as needed) container nodes along parts. Nodes
// under an array container declared nested keep that type; everything else
// defaults to object.
func ensureNode(root map[string]any, parts []string, index assemble.Index) map[string]any {
	props := root
	var node map[string]any
	for i, p := range parts {
		next, ok := props[p].(map[string]any)
		if !ok {
			next = map[string]any{"type": "object"}
			if info, declared := index[strings.Join(parts[:i+1], ".")]; declared && info.Type != "" {
				next["type"] = info.Type
			}
			props[p] = next
		}
		node = next
		childProps, ok := next["properties"].(map[string]any)
		if !ok {
			childProps = map[string]any{}
			next["properties"] = childProps
		}
		props = childProps
	}
	return node
}

// fieldProperty renders one field definition as an index property.
func fieldProperty(f dsl.Field, features dsl.Features) map[string]any {
	prop := map[string]any{"type": f.Type}
	if f.Format != "" {
		prop["format"] = f.Format
	}
	if f.Analyzer != "" {
		prop["analyzer"] = f.Analyzer
	}
	if f.Normalizer != "" {
		prop["normalizer"] = f.Normalizer
	}
	if len(f.MultiFields) > 0 {
		sub := make(map[string]any, len(f.MultiFields))
		for _, mf := range f.MultiFields {
			entry := map[string]any{"type": mf.Type}
			if mf.Analyzer != "" {
				entry["analyzer"] = mf.Analyzer
			}
			if mf.Normalizer != "" {
				entry["normalizer"] = mf.Normalizer
			}
			sub[mf.Name] = entry
		}
		prop["fields"] = sub
	}
	if features.FieldOptions {
		if f.IgnoreAbove != nil {
			prop["ignore_above"] = *f.IgnoreAbove
		}
		if f.NullValue != nil {
			prop["null_value"] = f.NullValue
		}
		if len(f.CopyTo) > 0 {
			prop["copy_to"] = []string(f.CopyTo)
		}
	}
	return prop
}

// buildILM derives the hot/warm/delete lifecycle policy for the index.
func buildILM(index string) ILMPolicy {
	return ILMPolicy{
		Name: index + "_ilm_v1",
		Policy: map[string]any{
			"phases": map[string]any{
				"hot": map[string]any{
					"actions": map[string]any{
						"rollover": map[string]any{
							"max_primary_shard_size": rolloverMaxSize,
							"max_age":                rolloverMaxAge,
						},
					},
				},
				"warm": map[string]any{
					"min_age": warmMinAge,
					"actions": map[string]any{
						"forcemerge": map[string]any{"max_num_segments": 1},
					},
				},
				"delete": map[string]any{
					"min_age": deleteMinAge,
					"actions": map[string]any{
						"delete": map[string]any{},
					},
				},
			},
		},
	}
}

// buildIngest derives the ingest pipeline: an ingested-at stamp, a date
// processor per date field, and a failure stamp.
func buildIngest(m *dsl.Mapping) IngestPipeline {
	processors := []any{
		map[string]any{
			"set": map[string]any{
				"field": "_meta.ingested_at",
				"value": "{{_ingest.timestamp}}",
			},
		},
	}
	for _, f := range m.Fields {
		if f.Type != "date" || f.Format == "" {
			continue
		}
		processors = append(processors, map[string]any{
			"date": map[string]any{
				"field":          f.Target,
				"target_field":   f.Target,
				"formats":        strings.Split(f.Format, "||"),
				"ignore_failure": true,
			},
		})
	}
	return IngestPipeline{
		Name: m.Index + "_ingest_v1",
		Body: map[string]any{
			"processors": processors,
			"on_failure": []any{
				map[string]any{
					"set": map[string]any{
						"field": "_meta.ingest_error",
						"value": "{{_ingest.on_failure_message}}",
					},
				},
			},
		},
	}
}

// buildPlan renders the advisory per-field execution plan.
func buildPlan(m *dsl.Mapping) []FieldPlan {
	plans := make([]FieldPlan, 0, len(m.Fields))
	for _, f := range m.Fields {
		p := FieldPlan{Target: f.Target, Type: f.Type, Input: f.Input}
		for _, op := range f.Pipeline {
			p.Pipeline = append(p.Pipeline, op.Op)
		}
		plans = append(plans, p)
	}
	return plans
}
