package dsl

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/xeipuuv/gojsonschema"
)

// Validation issue codes. Errors block compilation; W_-prefixed codes are
// warnings and pass through to the caller.
const (
	CodeTargetDuplicate           = "E_TARGET_DUPLICATE"
	CodeAnalyzerNotFound          = "E_ANALYZER_NOT_FOUND"
	CodeNormalizerNotFound        = "E_NORMALIZER_NOT_FOUND"
	CodeMultiFieldCollision       = "E_MULTI_FIELD_COLLISION"
	CodeMultiFieldReservedRaw     = "E_MULTI_FIELD_RESERVED_RAW_COLLISION"
	CodeIDConflictPolicyMissing   = "E_ID_CONFLICT_POLICY_MISSING"
	CodeIgnoreAboveInvalidType    = "E_IGNORE_ABOVE_INVALID_TYPE"
	CodeNullValueInvalidType      = "E_NULL_VALUE_INVALID_TYPE"
	CodeCopyToSelf                = "E_COPY_TO_SELF"
	CodeCopyToUnknown             = "E_COPY_TO_UNKNOWN"
	CodeJSONPathInvalid           = "E_JSONPATH_INVALID"
	CodeDSLVersionFeature         = "E_DSL_VERSION_FEATURE"
	CodeWarnPipelineTooLong       = "W_PIPELINE_TOO_LONG"
	CodeWarnUnknownColumn         = "W_UNKNOWN_COLUMN"
)

// ValidationIssue is one finding from the validator.
type ValidationIssue struct {
	Code string `json:"code"`
	Path string `json:"path"`
	Msg  string `json:"msg"`
}

// ValidationResult separates blocking errors from pass-through warnings.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// OK reports whether compilation may proceed.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// ignoreAboveTypes are the field types ignore_above is valid on.
var ignoreAboveTypes = map[string]bool{"keyword": true}

// nullValueInvalidTypes are the field types null_value is rejected on.
var nullValueInvalidTypes = map[string]bool{
	"text": true, "nested": true, "object": true, "geo_shape": true,
}

// gatedTypes require the 2.2 feature set.
var gatedTypes = map[string]bool{"integer": true, "ip": true}

// gatedOps require the 2.2 feature set.
var gatedOps = map[string]bool{"zip": true, "objectify": true}

// Validate runs the two-stage validation: JSON-Schema structure first, then
// the semantic post-rules. Sample rows, when given, feed the unknown-column
// warning; they never produce errors.
func Validate(m *Mapping, rows []map[string]any) ValidationResult {
	var res ValidationResult

	doc, err := m.CanonicalDoc()
	if err != nil {
		res.Errors = append(res.Errors, ValidationIssue{
			Code: "INVALID_DOCUMENT", Path: "$", Msg: err.Error(),
		})
		return res
	}

	structural := validateStructure(doc)
	if len(structural) > 0 {
		res.Errors = structural
		return res
	}

	res.Errors = append(res.Errors, checkTargets(m)...)
	res.Errors = append(res.Errors, checkAnalysisRefs(m)...)
	res.Errors = append(res.Errors, checkMultiFields(m)...)
	res.Errors = append(res.Errors, checkIDPolicy(m)...)
	res.Errors = append(res.Errors, checkFieldOptions(m)...)
	res.Errors = append(res.Errors, checkInputs(m)...)
	res.Errors = append(res.Errors, checkVersionGating(m)...)
	res.Warnings = append(res.Warnings, checkPipelineLengths(m)...)
	if len(rows) > 0 {
		res.Warnings = append(res.Warnings, checkColumns(m, rows)...)
	}
	return res
}

func validateStructure(doc map[string]any) []ValidationIssue {
	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	docLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return []ValidationIssue{{Code: "INVALID_DOCUMENT", Path: "$", Msg: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	issues := make([]ValidationIssue, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, ValidationIssue{
			Code: strings.ToUpper(e.Type()),
			Path: e.Field(),
			Msg:  e.Description(),
		})
	}
	return issues
}

func checkTargets(m *Mapping) []ValidationIssue {
	var issues []ValidationIssue
	seen := make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		if first, dup := seen[f.Target]; dup {
			issues = append(issues, ValidationIssue{
				Code: CodeTargetDuplicate,
				Path: fieldPath(i, "target"),
				Msg:  fmt.Sprintf("target %q already declared by fields[%d]", f.Target, first),
			})
			continue
		}
		seen[f.Target] = i
	}
	return issues
}

func checkAnalysisRefs(m *Mapping) []ValidationIssue {
	analyzers, normalizers := analysisNames(m.Settings)
	var issues []ValidationIssue

	check := func(path, analyzer, normalizer string) {
		if analyzer != "" && !analyzers[analyzer] {
			issues = append(issues, ValidationIssue{
				Code: CodeAnalyzerNotFound, Path: path,
				Msg: fmt.Sprintf("analyzer %q not defined in settings.analysis", analyzer),
			})
		}
		if normalizer != "" && !normalizers[normalizer] {
			issues = append(issues, ValidationIssue{
				Code: CodeNormalizerNotFound, Path: path,
				Msg: fmt.Sprintf("normalizer %q not defined in settings.analysis", normalizer),
			})
		}
	}

	for i, f := range m.Fields {
		check(fieldPath(i, ""), f.Analyzer, f.Normalizer)
		for j, mf := range f.MultiFields {
			check(fieldPath(i, fmt.Sprintf("multi_fields[%d]", j)), mf.Analyzer, mf.Normalizer)
		}
	}
	return issues
}

// analysisNames extracts the declared analyzer and normalizer names from
// settings.analysis. Built-ins that need no declaration are included.
func analysisNames(settings map[string]any) (map[string]bool, map[string]bool) {
	analyzers := map[string]bool{
		"standard": true, "simple": true, "whitespace": true, "keyword": true,
	}
	normalizers := map[string]bool{"lowercase": true}

	analysis, _ := dig(settings, "analysis").(map[string]any)
	if declared, ok := dig(analysis, "analyzer").(map[string]any); ok {
		for name := range declared {
			analyzers[name] = true
		}
	}
	if declared, ok := dig(analysis, "normalizer").(map[string]any); ok {
		for name := range declared {
			normalizers[name] = true
		}
	}
	return analyzers, normalizers
}

func dig(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func checkMultiFields(m *Mapping) []ValidationIssue {
	var issues []ValidationIssue
	targets := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		targets[f.Target] = true
	}
	for i, f := range m.Fields {
		names := make(map[string]bool, len(f.MultiFields))
		for j, mf := range f.MultiFields {
			path := fieldPath(i, fmt.Sprintf("multi_fields[%d]", j))
			if names[mf.Name] {
				issues = append(issues, ValidationIssue{
					Code: CodeMultiFieldCollision, Path: path,
					Msg: fmt.Sprintf("multi-field %q declared twice on %q", mf.Name, f.Target),
				})
			}
			names[mf.Name] = true
			if mf.Name == "raw" && targets[f.Target+".raw"] {
				issues = append(issues, ValidationIssue{
					Code: CodeMultiFieldReservedRaw, Path: path,
					Msg: fmt.Sprintf("multi-field %q.raw collides with sibling field %q", f.Target, f.Target+".raw"),
				})
			}
		}
	}
	return issues
}

func checkIDPolicy(m *Mapping) []ValidationIssue {
	if m.IDPolicy == nil {
		return nil
	}
	switch m.IDPolicy.OnConflict {
	case "error", "skip", "overwrite":
		return nil
	}
	return []ValidationIssue{{
		Code: CodeIDConflictPolicyMissing,
		Path: "id_policy.on_conflict",
		Msg:  "id_policy requires on_conflict: error, skip or overwrite",
	}}
}

func checkFieldOptions(m *Mapping) []ValidationIssue {
	var issues []ValidationIssue
	targets := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		targets[f.Target] = true
	}
	for i, f := range m.Fields {
		if f.IgnoreAbove != nil && !ignoreAboveTypes[f.Type] {
			issues = append(issues, ValidationIssue{
				Code: CodeIgnoreAboveInvalidType,
				Path: fieldPath(i, "ignore_above"),
				Msg:  fmt.Sprintf("ignore_above is not valid on type %q", f.Type),
			})
		}
		if f.NullValue != nil && nullValueInvalidTypes[f.Type] {
			issues = append(issues, ValidationIssue{
				Code: CodeNullValueInvalidType,
				Path: fieldPath(i, "null_value"),
				Msg:  fmt.Sprintf("null_value is not valid on type %q", f.Type),
			})
		}
		for _, target := range f.CopyTo {
			if target == f.Target {
				issues = append(issues, ValidationIssue{
					Code: CodeCopyToSelf,
					Path: fieldPath(i, "copy_to"),
					Msg:  fmt.Sprintf("copy_to on %q points at itself", f.Target),
				})
			} else if !targets[target] {
				issues = append(issues, ValidationIssue{
					Code: CodeCopyToUnknown,
					Path: fieldPath(i, "copy_to"),
					Msg:  fmt.Sprintf("copy_to target %q is not a declared field", target),
				})
			}
		}
	}
	return issues
}

func checkInputs(m *Mapping) []ValidationIssue {
	var issues []ValidationIssue
	for i, f := range m.Fields {
		for j, in := range f.Input {
			if in.Kind != InputJSONPath {
				continue
			}
			path := fieldPath(i, fmt.Sprintf("input[%d]", j))
			if len(in.Expr) > MaxJSONPathLen {
				issues = append(issues, ValidationIssue{
					Code: CodeJSONPathInvalid, Path: path,
					Msg: fmt.Sprintf("path expression exceeds %d characters", MaxJSONPathLen),
				})
				continue
			}
			if _, err := jp.ParseString(in.Expr); err != nil {
				issues = append(issues, ValidationIssue{
					Code: CodeJSONPathInvalid, Path: path,
					Msg: fmt.Sprintf("malformed path expression: %v", err),
				})
			}
		}
	}
	return issues
}

func checkVersionGating(m *Mapping) []ValidationIssue {
	feats := m.Features()
	var issues []ValidationIssue
	for i, f := range m.Fields {
		if gatedTypes[f.Type] && !feats.ExtendedTypes {
			issues = append(issues, ValidationIssue{
				Code: CodeDSLVersionFeature,
				Path: fieldPath(i, "type"),
				Msg:  fmt.Sprintf("type %q requires dsl_version 2.2", f.Type),
			})
		}
		if !feats.FieldOptions && (f.IgnoreAbove != nil || f.NullValue != nil || len(f.CopyTo) > 0) {
			issues = append(issues, ValidationIssue{
				Code: CodeDSLVersionFeature,
				Path: fieldPath(i, ""),
				Msg:  "ignore_above, null_value and copy_to require dsl_version 2.2",
			})
		}
		if !feats.ArrayCombinators {
			for j, op := range f.Pipeline {
				if gatedOps[op.Op] {
					issues = append(issues, ValidationIssue{
						Code: CodeDSLVersionFeature,
						Path: fieldPath(i, fmt.Sprintf("pipeline[%d]", j)),
						Msg:  fmt.Sprintf("operator %q requires dsl_version 2.2", op.Op),
					})
				}
			}
		}
	}
	return issues
}

func checkPipelineLengths(m *Mapping) []ValidationIssue {
	var warnings []ValidationIssue
	for i, f := range m.Fields {
		if n := len(f.Pipeline); n > WarnPipelineOps {
			warnings = append(warnings, ValidationIssue{
				Code: CodeWarnPipelineTooLong,
				Path: fieldPath(i, "pipeline"),
				Msg:  fmt.Sprintf("pipeline has %d operations (soft limit %d)", n, WarnPipelineOps),
			})
		}
	}
	return warnings
}

func checkColumns(m *Mapping, rows []map[string]any) []ValidationIssue {
	present := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			present[col] = true
		}
	}
	var warnings []ValidationIssue
	warn := func(path, name string) {
		warnings = append(warnings, ValidationIssue{
			Code: CodeWarnUnknownColumn, Path: path,
			Msg: fmt.Sprintf("column %q not found in sample rows", name),
		})
	}
	for i, f := range m.Fields {
		for j, in := range f.Input {
			if in.Kind == InputColumn && !present[in.Name] {
				warn(fieldPath(i, fmt.Sprintf("input[%d]", j)), in.Name)
			}
		}
	}
	if m.IDPolicy != nil {
		for _, col := range m.IDPolicy.From {
			if !present[col] {
				warn("id_policy.from", col)
			}
		}
	}
	return warnings
}

func fieldPath(i int, suffix string) string {
	p := fmt.Sprintf("fields[%d]", i)
	if suffix != "" {
		p += "." + suffix
	}
	return p
}
