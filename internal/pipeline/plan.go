// Package pipeline compiles a field's operation list into a plan and
// executes plans row by row. Compilation normalizes arguments and
// pre-compiles whatever can be prepared once per mapping (regular
// expressions, sub-pipelines, ordered objectify fields); execution is
// budgeted and turns operator failures into per-row issues instead of
// errors.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mapforge-io/mapforge/internal/dsl"
)

// MaxRegexPatternLen is the guard limit on regex pattern length.
const MaxRegexPatternLen = 2000

// Compile-time regex problems are carried on the step and mapped to their
// issue codes at execution time.
var (
	errBadRegex     = errors.New("pipeline: invalid regex")
	errGuardedRegex = errors.New("pipeline: regex rejected by guard")
)

// arrayAware operators receive the current value uncollapsed and decide
// element-wise behavior themselves.
var arrayAware = map[string]bool{
	"map": true, "take": true, "join": true, "flatten": true, "filter": true,
	"slice": true, "unique": true, "sort": true, "zip": true,
	"objectify": true, "when": true,
}

// listConsuming operators are per-value operators whose input is the whole
// list, so the pre-collapse step is skipped for them. geo_parse belongs here
// because its [lat, lon] form is a two-element list.
var listConsuming = map[string]bool{
	"concat": true, "coalesce": true, "length": true, "geo_parse": true,
}

// knownOps is the full operator vocabulary. Anything else degrades to a
// W_OP_UNKNOWN warning at execution time.
var knownOps = map[string]bool{
	"trim": true, "lower": true, "upper": true, "regex_replace": true,
	"regex_extract": true, "cast": true, "date_parse": true, "split": true,
	"concat": true, "coalesce": true, "dict": true, "hash": true,
	"length": true, "literal": true, "phonetic": true, "geo_parse": true,
	"map": true, "take": true, "join": true, "flatten": true, "filter": true,
	"slice": true, "unique": true, "sort": true, "zip": true,
	"objectify": true, "when": true,
}

// Plan is a compiled pipeline for one field.
type Plan struct {
	Field string
	Steps []Step
}

// Step is one compiled operation: canonical name, raw arguments, and
// whatever was prepared ahead of time for the operator.
type Step struct {
	Op   string
	Args map[string]any
	Raw  dsl.Operation

	prepared any
	prepErr  error
}

// regexPrep is the prepared state for regex_replace and regex_extract.
type regexPrep struct {
	re      *regexp.Regexp
	repl    string
	group   int
	guarded bool // pattern rejected by the guard
}

// subPlanPrep holds pre-compiled sub-pipelines for map and when.
type subPlanPrep struct {
	then *Plan
	els  *Plan
}

// condPrep holds a parsed condition plus optional sub-plans (when) or the
// record probe key (filter).
type condPrep struct {
	cond *condition
	by   string
	then *Plan
	els  *Plan
}

// zipPrep holds the resolved-at-compile-time input specs for zip.
type zipPrep struct {
	with []dsl.InputSpec
	fill any
}

// objectifyField is one declared objectify output field, in declaration
// order.
type objectifyField struct {
	name  string
	input *dsl.InputSpec // nil means "use the current value"
}

// objectifyPrep is the prepared state for objectify.
type objectifyPrep struct {
	fields []objectifyField
	fill   any
	strict bool
}

// Compile builds the plan for one field. Compilation itself never fails:
// argument problems are carried on the step and surface as per-row issues.
func Compile(field string, ops []dsl.Operation) *Plan {
	p := &Plan{Field: field, Steps: make([]Step, 0, len(ops))}
	for _, op := range ops {
		p.Steps = append(p.Steps, compileStep(field, op))
	}
	return p
}

func compileStep(field string, op dsl.Operation) Step {
	s := Step{Op: op.Op, Args: op.Args, Raw: op}
	switch op.Op {
	case "regex_replace":
		s.prepared, s.prepErr = prepRegex(op.Args, true)
	case "regex_extract":
		s.prepared, s.prepErr = prepRegex(op.Args, false)
	case "map":
		s.prepared, s.prepErr = prepMap(field, op.Args)
	case "when":
		s.prepared, s.prepErr = prepWhen(field, op.Args)
	case "filter":
		s.prepared, s.prepErr = prepFilter(op.Args)
	case "zip":
		s.prepared, s.prepErr = prepZip(op.Args)
	case "objectify":
		s.prepared, s.prepErr = prepObjectify(op)
	}
	return s
}

func prepRegex(args map[string]any, isReplace bool) (*regexPrep, error) {
	pattern := argString(args, "pattern", "")
	if len(pattern) > MaxRegexPatternLen || strings.Contains(pattern, "(?<") {
		return &regexPrep{guarded: true}, nil
	}
	if flags := regexFlags(argString(args, "flags", "")); flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRegex, err)
	}
	prep := &regexPrep{re: re, group: 1}
	if isReplace {
		prep.repl = rewriteBackrefs(argString(args, "repl", ""))
	} else {
		prep.group = argInt(args, "group", 1)
	}
	return prep, nil
}

// regexFlags keeps only the supported i, m and s flags.
func regexFlags(flags string) string {
	var out strings.Builder
	for _, r := range flags {
		switch r {
		case 'i', 'm', 's':
			out.WriteRune(r)
		}
	}
	return out.String()
}

// rewriteBackrefs converts \1..\9 replacement references to Go's ${n} form.
var backrefPattern = regexp.MustCompile(`\\([1-9])`)

func rewriteBackrefs(repl string) string {
	return backrefPattern.ReplaceAllString(repl, "${$1}")
}

func prepMap(field string, args map[string]any) (*subPlanPrep, error) {
	then, err := subPipeline(field, args["then"])
	if err != nil {
		return nil, err
	}
	return &subPlanPrep{then: then}, nil
}

func prepWhen(field string, args map[string]any) (*condPrep, error) {
	cond, err := parseCondition(args["cond"])
	if err != nil {
		return nil, err
	}
	prep := &condPrep{cond: cond}
	if raw, ok := args["then"]; ok {
		if prep.then, err = subPipeline(field, raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := args["else"]; ok {
		if prep.els, err = subPipeline(field, raw); err != nil {
			return nil, err
		}
	}
	return prep, nil
}

func prepFilter(args map[string]any) (*condPrep, error) {
	cond, err := parseCondition(args["cond"])
	if err != nil {
		return nil, err
	}
	return &condPrep{cond: cond, by: argString(args, "by", "")}, nil
}

func prepZip(args map[string]any) (*zipPrep, error) {
	raw, ok := args["with"]
	if !ok {
		return nil, fmt.Errorf("pipeline: zip requires with")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("pipeline: zip with: %w", err)
	}
	var with []dsl.InputSpec
	if err := json.Unmarshal(b, &with); err != nil {
		return nil, fmt.Errorf("pipeline: zip with: %w", err)
	}
	return &zipPrep{with: with, fill: args["fill"]}, nil
}

// prepObjectify parses the fields record from the operation's raw bytes so
// declaration order is preserved; JSON object order is semantic here because
// it names tuple positions.
func prepObjectify(op dsl.Operation) (*objectifyPrep, error) {
	var envelope struct {
		Fields *orderedmap.OrderedMap[string, json.RawMessage] `json:"fields"`
		Fill   any                                             `json:"fill"`
		Strict bool                                            `json:"strict"`
	}
	if err := json.Unmarshal(op.Raw, &envelope); err != nil {
		return nil, fmt.Errorf("pipeline: objectify: %w", err)
	}
	if envelope.Fields == nil || envelope.Fields.Len() == 0 {
		return nil, fmt.Errorf("pipeline: objectify requires fields")
	}

	prep := &objectifyPrep{fill: envelope.Fill, strict: envelope.Strict}
	for pair := envelope.Fields.Oldest(); pair != nil; pair = pair.Next() {
		f := objectifyField{name: pair.Key}
		if string(pair.Value) != "null" && len(pair.Value) > 0 {
			var in dsl.InputSpec
			if err := json.Unmarshal(pair.Value, &in); err != nil {
				return nil, fmt.Errorf("pipeline: objectify field %q: %w", pair.Key, err)
			}
			f.input = &in
		}
		prep.fields = append(prep.fields, f)
	}
	return prep, nil
}

// subPipeline compiles a nested operation list argument.
func subPipeline(field string, raw any) (*Plan, error) {
	if raw == nil {
		return nil, fmt.Errorf("pipeline: missing sub-pipeline")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("pipeline: sub-pipeline: %w", err)
	}
	var ops []dsl.Operation
	if err := json.Unmarshal(b, &ops); err != nil {
		return nil, fmt.Errorf("pipeline: sub-pipeline: %w", err)
	}
	return Compile(field, ops), nil
}

func argString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func argBool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
