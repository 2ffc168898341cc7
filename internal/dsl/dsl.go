// Package dsl defines the mapping document model: fields, pipelines,
// containers, identity policy, dictionaries and globals. It owns parsing
// (JSON or YAML), operator alias normalization and dsl_version feature
// gating. Validation lives in validate.go.
package dsl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mapforge-io/mapforge/internal/value"
)

// Limits enforced by the validator.
const (
	// MaxJSONPathLen caps the length of a jsonpath input expression.
	MaxJSONPathLen = 1000
	// MaxPipelineOps is the hard pipeline length limit.
	MaxPipelineOps = 200
	// WarnPipelineOps is the soft limit past which W_PIPELINE_TOO_LONG fires.
	WarnPipelineOps = 50
)

// ErrNotAnObject is returned when the document root is not a JSON object.
var ErrNotAnObject = errors.New("dsl: mapping document root must be an object")

// Input spec kinds.
const (
	InputColumn   = "column"
	InputLiteral  = "literal"
	InputJSONPath = "jsonpath"
)

// opAliases maps legacy operator spellings to their canonical names.
var opAliases = map[string]string{
	"lowercase": "lower",
	"uppercase": "upper",
	"replace":   "regex_replace",
}

// Mapping is the root of a mapping document. It is immutable once parsed;
// per-call caches are kept on the engine session, not here.
type Mapping struct {
	DSLVersion       string                `json:"dsl_version"`
	Index            string                `json:"index,omitempty"`
	Globals          Globals               `json:"globals,omitempty"`
	IDPolicy         *IDPolicy             `json:"id_policy,omitempty"`
	Containers       []Container           `json:"containers,omitempty"`
	Fields           []Field               `json:"fields"`
	Dictionaries     map[string]Dictionary `json:"dictionaries,omitempty"`
	DynamicTemplates []any                 `json:"dynamic_templates,omitempty"`
	RuntimeFields    map[string]any        `json:"runtime_fields,omitempty"`
	Settings         map[string]any        `json:"settings,omitempty"`

	raw map[string]any
}

// Globals carries the locale and null-handling options of a mapping.
type Globals struct {
	Nulls        []string `json:"nulls,omitempty"`
	BoolTrue     []string `json:"bool_true,omitempty"`
	BoolFalse    []string `json:"bool_false,omitempty"`
	DecimalSep   string   `json:"decimal_sep,omitempty"`
	ThousandsSep string   `json:"thousands_sep,omitempty"`
	DateFormats  []string `json:"date_formats,omitempty"`
	DefaultTZ    string   `json:"default_tz,omitempty"`
	EmptyAsNull  bool     `json:"empty_as_null,omitempty"`
	Preview      *Preview `json:"preview,omitempty"`
}

// Preview holds advisory sampling hints for callers.
type Preview struct {
	SampleSize int   `json:"sample_size,omitempty"`
	Seed       int64 `json:"seed,omitempty"`
}

// Conv derives the prepared conversion state for these globals.
func (g Globals) Conv() *value.Conv {
	return value.NewConv(value.Options{
		Nulls:        g.Nulls,
		BoolTrue:     g.BoolTrue,
		BoolFalse:    g.BoolFalse,
		DecimalSep:   g.DecimalSep,
		ThousandsSep: g.ThousandsSep,
		DateFormats:  g.DateFormats,
		DefaultTZ:    g.DefaultTZ,
		EmptyAsNull:  g.EmptyAsNull,
	})
}

// IDPolicy describes how a document's _id is built.
type IDPolicy struct {
	From       []string `json:"from"`
	Op         string   `json:"op,omitempty"`
	Sep        string   `json:"sep,omitempty"`
	OnConflict string   `json:"on_conflict,omitempty"`
	Hash       string   `json:"hash,omitempty"`
	Salt       string   `json:"salt,omitempty"`
}

// Container declares the shape of a target-path prefix. A trailing "[]" on
// the path marks an array container.
type Container struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// BasePath returns the container path without the array suffix.
func (c Container) BasePath() string {
	return strings.TrimSuffix(c.Path, "[]")
}

// IsArray reports whether the container was declared with the "[]" suffix.
func (c Container) IsArray() bool {
	return strings.HasSuffix(c.Path, "[]")
}

// Field is a declared output property.
type Field struct {
	Target      string       `json:"target"`
	Type        string       `json:"type"`
	Input       []InputSpec  `json:"input,omitempty"`
	Pipeline    []Operation  `json:"pipeline,omitempty"`
	Format      string       `json:"format,omitempty"`
	Analyzer    string       `json:"analyzer,omitempty"`
	Normalizer  string       `json:"normalizer,omitempty"`
	MultiFields []MultiField `json:"multi_fields,omitempty"`
	IgnoreAbove *int         `json:"ignore_above,omitempty"`
	NullValue   any          `json:"null_value,omitempty"`
	CopyTo      StringList   `json:"copy_to,omitempty"`
}

// MultiField is a sub-field indexed alongside its parent.
type MultiField struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Analyzer   string `json:"analyzer,omitempty"`
	Normalizer string `json:"normalizer,omitempty"`
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// InputSpec is a tagged variant: column reference, literal, or jsonpath
// expression. A bare string is shorthand: "$..." means jsonpath, anything
// else a column name.
type InputSpec struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
	Expr  string `json:"expr,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (in *InputSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.HasPrefix(s, "$") {
			*in = InputSpec{Kind: InputJSONPath, Expr: s}
		} else {
			*in = InputSpec{Kind: InputColumn, Name: s}
		}
		return nil
	}

	type alias InputSpec
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Kind == "" {
		switch {
		case a.Expr != "":
			a.Kind = InputJSONPath
		case a.Name != "":
			a.Kind = InputColumn
		default:
			a.Kind = InputLiteral
		}
	}
	*in = InputSpec(a)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (in InputSpec) MarshalJSON() ([]byte, error) {
	type alias InputSpec
	return json.Marshal(alias(in))
}

// Operation is a tagged record keyed by "op". Remaining keys become the
// operator's arguments. Raw preserves the original bytes for argument shapes
// whose key order matters (objectify).
type Operation struct {
	Op   string
	Args map[string]any
	Raw  json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler. Alias normalization is applied
// here so the rest of the system only ever sees canonical operator names.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	name, _ := m["op"].(string)
	if name == "" {
		return fmt.Errorf("dsl: operation missing op key")
	}
	delete(m, "op")
	o.Op = NormalizeOp(name)
	o.Args = m
	o.Raw = append(o.Raw[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Operation) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	m := make(map[string]any, len(o.Args)+1)
	for k, v := range o.Args {
		m[k] = v
	}
	m["op"] = o.Op
	return json.Marshal(m)
}

// NormalizeOp resolves operator aliases to canonical names.
func NormalizeOp(name string) string {
	if canonical, ok := opAliases[name]; ok {
		return canonical
	}
	return name
}

// Dictionary is either a bare key→value record or {data, meta}.
type Dictionary struct {
	Data map[string]any `json:"data"`
	Meta DictMeta       `json:"meta"`
}

// DictMeta controls key normalization on lookup.
type DictMeta struct {
	CaseInsensitive bool `json:"case_insensitive,omitempty"`
	Trim            bool `json:"trim,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler, accepting both forms.
func (d *Dictionary) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if rawData, ok := m["data"].(map[string]any); ok {
		d.Data = rawData
		if rawMeta, ok := m["meta"]; ok {
			b, err := json.Marshal(rawMeta)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(b, &d.Meta); err != nil {
				return err
			}
		}
		return nil
	}
	d.Data = m
	d.Meta = DictMeta{}
	return nil
}

// Normalize returns the dictionary data keyed by normalized keys, honoring
// the meta flags. Lookups must normalize probes the same way.
func (d Dictionary) Normalize() map[string]any {
	out := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		out[d.NormalizeKey(k)] = v
	}
	return out
}

// NormalizeKey applies the dictionary's trim/case flags to a probe.
func (d Dictionary) NormalizeKey(k string) string {
	if d.Meta.Trim {
		k = strings.TrimSpace(k)
	}
	if d.Meta.CaseInsensitive {
		k = strings.ToLower(k)
	}
	return k
}

// Parse decodes a JSON mapping document. The raw document is retained for
// canonical hashing.
func Parse(data []byte) (*Mapping, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	m.raw = raw
	return &m, nil
}

// ParseYAML decodes a YAML mapping document by round-tripping it through
// JSON, so the same tagged-variant rules apply.
func ParseYAML(data []byte) (*Mapping, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotAnObject
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	return Parse(b)
}

// CanonicalDoc returns the mapping as a plain document tree suitable for
// canonical-JSON hashing. For parsed mappings this is the original document;
// for programmatically built ones it is derived from the struct.
func (m *Mapping) CanonicalDoc() (map[string]any, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
