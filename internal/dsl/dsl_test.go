package dsl

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_InputShorthand(t *testing.T) {
	doc := `{
		"dsl_version": "2.2",
		"fields": [
			{"target": "a", "type": "keyword", "input": ["col_a"]},
			{"target": "b", "type": "keyword", "input": ["$.b[*]"]},
			{"target": "c", "type": "keyword", "input": [{"kind": "literal", "value": 7}]},
			{"target": "d", "type": "keyword", "input": [{"expr": "$.d"}]}
		]
	}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Fields, 4)

	assert.Equal(t, InputSpec{Kind: InputColumn, Name: "col_a"}, m.Fields[0].Input[0])
	assert.Equal(t, InputSpec{Kind: InputJSONPath, Expr: "$.b[*]"}, m.Fields[1].Input[0])
	assert.Equal(t, InputLiteral, m.Fields[2].Input[0].Kind)
	assert.Equal(t, 7.0, m.Fields[2].Input[0].Value)
	assert.Equal(t, InputJSONPath, m.Fields[3].Input[0].Kind)
}

func TestParse_OperationAliases(t *testing.T) {
	doc := `{
		"dsl_version": "2.1",
		"fields": [{
			"target": "a", "type": "keyword",
			"pipeline": [
				{"op": "lowercase"},
				{"op": "uppercase"},
				{"op": "replace", "pattern": "x", "repl": "y"},
				{"op": "trim"}
			]
		}]
	}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	ops := m.Fields[0].Pipeline
	assert.Equal(t, "lower", ops[0].Op)
	assert.Equal(t, "upper", ops[1].Op)
	assert.Equal(t, "regex_replace", ops[2].Op)
	assert.Equal(t, "trim", ops[3].Op)
	assert.Equal(t, "x", ops[2].Args["pattern"])
}

func TestParse_OperationMissingOp(t *testing.T) {
	_, err := Parse([]byte(`{"dsl_version":"2.1","fields":[{"target":"a","type":"keyword","pipeline":[{"pattern":"x"}]}]}`))
	require.Error(t, err)
}

func TestParse_DictionaryForms(t *testing.T) {
	doc := `{
		"dsl_version": "2.1",
		"fields": [{"target": "a", "type": "keyword"}],
		"dictionaries": {
			"bare": {"DE": "Germany", "FR": "France"},
			"rich": {"data": {"A ": "alpha"}, "meta": {"case_insensitive": true, "trim": true}}
		}
	}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	bare := m.Dictionaries["bare"]
	assert.Equal(t, "Germany", bare.Data["DE"])
	assert.False(t, bare.Meta.CaseInsensitive)

	rich := m.Dictionaries["rich"]
	assert.True(t, rich.Meta.CaseInsensitive)
	norm := rich.Normalize()
	assert.Equal(t, "alpha", norm["a"])
	assert.Equal(t, "a", rich.NormalizeKey(" A "))
}

func TestParse_CopyToString(t *testing.T) {
	doc := `{"dsl_version":"2.2","fields":[
		{"target":"a","type":"keyword","copy_to":"all"},
		{"target":"b","type":"keyword","copy_to":["all","other"]},
		{"target":"all","type":"text"},
		{"target":"other","type":"text"}
	]}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, StringList{"all"}, m.Fields[0].CopyTo)
	assert.Equal(t, StringList{"all", "other"}, m.Fields[1].CopyTo)
}

func TestParseYAML(t *testing.T) {
	doc := []byte("dsl_version: \"2.2\"\nindex: orders\nfields:\n  - target: a\n    type: keyword\n    input: [col_a]\n")
	m, err := ParseYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "orders", m.Index)
	assert.Equal(t, InputColumn, m.Fields[0].Input[0].Kind)
}

func TestContainer(t *testing.T) {
	c := Container{Path: "contacts[]", Type: "nested"}
	assert.True(t, c.IsArray())
	assert.Equal(t, "contacts", c.BasePath())

	c = Container{Path: "address", Type: "object"}
	assert.False(t, c.IsArray())
	assert.Equal(t, "address", c.BasePath())
}

func TestFeaturesFor(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{version: "2.1", want: false},
		{version: "2.2", want: true},
		{version: "2.2.1", want: true},
		{version: "v2.3", want: true},
		{version: "3.0", want: true},
		{version: "1.9", want: false},
		{version: "garbage", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			f := FeaturesFor(tt.version)
			if f.ArrayCombinators != tt.want {
				t.Errorf("FeaturesFor(%q).ArrayCombinators = %v, want %v", tt.version, f.ArrayCombinators, tt.want)
			}
		})
	}
}

func TestCanonicalDoc_FromStruct(t *testing.T) {
	m := &Mapping{DSLVersion: "2.1", Fields: []Field{{Target: "a", Type: "keyword"}}}
	doc, err := m.CanonicalDoc()
	require.NoError(t, err)
	assert.Equal(t, "2.1", doc["dsl_version"])

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"target":"a"`)
}
