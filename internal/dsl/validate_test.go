package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(issues []ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func parseOK(t *testing.T, doc string) *Mapping {
	t.Helper()
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	return m
}

func TestValidate_StructuralShortCircuit(t *testing.T) {
	m := parseOK(t, `{"fields": [{"target": "a", "type": "keyword"}]}`)
	res := Validate(m, nil)
	require.False(t, res.OK())
	assert.Contains(t, codes(res.Errors), "REQUIRED")
}

func TestValidate_BadFieldType(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [{"target": "a", "type": "uuid"}]}`)
	res := Validate(m, nil)
	require.False(t, res.OK())
	assert.Contains(t, codes(res.Errors), "ENUM")
}

func TestValidate_TargetDuplicate(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "a", "type": "keyword"},
		{"target": "a", "type": "text"}
	]}`)
	res := Validate(m, nil)
	assert.Contains(t, codes(res.Errors), CodeTargetDuplicate)
}

func TestValidate_AnalyzerRefs(t *testing.T) {
	m := parseOK(t, `{
		"dsl_version": "2.2",
		"settings": {"analysis": {"analyzer": {"mine": {}}, "normalizer": {"fold": {}}}},
		"fields": [
			{"target": "a", "type": "text", "analyzer": "mine"},
			{"target": "b", "type": "text", "analyzer": "missing"},
			{"target": "c", "type": "keyword", "normalizer": "fold"},
			{"target": "d", "type": "keyword", "normalizer": "absent"},
			{"target": "e", "type": "text", "analyzer": "standard"}
		]
	}`)
	res := Validate(m, nil)
	got := codes(res.Errors)
	assert.Contains(t, got, CodeAnalyzerNotFound)
	assert.Contains(t, got, CodeNormalizerNotFound)
	assert.Len(t, res.Errors, 2)
}

func TestValidate_MultiFieldRawCollision(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "name", "type": "text", "multi_fields": [{"name": "raw", "type": "keyword"}]},
		{"target": "name.raw", "type": "keyword"}
	]}`)
	res := Validate(m, nil)
	assert.Contains(t, codes(res.Errors), CodeMultiFieldReservedRaw)
}

func TestValidate_MultiFieldDuplicateName(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "name", "type": "text", "multi_fields": [
			{"name": "kw", "type": "keyword"},
			{"name": "kw", "type": "keyword"}
		]}
	]}`)
	res := Validate(m, nil)
	assert.Contains(t, codes(res.Errors), CodeMultiFieldCollision)
}

func TestValidate_IDPolicyOnConflict(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "id_policy": {"from": ["id"]},
		"fields": [{"target": "a", "type": "keyword"}]}`)
	res := Validate(m, nil)
	assert.Contains(t, codes(res.Errors), CodeIDConflictPolicyMissing)

	m = parseOK(t, `{"dsl_version": "2.2", "id_policy": {"from": ["id"], "on_conflict": "skip"},
		"fields": [{"target": "a", "type": "keyword"}]}`)
	res = Validate(m, nil)
	assert.True(t, res.OK())
}

func TestValidate_FieldOptions(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "a", "type": "text", "ignore_above": 256},
		{"target": "b", "type": "text", "null_value": "NONE"},
		{"target": "c", "type": "keyword", "copy_to": "c"},
		{"target": "d", "type": "keyword", "copy_to": "ghost"}
	]}`)
	res := Validate(m, nil)
	got := codes(res.Errors)
	assert.Contains(t, got, CodeIgnoreAboveInvalidType)
	assert.Contains(t, got, CodeNullValueInvalidType)
	assert.Contains(t, got, CodeCopyToSelf)
	assert.Contains(t, got, CodeCopyToUnknown)
}

func TestValidate_FieldOptionsValidCases(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "a", "type": "keyword", "ignore_above": 256, "null_value": "NONE", "copy_to": "b"},
		{"target": "b", "type": "text"}
	]}`)
	res := Validate(m, nil)
	assert.True(t, res.OK(), "errors: %v", res.Errors)
}

func TestValidate_MalformedJSONPath(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "a", "type": "keyword", "input": [{"kind": "jsonpath", "expr": "$.[unclosed"}]}
	]}`)
	res := Validate(m, nil)
	assert.Contains(t, codes(res.Errors), CodeJSONPathInvalid)
}

func TestValidate_VersionGating(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.1", "fields": [
		{"target": "a", "type": "ip"},
		{"target": "b", "type": "keyword", "pipeline": [{"op": "zip", "with": []}]},
		{"target": "c", "type": "keyword", "ignore_above": 10}
	]}`)
	res := Validate(m, nil)
	got := codes(res.Errors)
	count := 0
	for _, c := range got {
		if c == CodeDSLVersionFeature {
			count++
		}
	}
	assert.Equal(t, 3, count, "got %v", got)
}

func TestValidate_UnknownColumnWarning(t *testing.T) {
	m := parseOK(t, `{"dsl_version": "2.2", "fields": [
		{"target": "a", "type": "keyword", "input": ["exists"]},
		{"target": "b", "type": "keyword", "input": ["missing"]}
	]}`)
	rows := []map[string]any{{"exists": "v"}}
	res := Validate(m, rows)
	assert.True(t, res.OK())
	assert.Contains(t, codes(res.Warnings), CodeWarnUnknownColumn)
	assert.Len(t, res.Warnings, 1)
}

func TestValidate_PipelineTooLongWarning(t *testing.T) {
	doc := `{"dsl_version": "2.2", "fields": [{"target": "a", "type": "keyword", "pipeline": [`
	for i := 0; i < 51; i++ {
		if i > 0 {
			doc += ","
		}
		doc += `{"op": "trim"}`
	}
	doc += `]}]}`
	m := parseOK(t, doc)
	res := Validate(m, nil)
	assert.True(t, res.OK())
	assert.Contains(t, codes(res.Warnings), CodeWarnPipelineTooLong)
}
