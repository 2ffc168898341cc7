package infer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/value"
)

func conv() *value.Conv {
	return value.NewConv(value.Options{
		Nulls:       []string{"NA"},
		DateFormats: []string{"%Y-%m-%d"},
		EmptyAsNull: true,
	})
}

func rowsOf(col string, values ...any) []map[string]any {
	rows := make([]map[string]any, len(values))
	for i, v := range values {
		rows[i] = map[string]any{col: v}
	}
	return rows
}

func suggestionFor(t *testing.T, result Result, col string) Suggestion {
	t.Helper()
	for _, s := range result.Suggestions {
		if s.Column == col {
			return s
		}
	}
	t.Fatalf("no suggestion for column %q", col)
	return Suggestion{}
}

func TestInferTypes(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{"dates", []any{"2024-01-15", "2023-12-01", "2024-06-30"}, "date"},
		{"booleans", []any{"true", "false", "true"}, "boolean"},
		{"longs", []any{"1", "42", "7"}, "long"},
		{"doubles", []any{"1.5", "2.25", "3"}, "double"},
		{"ips", []any{"10.0.0.1", "192.168.1.9", "8.8.8.8"}, "ip"},
		{"keywords", []any{"red", "green", "red"}, "keyword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Infer(rowsOf("c", tt.values...), conv())
			s := suggestionFor(t, result, "c")
			assert.Equal(t, tt.want, s.ESType)
			assert.NotEmpty(t, s.Reasons)
		})
	}
}

func TestInferLongTextBecomesText(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	result := Infer(rowsOf("body", string(long), string(long)), conv())
	assert.Equal(t, "text", suggestionFor(t, result, "body").ESType)
}

func TestInferDateCarriesFormat(t *testing.T) {
	result := Infer(rowsOf("ts", "2024-01-15", "2023-12-01"), conv())
	s := suggestionFor(t, result, "ts")
	require.Equal(t, "date", s.ESType)
	assert.Equal(t, "%Y-%m-%d", s.Extras["format"])
}

func TestFieldStats(t *testing.T) {
	rows := []map[string]any{
		{"c": "aa"}, {"c": "bb"}, {"c": "aa"}, {"c": "NA"}, {"c": nil},
	}
	result := Infer(rows, conv())
	require.Len(t, result.FieldStats, 1)
	st := result.FieldStats[0]
	assert.Equal(t, 3, st.NonNull)
	assert.InDelta(t, 0.4, st.NullRate, 1e-9)
	assert.Equal(t, 2, st.Distinct)
	assert.InDelta(t, 2.0/3.0, st.UniqueRatio, 1e-9)
	assert.InDelta(t, 2.0, st.AvgLen, 1e-9)
	assert.Equal(t, 2, st.MaxLen)
	assert.Equal(t, []any{"aa", "bb", "aa"}, st.Examples)
}

func TestFieldStatsExampleCap(t *testing.T) {
	var values []any
	for i := 0; i < 10; i++ {
		values = append(values, fmt.Sprintf("v%d", i))
	}
	result := Infer(rowsOf("c", values...), conv())
	assert.Len(t, result.FieldStats[0].Examples, 5)
}

func TestIsIPv4(t *testing.T) {
	assert.True(t, isIPv4("10.0.0.1"))
	assert.True(t, isIPv4("255.255.255.255"))
	assert.False(t, isIPv4("256.0.0.1"))
	assert.False(t, isIPv4("10.0.0"))
	assert.False(t, isIPv4("01.2.3.4"))
	assert.False(t, isIPv4("a.b.c.d"))
}

func TestEstimateSize(t *testing.T) {
	m, err := dsl.Parse([]byte(`{
		"dsl_version": "2.1",
		"index": "i",
		"fields": [
			{"target": "code", "type": "keyword", "input": ["code"],
			 "multi_fields": [{"name": "raw", "type": "keyword"}]},
			{"target": "n", "type": "long"},
			{"target": "ok", "type": "boolean"}
		]
	}`))
	require.NoError(t, err)

	stats := []FieldStats{{Column: "code", AvgLen: 10}}
	est := EstimateSize(m, stats, 1000, 1, 30)

	// keyword: (10+16)*2 multi-field factor; long: 8; boolean: 1.
	assert.InDelta(t, 61, est.PerDocBytes, 1e-9)
	assert.InDelta(t, 61000, est.PrimarySizeBytes, 1e-9)
	assert.InDelta(t, 122000, est.TotalSizeBytes, 1e-9)
	assert.Equal(t, 1, est.RecommendedShards)
	assert.Len(t, est.Breakdown, 3)
}

func TestEstimateSizeShardCount(t *testing.T) {
	m, err := dsl.Parse([]byte(`{
		"dsl_version": "2.1",
		"index": "i",
		"fields": [{"target": "body", "type": "text", "input": ["body"]}]
	}`))
	require.NoError(t, err)

	stats := []FieldStats{{Column: "body", AvgLen: 1000}}
	// 1501 bytes per doc; 2e9 docs ≈ 3 TB primary → 100+ shards at 30 GB.
	est := EstimateSize(m, stats, 2_000_000_000, 1, 30)
	assert.Greater(t, est.RecommendedShards, 90)
}
