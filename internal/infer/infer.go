// Package infer derives type suggestions and size estimates from sample
// rows. Inference is heuristic: each column's values are scored against the
// candidate types and the best match wins with a confidence equal to its
// match ratio.
package infer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mapforge-io/mapforge/internal/value"
)

// maxExamples bounds the example values carried per column.
const maxExamples = 5

// matchThreshold is the minimum match ratio for a typed suggestion.
const matchThreshold = 0.9

// textMaxLen is the length past which a string column reads as full text
// rather than a keyword.
const textMaxLen = 256

var ipv4Pattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// FieldStats are the collected sample statistics for one column.
type FieldStats struct {
	Column      string  `json:"column"`
	NonNull     int     `json:"non_null"`
	NullRate    float64 `json:"null_rate"`
	Distinct    int     `json:"distinct"`
	UniqueRatio float64 `json:"unique_ratio"`
	AvgLen      float64 `json:"avg_len"`
	MaxLen      int     `json:"max_len"`
	Examples    []any   `json:"examples"`
}

// Suggestion is the inferred type for one column.
type Suggestion struct {
	Column     string         `json:"column"`
	ESType     string         `json:"es_type"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons"`
	Extras     map[string]any `json:"extras,omitempty"`
}

// Result pairs the stats with the suggestions, one entry per column.
type Result struct {
	FieldStats  []FieldStats `json:"field_stats"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Infer collects per-column statistics from the sample rows and scores
// candidate types. Columns are reported in sorted order.
func Infer(rows []map[string]any, conv *value.Conv) Result {
	columns := collectColumns(rows)
	result := Result{
		FieldStats:  make([]FieldStats, 0, len(columns)),
		Suggestions: make([]Suggestion, 0, len(columns)),
	}
	for _, col := range columns {
		stats, values := collectStats(col, rows, conv)
		result.FieldStats = append(result.FieldStats, stats)
		result.Suggestions = append(result.Suggestions, suggest(stats, values, conv))
	}
	return result
}

func collectColumns(rows []map[string]any) []string {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func collectStats(col string, rows []map[string]any, conv *value.Conv) (FieldStats, []any) {
	stats := FieldStats{Column: col}
	distinct := map[string]bool{}
	totalLen := 0
	var values []any

	for _, row := range rows {
		v, present := row[col]
		if !present || conv.IsNothing(v) {
			continue
		}
		stats.NonNull++
		values = append(values, v)

		s := value.Stringify(v)
		distinct[s] = true
		totalLen += len(s)
		if len(s) > stats.MaxLen {
			stats.MaxLen = len(s)
		}
		if len(stats.Examples) < maxExamples {
			stats.Examples = append(stats.Examples, v)
		}
	}

	stats.Distinct = len(distinct)
	if len(rows) > 0 {
		stats.NullRate = float64(len(rows)-stats.NonNull) / float64(len(rows))
	}
	if stats.NonNull > 0 {
		stats.UniqueRatio = float64(stats.Distinct) / float64(stats.NonNull)
		stats.AvgLen = float64(totalLen) / float64(stats.NonNull)
	}
	return stats, values
}

// suggest scores the column's non-null values against the candidate types.
func suggest(stats FieldStats, values []any, conv *value.Conv) Suggestion {
	s := Suggestion{Column: stats.Column}
	if len(values) == 0 {
		s.ESType = "keyword"
		s.Confidence = 0.1
		s.Reasons = []string{"no non-null sample values"}
		return s
	}

	var boolHits, dateHits, numHits, intHits, ipHits int
	for _, v := range values {
		str, isStr := v.(string)
		switch v.(type) {
		case bool:
			boolHits++
		case float64, int, int64:
			numHits++
			if f, _ := conv.ToFloat(v); f == float64(int64(f)) {
				intHits++
			}
		}
		if !isStr {
			continue
		}
		if _, ok := conv.ParseBool(str); ok {
			boolHits++
		}
		if n, err := conv.ParseNumber(str); err == nil {
			numHits++
			if n == float64(int64(n)) {
				intHits++
			}
		}
		if isIPv4(str) {
			ipHits++
		}
		if _, ok := conv.ParseDate(str); ok {
			dateHits++
		}
	}

	total := float64(len(values))
	ratio := func(hits int) float64 { return float64(hits) / total }

	switch {
	case ratio(boolHits) >= matchThreshold && ratio(numHits) < matchThreshold:
		s.ESType = "boolean"
		s.Confidence = ratio(boolHits)
		s.Reasons = append(s.Reasons, "values match the configured boolean sets")
	case ratio(ipHits) >= matchThreshold:
		s.ESType = "ip"
		s.Confidence = ratio(ipHits)
		s.Reasons = append(s.Reasons, "values match IPv4 dotted-quad form")
	case ratio(numHits) >= matchThreshold:
		if intHits == numHits {
			s.ESType = "long"
			s.Reasons = append(s.Reasons, "all numeric values are integral")
		} else {
			s.ESType = "double"
			s.Reasons = append(s.Reasons, "numeric values with fractional parts")
		}
		s.Confidence = ratio(numHits)
	case ratio(dateHits) >= matchThreshold:
		s.ESType = "date"
		s.Confidence = ratio(dateHits)
		s.Reasons = append(s.Reasons, "values parse as dates")
		if formats := conv.DateFormats(); len(formats) > 0 {
			s.Extras = map[string]any{"format": strings.Join(formats, "||")}
		}
	case stats.MaxLen > textMaxLen:
		s.ESType = "text"
		s.Confidence = 0.7
		s.Reasons = append(s.Reasons, "long string values suggest full-text content")
	default:
		s.ESType = "keyword"
		s.Confidence = 0.6
		if stats.UniqueRatio < 0.5 {
			s.Confidence = 0.8
			s.Reasons = append(s.Reasons, "low unique ratio suggests an enumerable value set")
		} else {
			s.Reasons = append(s.Reasons, "short string values")
		}
	}
	return s
}

func isIPv4(s string) bool {
	m := ipv4Pattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	for _, octet := range m[1:] {
		if len(octet) > 1 && octet[0] == '0' {
			return false
		}
		n := 0
		for _, c := range octet {
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}
