package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mapforge-io/mapforge/internal/value"
)

// condition is the parsed form of the small condition language used by
// filter and when. Short forms ({gt: 5}, {contains: "x"}, {is_numeric:
// true}) and the long form ({type: ..., regex: ..., values: ...}) both
// normalize into this.
type condition struct {
	kind   string
	num    float64
	str    string
	re     *regexp.Regexp
	values []any
}

func parseCondition(raw any) (*condition, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("pipeline: condition must be an object")
	}

	for _, k := range []string{"gt", "gte", "lt", "lte"} {
		if v, ok := m[k]; ok {
			n, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("pipeline: condition %s needs a number", k)
			}
			return &condition{kind: k, num: n}, nil
		}
	}
	if v, ok := m["contains"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("pipeline: condition contains needs a string")
		}
		return &condition{kind: "contains", str: s}, nil
	}
	if _, ok := m["is_numeric"]; ok {
		return &condition{kind: "is_number"}, nil
	}

	kind, _ := m["type"].(string)
	switch kind {
	case "is_empty", "is_number", "is_date":
		return &condition{kind: kind}, nil
	case "matches":
		pattern, _ := m["regex"].(string)
		if len(pattern) > MaxRegexPatternLen || strings.Contains(pattern, "(?<") {
			return nil, fmt.Errorf("%w: condition", errGuardedRegex)
		}
		if flags := regexFlags(stringOr(m["flags"])); flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: condition: %v", errBadRegex, err)
		}
		return &condition{kind: "matches", re: re}, nil
	case "in_set":
		vs, _ := m["values"].([]any)
		return &condition{kind: "in_set", values: vs}, nil
	}
	return nil, fmt.Errorf("pipeline: unknown condition %v", raw)
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

// eval applies the condition to a probe value.
func (c *condition) eval(probe any, conv *value.Conv) bool {
	switch c.kind {
	case "gt", "gte", "lt", "lte":
		n, ok := conv.ToFloat(probe)
		if !ok {
			return false
		}
		switch c.kind {
		case "gt":
			return n > c.num
		case "gte":
			return n >= c.num
		case "lt":
			return n < c.num
		default:
			return n <= c.num
		}
	case "contains":
		return strings.Contains(value.Stringify(probe), c.str)
	case "is_empty":
		if conv.IsNothing(probe) {
			return true
		}
		switch t := probe.(type) {
		case string:
			return strings.TrimSpace(t) == ""
		case []any:
			return len(t) == 0
		}
		return false
	case "is_number":
		_, ok := conv.ToFloat(probe)
		return ok
	case "is_date":
		_, ok := conv.ParseDate(probe)
		return ok
	case "matches":
		return c.re.MatchString(value.Stringify(probe))
	case "in_set":
		probeStr := value.Stringify(probe)
		for _, v := range c.values {
			if value.Stringify(v) == probeStr {
				return true
			}
		}
		return false
	}
	return false
}
