// Package value implements the scalar semantics shared by the pipeline
// executor, the input resolver and type inference: the nothing-value rules,
// locale-aware number and boolean parsing, the date parse chain, and
// stringification of arbitrary row values.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	timefmt "github.com/itchyny/timefmt-go"
)

// epochMillisCutoff separates epoch-seconds from epoch-millis by magnitude.
// Anything at or above 1e12 is read as milliseconds.
const epochMillisCutoff = 1e12

// Conv holds the prepared conversion state derived from a mapping's globals.
// Building one up front avoids re-normalizing the null and boolean string
// sets for every value.
type Conv struct {
	nulls        map[string]struct{}
	boolTrue     map[string]struct{}
	boolFalse    map[string]struct{}
	decimalSep   string
	thousandsSep string
	dateFormats  []string
	loc          *time.Location
	emptyAsNull  bool
}

// Options carries the raw globals the Conv is derived from.
type Options struct {
	Nulls        []string
	BoolTrue     []string
	BoolFalse    []string
	DecimalSep   string
	ThousandsSep string
	DateFormats  []string
	DefaultTZ    string
	EmptyAsNull  bool
}

// NewConv prepares a Conv from options. Unset boolean sets get the usual
// defaults. An unknown or empty timezone falls back to UTC.
func NewConv(opts Options) *Conv {
	c := &Conv{
		nulls:        make(map[string]struct{}, len(opts.Nulls)),
		boolTrue:     stringSet(opts.BoolTrue, []string{"true", "yes", "y", "1"}),
		boolFalse:    stringSet(opts.BoolFalse, []string{"false", "no", "n", "0"}),
		decimalSep:   opts.DecimalSep,
		thousandsSep: opts.ThousandsSep,
		dateFormats:  opts.DateFormats,
		emptyAsNull:  opts.EmptyAsNull,
	}
	if c.decimalSep == "" {
		c.decimalSep = "."
	}
	for _, s := range opts.Nulls {
		c.nulls[s] = struct{}{}
	}
	c.loc = LoadLocation(opts.DefaultTZ)
	return c
}

func stringSet(vs []string, fallback []string) map[string]struct{} {
	if len(vs) == 0 {
		vs = fallback
	}
	m := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		m[strings.ToLower(v)] = struct{}{}
	}
	return m
}

// LoadLocation resolves a timezone name, falling back to UTC when the name is
// empty or the timezone database does not know it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the default timezone for naive datetimes.
func (c *Conv) Location() *time.Location { return c.loc }

// DateFormats returns the configured date format list.
func (c *Conv) DateFormats() []string { return c.dateFormats }

// IsNothing reports whether v is the language's absence-of-value: nil, a
// string listed in globals.nulls, or (when empty_as_null is set) a string
// that trims to empty.
func (c *Conv) IsNothing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	if _, listed := c.nulls[s]; listed {
		return true
	}
	if c.emptyAsNull && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

// Collapse reduces a list to its first non-nothing element. Scalars pass
// through unchanged; a list with no live element collapses to nil.
func (c *Conv) Collapse(v any) any {
	list, ok := v.([]any)
	if !ok {
		if c.IsNothing(v) {
			return nil
		}
		return v
	}
	for _, e := range list {
		if !c.IsNothing(e) {
			return e
		}
	}
	return nil
}

// ParseNumber parses a string using the configured locale separators.
func (c *Conv) ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if c.thousandsSep != "" {
		s = strings.ReplaceAll(s, c.thousandsSep, "")
	}
	if c.decimalSep != "." {
		s = strings.ReplaceAll(s, c.decimalSep, ".")
	}
	return strconv.ParseFloat(s, 64)
}

// ParseBool consults the configured truthy/falsy sets, case-insensitively.
// The second return is false when the string belongs to neither set.
func (c *Conv) ParseBool(s string) (bool, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	if _, ok := c.boolTrue[k]; ok {
		return true, true
	}
	if _, ok := c.boolFalse[k]; ok {
		return false, true
	}
	return false, false
}

// ParseDate runs the date parse chain: the configured formats in order (with
// the epoch_* tokens special-cased), then the epoch magnitude heuristic, then
// ISO-8601 and friends. Naive datetimes are anchored in the default timezone.
func (c *Conv) ParseDate(v any) (time.Time, bool) {
	return c.parseDate(v, c.dateFormats, c.loc)
}

// ParseDateWith is ParseDate with explicit formats and timezone, as used by
// the date_parse operator. Empty arguments fall back to the globals.
func (c *Conv) ParseDateWith(v any, formats []string, tz string) (time.Time, bool) {
	loc := c.loc
	if tz != "" {
		loc = LoadLocation(tz)
	}
	if len(formats) == 0 {
		formats = c.dateFormats
	}
	return c.parseDate(v, formats, loc)
}

func (c *Conv) parseDate(v any, formats []string, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case float64:
		return epochTime(t), true
	case int:
		return epochTime(float64(t)), true
	case int64:
		return epochTime(float64(t)), true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, f := range formats {
		switch f {
		case "epoch_millis":
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return time.UnixMilli(int64(n)).UTC(), true
			}
		case "epoch_second", "epoch_seconds":
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Unix(int64(n), 0).UTC(), true
			}
		default:
			if t, err := timefmt.ParseInLocation(s, f, loc); err == nil {
				return t, true
			}
		}
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(n), true
	}
	if t, err := dateparse.ParseIn(s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func epochTime(n float64) time.Time {
	if math.Abs(n) >= epochMillisCutoff {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

// ToFloat coerces numeric values and numeric-looking strings to float64.
func (c *Conv) ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := c.ParseNumber(t)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Stringify renders a value the way it should appear when joined or hashed.
// Floats that carry no fraction print as integers; composites print as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Stringify(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
