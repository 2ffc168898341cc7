package value

import (
	"testing"
	"time"
)

func TestIsNothing(t *testing.T) {
	c := NewConv(Options{Nulls: []string{"N/A", "-"}, EmptyAsNull: true})

	tests := []struct {
		name string
		in   any
		want bool
	}{
		{name: "nil", in: nil, want: true},
		{name: "listed null", in: "N/A", want: true},
		{name: "listed dash", in: "-", want: true},
		{name: "empty string", in: "", want: true},
		{name: "whitespace only", in: "   ", want: true},
		{name: "live string", in: "x", want: false},
		{name: "zero number", in: 0.0, want: false},
		{name: "false", in: false, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsNothing(tt.in); got != tt.want {
				t.Errorf("IsNothing(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsNothing_EmptyNotNullByDefault(t *testing.T) {
	c := NewConv(Options{})
	if c.IsNothing("") {
		t.Error("empty string treated as nothing without empty_as_null")
	}
}

func TestCollapse(t *testing.T) {
	c := NewConv(Options{Nulls: []string{"null"}})

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "scalar passthrough", in: "a", want: "a"},
		{name: "first live element", in: []any{nil, "null", "b", "c"}, want: "b"},
		{name: "all dead", in: []any{nil, "null"}, want: nil},
		{name: "empty list", in: []any{}, want: nil},
		{name: "nil scalar", in: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Collapse(tt.in); got != tt.want {
				t.Errorf("Collapse(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNumber_Locale(t *testing.T) {
	c := NewConv(Options{DecimalSep: ",", ThousandsSep: "."})

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1.234,56", want: 1234.56},
		{in: "42", want: 42},
		{in: " 7,5 ", want: 7.5},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := c.ParseNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseBool_CustomSets(t *testing.T) {
	c := NewConv(Options{BoolTrue: []string{"ja"}, BoolFalse: []string{"nein"}})

	if b, ok := c.ParseBool("JA"); !ok || !b {
		t.Errorf("ParseBool(JA) = %v, %v", b, ok)
	}
	if b, ok := c.ParseBool("nein"); !ok || b {
		t.Errorf("ParseBool(nein) = %v, %v", b, ok)
	}
	if _, ok := c.ParseBool("true"); ok {
		t.Error("default truthy set should be replaced by custom set")
	}
}

func TestParseDate_FormatChain(t *testing.T) {
	c := NewConv(Options{
		DateFormats: []string{"%d/%m/%Y", "%Y-%m-%d"},
		DefaultTZ:   "UTC",
	})

	got, ok := c.ParseDate("31/12/2024")
	if !ok {
		t.Fatal("expected parse success")
	}
	if got.Year() != 2024 || got.Month() != 12 || got.Day() != 31 {
		t.Errorf("got %v", got)
	}

	got, ok = c.ParseDate("2024-01-15")
	if !ok || got.Day() != 15 {
		t.Errorf("second format: got %v, ok=%v", got, ok)
	}
}

func TestParseDate_EpochHeuristic(t *testing.T) {
	c := NewConv(Options{})

	// Seconds magnitude.
	got, ok := c.ParseDate("1700000000")
	if !ok {
		t.Fatal("epoch seconds should parse")
	}
	if got.Unix() != 1700000000 {
		t.Errorf("seconds: got %d", got.Unix())
	}

	// Millis magnitude.
	got, ok = c.ParseDate("1700000000000")
	if !ok {
		t.Fatal("epoch millis should parse")
	}
	if got.UnixMilli() != 1700000000000 {
		t.Errorf("millis: got %d", got.UnixMilli())
	}
}

func TestParseDate_ISOFallback(t *testing.T) {
	c := NewConv(Options{DateFormats: []string{"%d/%m/%Y"}})

	got, ok := c.ParseDate("2024-06-01T10:00:00Z")
	if !ok {
		t.Fatal("ISO-8601 fallback should parse")
	}
	if !got.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
}

func TestParseDate_Failures(t *testing.T) {
	c := NewConv(Options{DateFormats: []string{"%Y-%m-%d"}})

	if _, ok := c.ParseDate("not-a-date"); ok {
		t.Error("garbage should not parse")
	}
	if _, ok := c.ParseDate(""); ok {
		t.Error("empty string should not parse")
	}
	if _, ok := c.ParseDate([]any{"x"}); ok {
		t.Error("list should not parse")
	}
}

func TestParseDate_EpochToken(t *testing.T) {
	c := NewConv(Options{DateFormats: []string{"epoch_millis"}})
	got, ok := c.ParseDate("1700000000000")
	if !ok || got.UnixMilli() != 1700000000000 {
		t.Errorf("epoch_millis token: got %v ok=%v", got, ok)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string", in: "a", want: "a"},
		{name: "whole float", in: 42.0, want: "42"},
		{name: "fractional float", in: 1.5, want: "1.5"},
		{name: "bool", in: true, want: "true"},
		{name: "int", in: 7, want: "7"},
		{name: "list", in: []any{1.0, "a"}, want: `[1,"a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.in); got != tt.want {
				t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadLocation_Fallback(t *testing.T) {
	if loc := LoadLocation("Not/AZone"); loc != time.UTC {
		t.Errorf("unknown zone should fall back to UTC, got %v", loc)
	}
	if loc := LoadLocation(""); loc != time.UTC {
		t.Errorf("empty zone should fall back to UTC, got %v", loc)
	}
}
