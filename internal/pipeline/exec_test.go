package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/issues"
	"github.com/mapforge-io/mapforge/internal/resolve"
	"github.com/mapforge-io/mapforge/internal/value"
)

func mustOps(t *testing.T, jsonOps string) []dsl.Operation {
	t.Helper()
	var ops []dsl.Operation
	require.NoError(t, json.Unmarshal([]byte(jsonOps), &ops))
	return ops
}

func newExec() *Exec {
	return &Exec{
		Conv:     value.NewConv(value.Options{Nulls: []string{"NA"}, EmptyAsNull: true}),
		Resolver: resolve.New(nil),
	}
}

func run(t *testing.T, jsonOps string, initial any, row map[string]any) (any, []issues.Issue) {
	t.Helper()
	plan := Compile("f", mustOps(t, jsonOps))
	return newExec().Run(plan, initial, row, 0)
}

func TestValueOps(t *testing.T) {
	tests := []struct {
		name    string
		ops     string
		initial any
		want    any
	}{
		{"trim", `[{"op":"trim"}]`, "  a  ", "a"},
		{"lower", `[{"op":"lower"}]`, "ABC", "abc"},
		{"upper alias", `[{"op":"uppercase"}]`, "abc", "ABC"},
		{"chain", `[{"op":"trim"},{"op":"lower"}]`, "  ABC ", "abc"},
		{"split", `[{"op":"split","sep":","}]`, "a,b", []any{"a", "b"}},
		{"split take last", `[{"op":"split","sep":",","take":"last"}]`, "a,b,c", "c"},
		{"split take negative", `[{"op":"split","sep":",","take":-2}]`, "a,b,c", "b"},
		{"concat list", `[{"op":"concat","sep":"-"}]`, []any{"a", nil, "b"}, "a-b"},
		{"coalesce", `[{"op":"coalesce"}]`, []any{nil, "", "x"}, "x"},
		{"length string", `[{"op":"length"}]`, "héllo", 5},
		{"length list", `[{"op":"length"}]`, []any{1, 2, 3}, 3},
		{"literal", `[{"op":"literal","value":"v1"}]`, "anything", "v1"},
		{"cast number", `[{"op":"cast","to":"number"}]`, "3.5", 3.5},
		{"cast boolean", `[{"op":"cast","to":"boolean"}]`, "yes", true},
		{"hash sha256", `[{"op":"hash"}]`, "x", HashHex("sha256", "x")},
		{"regex replace", `[{"op":"regex_replace","pattern":"a+","repl":"b"}]`, "caat", "cbt"},
		{"regex backref", `[{"op":"regex_replace","pattern":"(\\d+)-(\\d+)","repl":"\\2.\\1"}]`, "12-34", "34.12"},
		{"regex extract", `[{"op":"regex_extract","pattern":"id=(\\w+)","group":1}]`, "id=abc x", "abc"},
		{"phonetic soundex", `[{"op":"phonetic"}]`, "Robert", "R163"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, iss := run(t, tt.ops, tt.initial, nil)
			assert.Empty(t, iss)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueOpCollapsesListInput(t *testing.T) {
	// A per-value operator on a list input collapses it first.
	got, iss := run(t, `[{"op":"upper"}]`, []any{nil, "a", "b"}, nil)
	assert.Empty(t, iss)
	assert.Equal(t, "A", got)
}

func TestListConsumingOpsSkipCollapse(t *testing.T) {
	got, _ := run(t, `[{"op":"length"}]`, []any{nil, "a", "b"}, nil)
	assert.Equal(t, 3, got)
	got, _ = run(t, `[{"op":"concat","sep":","}]`, []any{"a", "b"}, nil)
	assert.Equal(t, "a,b", got)
}

func TestUnknownOpWarnsAndPassesThrough(t *testing.T) {
	got, iss := run(t, `[{"op":"frobnicate"},{"op":"upper"}]`, "a", nil)
	assert.Equal(t, "A", got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.WarnOpUnknown, iss[0].Code)
}

func TestRegexGuard(t *testing.T) {
	long := make([]byte, MaxRegexPatternLen+1)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name    string
		pattern string
	}{
		{"too long", string(long)},
		{"look-behind", `(?<=x)y`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := []dsl.Operation{{Op: "regex_replace", Args: map[string]any{
				"pattern": tt.pattern, "repl": "z",
			}}}
			plan := Compile("f", ops)
			got, iss := newExec().Run(plan, "xy", nil, 0)
			assert.Nil(t, got)
			require.Len(t, iss, 1)
			assert.Equal(t, issues.RegexGuard, iss[0].Code)
		})
	}
}

func TestDateParseFailure(t *testing.T) {
	got, iss := run(t, `[{"op":"date_parse","formats":["%Y-%m-%d"]}]`, "not a date", nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.DateParseFail, iss[0].Code)

	// Empty strings are nothing, not parse failures.
	got, iss = run(t, `[{"op":"date_parse","formats":["%Y-%m-%d"]}]`, "", nil)
	assert.Nil(t, got)
	assert.Empty(t, iss)
}

func TestDictOp(t *testing.T) {
	dict := dsl.Dictionary{Data: map[string]any{"US": "United States"}}
	exec := newExec()
	exec.Dicts = map[string]dsl.Dictionary{"countries": dict}

	plan := Compile("f", mustOps(t, `[{"op":"dict","name":"countries"}]`))
	got, iss := exec.Run(plan, "US", nil, 0)
	assert.Empty(t, iss)
	assert.Equal(t, "United States", got)

	// Unknown key keeps the input by default.
	got, _ = exec.Run(plan, "DE", nil, 0)
	assert.Equal(t, "DE", got)

	plan = Compile("f", mustOps(t, `[{"op":"dict","name":"countries","on_unknown":"default","default":"??"}]`))
	got, _ = exec.Run(plan, "DE", nil, 0)
	assert.Equal(t, "??", got)
}

func TestGeoParse(t *testing.T) {
	got, iss := run(t, `[{"op":"geo_parse"}]`, "40.7, -74.0", nil)
	assert.Empty(t, iss)
	assert.Equal(t, map[string]any{"lat": 40.7, "lon": -74.0}, got)

	// The [lat, lon] list form must reach the operator uncollapsed.
	got, iss = run(t, `[{"op":"geo_parse"}]`, []any{40.7, -74.0}, nil)
	assert.Empty(t, iss)
	assert.Equal(t, map[string]any{"lat": 40.7, "lon": -74.0}, got)

	got, iss = run(t, `[{"op":"geo_parse"}]`, "95.0, 10.0", nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.GeoLatRange, iss[0].Code)

	got, iss = run(t, `[{"op":"geo_parse"}]`, []any{10.0, -190.0}, nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.GeoLonRange, iss[0].Code)
}

func TestArrayOps(t *testing.T) {
	tests := []struct {
		name    string
		ops     string
		initial any
		want    any
	}{
		{"map upper", `[{"op":"map","then":[{"op":"upper"}]}]`, []any{"a", "b"}, []any{"A", "B"}},
		{"take last", `[{"op":"take","which":"last"}]`, []any{"a", "b"}, "b"},
		{"join", `[{"op":"join","sep":"|"}]`, []any{"a", nil, "b"}, "a|b"},
		{"flatten", `[{"op":"flatten"}]`, []any{[]any{"a"}, "b", []any{"c", "d"}}, []any{"a", "b", "c", "d"}},
		{"slice", `[{"op":"slice","start":1,"end":3}]`, []any{"a", "b", "c", "d"}, []any{"b", "c"}},
		{"slice negative", `[{"op":"slice","start":-2}]`, []any{"a", "b", "c"}, []any{"b", "c"}},
		{"unique", `[{"op":"unique"}]`, []any{"a", "b", "a"}, []any{"a", "b"}},
		{"sort asc", `[{"op":"sort"}]`, []any{"b", "a", "c"}, []any{"a", "b", "c"}},
		{"sort numeric desc", `[{"op":"sort","numeric":true,"order":"desc"}]`, []any{2.0, 10.0, 1.0}, []any{10.0, 2.0, 1.0}},
		{"filter gt", `[{"op":"filter","cond":{"gt":5}}]`, []any{3.0, 7.0, 9.0}, []any{7.0, 9.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, iss := run(t, tt.ops, tt.initial, nil)
			assert.Empty(t, iss)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZipPadsShorterLists(t *testing.T) {
	row := map[string]any{"qty": []any{1.0, 2.0}}
	got, iss := run(t,
		`[{"op":"zip","with":["qty"],"fill":0}]`,
		[]any{"a", "b", "c"}, row)
	assert.Empty(t, iss)
	want := []any{
		[]any{"a", 1.0},
		[]any{"b", 2.0},
		[]any{"c", float64(0)},
	}
	assert.Equal(t, want, got)
}

func TestZipThenObjectify(t *testing.T) {
	row := map[string]any{
		"names": []any{"usb", "hdmi"},
		"qtys":  []any{4.0, 2.0},
	}
	got, iss := run(t,
		`[{"op":"zip","with":["qtys"]},{"op":"objectify","fields":{"name":null,"qty":null}}]`,
		row["names"], row)
	assert.Empty(t, iss)
	want := []any{
		map[string]any{"name": "usb", "qty": 4.0},
		map[string]any{"name": "hdmi", "qty": 2.0},
	}
	assert.Equal(t, want, got)
}

func TestObjectifyColumnMode(t *testing.T) {
	row := map[string]any{
		"names": []any{"usb", "hdmi", "vga"},
		"qtys":  []any{4.0, 2.0},
	}
	got, iss := run(t,
		`[{"op":"objectify","fields":{"name":{"name":"names"},"qty":{"name":"qtys"}},"fill":0}]`,
		nil, row)
	assert.Empty(t, iss)
	want := []any{
		map[string]any{"name": "usb", "qty": 4.0},
		map[string]any{"name": "hdmi", "qty": 2.0},
		map[string]any{"name": "vga", "qty": float64(0)},
	}
	assert.Equal(t, want, got)
}

func TestObjectifyStrictDropsShortRecords(t *testing.T) {
	row := map[string]any{
		"names": []any{"usb", "hdmi"},
		"qtys":  []any{4.0},
	}
	got, iss := run(t,
		`[{"op":"objectify","fields":{"name":{"name":"names"},"qty":{"name":"qtys"}},"strict":true}]`,
		nil, row)
	assert.Empty(t, iss)
	want := []any{map[string]any{"name": "usb", "qty": 4.0}}
	assert.Equal(t, want, got)
}

func TestWhen(t *testing.T) {
	ops := `[{"op":"when","cond":{"gt":100},"then":[{"op":"literal","value":"big"}],"else":[{"op":"literal","value":"small"}]}]`
	got, _ := run(t, ops, 200.0, nil)
	assert.Equal(t, "big", got)
	got, _ = run(t, ops, 5.0, nil)
	assert.Equal(t, "small", got)
}

func TestWhenProbeCollapsesButBodySeesList(t *testing.T) {
	// The condition probes the collapsed value; the branch runs on the
	// original list.
	ops := `[{"op":"when","cond":{"contains":"a"},"then":[{"op":"length"}]}]`
	got, _ := run(t, ops, []any{"abc", "def"}, nil)
	assert.Equal(t, 2, got)
}

func TestConditions(t *testing.T) {
	conv := value.NewConv(value.Options{EmptyAsNull: true})
	tests := []struct {
		name  string
		cond  string
		probe any
		want  bool
	}{
		{"gt true", `{"gt":5}`, 6.0, true},
		{"gt false", `{"gt":5}`, 5.0, false},
		{"gte", `{"gte":5}`, 5.0, true},
		{"lt string number", `{"lt":10}`, "3", true},
		{"contains", `{"contains":"bc"}`, "abcd", true},
		{"is_empty nil", `{"type":"is_empty"}`, nil, true},
		{"is_empty blank", `{"type":"is_empty"}`, "  ", true},
		{"is_empty value", `{"type":"is_empty"}`, "x", false},
		{"is_number", `{"is_numeric":true}`, "42", true},
		{"is_number not", `{"is_numeric":true}`, "x", false},
		{"matches", `{"type":"matches","regex":"^a+$"}`, "aaa", true},
		{"in_set", `{"type":"in_set","values":["a","b"]}`, "b", true},
		{"in_set miss", `{"type":"in_set","values":["a","b"]}`, "c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw any
			require.NoError(t, json.Unmarshal([]byte(tt.cond), &raw))
			cond, err := parseCondition(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond.eval(tt.probe, conv))
		})
	}
}

func TestOpBudget(t *testing.T) {
	// A map over a large list burns one budget unit per sub-invocation.
	list := make([]any, 300)
	for i := range list {
		list[i] = "x"
	}
	plan := Compile("f", mustOps(t, `[{"op":"map","then":[{"op":"upper"}]}]`))
	got, iss := newExec().Run(plan, list, nil, 0)
	assert.Nil(t, got)
	require.NotEmpty(t, iss)
	assert.Equal(t, issues.OpBudgetExceeded, iss[0].Code)
}

func TestOpBudgetCustom(t *testing.T) {
	exec := newExec()
	exec.Budget = 2
	plan := Compile("f", mustOps(t, `[{"op":"trim"},{"op":"lower"},{"op":"upper"}]`))
	got, iss := exec.Run(plan, " X ", nil, 0)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.OpBudgetExceeded, iss[0].Code)
}

func TestCompileNeverFails(t *testing.T) {
	// A bad regex is carried as a step error and surfaces per row with its
	// own code.
	plan := Compile("f", mustOps(t, `[{"op":"regex_replace","pattern":"(","repl":""}]`))
	require.Len(t, plan.Steps, 1)
	got, iss := newExec().Run(plan, "x", nil, 0)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.RegexError, iss[0].Code)

	// Other argument problems surface as operator execution failures.
	plan = Compile("f", mustOps(t, `[{"op":"objectify","fields":{}}]`))
	got, iss = newExec().Run(plan, "x", nil, 0)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.OpExec, iss[0].Code)
}

func TestRegexCompileFailure(t *testing.T) {
	got, iss := run(t, `[{"op":"regex_extract","pattern":"("}]`, "abc", nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.RegexError, iss[0].Code)
}

func TestConditionRegexIssues(t *testing.T) {
	got, iss := run(t, `[{"op":"when","cond":{"type":"matches","regex":"("},"then":[{"op":"upper"}]}]`, "x", nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.RegexError, iss[0].Code)

	got, iss = run(t, `[{"op":"filter","cond":{"type":"matches","regex":"(?<=a)b"}}]`, []any{"ab"}, nil)
	assert.Nil(t, got)
	require.Len(t, iss, 1)
	assert.Equal(t, issues.RegexGuard, iss[0].Code)
}
