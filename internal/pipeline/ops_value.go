package pipeline

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mapforge-io/mapforge/internal/issues"
	"github.com/mapforge-io/mapforge/internal/value"
)

// applyValue dispatches the per-value operators. The current value has
// already been collapsed to a scalar unless the operator consumes lists.
func (e *Exec) applyValue(step *Step, cur any, rs *runState) any {
	switch step.Op {
	case "trim":
		return stringOp(cur, strings.TrimSpace)
	case "lower":
		return stringOp(cur, strings.ToLower)
	case "upper":
		return stringOp(cur, strings.ToUpper)
	case "regex_replace":
		return e.opRegexReplace(step, cur, rs)
	case "regex_extract":
		return e.opRegexExtract(step, cur, rs)
	case "cast":
		return e.opCast(step, cur, rs)
	case "date_parse":
		return e.opDateParse(step, cur, rs)
	case "split":
		return e.opSplit(step, cur)
	case "concat":
		return e.opConcat(step, cur)
	case "coalesce":
		return e.Conv.Collapse(cur)
	case "dict":
		return e.opDict(step, cur, rs)
	case "hash":
		return e.opHash(step, cur)
	case "length":
		return opLength(cur)
	case "literal":
		return step.Args["value"]
	case "phonetic":
		return e.opPhonetic(step, cur)
	case "geo_parse":
		return e.opGeoParse(cur, rs)
	}
	return cur
}

// stringOp applies a string transform, passing non-strings through.
func stringOp(cur any, fn func(string) string) any {
	if s, ok := cur.(string); ok {
		return fn(s)
	}
	return cur
}

func (e *Exec) opRegexReplace(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*regexPrep)
	if prep.guarded {
		rs.add(issues.RegexGuard, "pattern rejected: too long or uses look-behind")
		return nil
	}
	s, ok := cur.(string)
	if !ok {
		return cur
	}
	return prep.re.ReplaceAllString(s, prep.repl)
}

func (e *Exec) opRegexExtract(step *Step, cur any, rs *runState) any {
	prep := step.prepared.(*regexPrep)
	if prep.guarded {
		rs.add(issues.RegexGuard, "pattern rejected: too long or uses look-behind")
		return nil
	}
	s, ok := cur.(string)
	if !ok {
		return cur
	}
	m := prep.re.FindStringSubmatch(s)
	if m == nil || prep.group < 0 || prep.group >= len(m) {
		return nil
	}
	return m[prep.group]
}

func (e *Exec) opCast(step *Step, cur any, rs *runState) any {
	if e.Conv.IsNothing(cur) {
		return nil
	}
	switch argString(step.Args, "to", "") {
	case "string":
		return value.Stringify(cur)
	case "number":
		if n, ok := e.Conv.ToFloat(cur); ok {
			return n
		}
		return nil
	case "boolean":
		switch t := cur.(type) {
		case bool:
			return t
		case string:
			if b, ok := e.Conv.ParseBool(t); ok {
				return b
			}
			return nil
		default:
			if n, ok := e.Conv.ToFloat(cur); ok {
				return n != 0
			}
			return nil
		}
	case "date":
		if t, ok := e.Conv.ParseDate(cur); ok {
			return t
		}
		if s, isStr := cur.(string); isStr && strings.TrimSpace(s) != "" {
			rs.add(issues.DateParseFail, fmt.Sprintf("cannot parse %q as date", s))
		}
		return nil
	}
	rs.add(issues.OpExec, fmt.Sprintf("cast: unsupported target %q", argString(step.Args, "to", "")))
	return nil
}

func (e *Exec) opDateParse(step *Step, cur any, rs *runState) any {
	if e.Conv.IsNothing(cur) {
		return nil
	}
	formats := argStrings(step.Args, "formats")
	tz := argString(step.Args, "assume_tz", "")
	if t, ok := e.Conv.ParseDateWith(cur, formats, tz); ok {
		return t
	}
	if s, isStr := cur.(string); isStr && strings.TrimSpace(s) != "" {
		rs.add(issues.DateParseFail, fmt.Sprintf("cannot parse %q as date", s))
	}
	return nil
}

func (e *Exec) opSplit(step *Step, cur any) any {
	s, ok := cur.(string)
	if !ok {
		return cur
	}
	sep := argString(step.Args, "sep", ",")
	parts := strings.Split(s, sep)
	list := make([]any, len(parts))
	for i, p := range parts {
		list[i] = p
	}
	take, present := step.Args["take"]
	if !present {
		return list
	}
	return takeFrom(list, take)
}

// takeFrom selects one element per the take argument: first, last, or an
// integer index (negative counts from the end).
func takeFrom(list []any, which any) any {
	if len(list) == 0 {
		return nil
	}
	switch w := which.(type) {
	case string:
		switch w {
		case "first":
			return list[0]
		case "last":
			return list[len(list)-1]
		}
		if n, err := strconv.Atoi(w); err == nil {
			return indexInto(list, n)
		}
	case float64:
		return indexInto(list, int(w))
	case int:
		return indexInto(list, w)
	}
	return nil
}

func indexInto(list []any, i int) any {
	if i < 0 {
		i += len(list)
	}
	if i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

func (e *Exec) opConcat(step *Step, cur any) any {
	sep := argString(step.Args, "sep", "")
	list, ok := cur.([]any)
	if !ok {
		return value.Stringify(cur)
	}
	parts := make([]string, 0, len(list))
	for _, v := range list {
		if e.Conv.IsNothing(v) {
			continue
		}
		parts = append(parts, value.Stringify(v))
	}
	return strings.Join(parts, sep)
}

func (e *Exec) opDict(step *Step, cur any, rs *runState) any {
	name := argString(step.Args, "name", "")
	dict, exists := e.Dicts[name]
	if !exists {
		rs.add(issues.OpExec, fmt.Sprintf("dict: unknown dictionary %q", name))
		return nil
	}
	if e.Conv.IsNothing(cur) {
		return nil
	}

	norm := e.Norm[name]
	if norm == nil {
		norm = dict.Normalize()
		if e.Norm == nil {
			e.Norm = make(map[string]map[string]any)
		}
		e.Norm[name] = norm
	}

	key := dict.NormalizeKey(value.Stringify(cur))
	if mapped, found := norm[key]; found {
		return mapped
	}
	switch argString(step.Args, "on_unknown", "keep") {
	case "default":
		return step.Args["default"]
	case "error":
		rs.add(issues.OpExec, fmt.Sprintf("dict %q: unknown key %q", name, key))
		return nil
	default:
		return cur
	}
}

func (e *Exec) opHash(step *Step, cur any) any {
	if e.Conv.IsNothing(cur) {
		return nil
	}
	algo := argString(step.Args, "algo", "sha256")
	salt := argString(step.Args, "salt", "")
	return HashHex(algo, salt+value.Stringify(cur))
}

// HashHex digests the input with the named algorithm and hex-encodes the
// result. The identity engine shares this with the hash operator.
func HashHex(algo, input string) string {
	data := []byte(input)
	switch algo {
	case "sha1":
		sum := sha1.Sum(data)
		return hex.EncodeToString(sum[:])
	case "md5":
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	case "sha512":
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

func opLength(cur any) any {
	switch t := cur.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}
	return utf8.RuneCountInString(value.Stringify(cur))
}

func (e *Exec) opPhonetic(step *Step, cur any) any {
	s, ok := cur.(string)
	if !ok || s == "" {
		return cur
	}
	switch argString(step.Args, "method", "soundex") {
	case "simple":
		return stripVowels(s)
	default:
		return soundex(s)
	}
}

// soundex implements the classic four-character Soundex code.
func soundex(s string) string {
	codes := map[rune]byte{
		'b': '1', 'f': '1', 'p': '1', 'v': '1',
		'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
		'd': '3', 't': '3',
		'l': '4',
		'm': '5', 'n': '5',
		'r': '6',
	}
	var letters []rune
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	out := []byte{byte(unicode.ToUpper(letters[0]))}
	prev := codes[letters[0]]
	for _, r := range letters[1:] {
		code := codes[r]
		if code == 0 {
			// Vowels and h/w/y reset or pass; h and w do not break runs.
			if r != 'h' && r != 'w' {
				prev = 0
			}
			continue
		}
		if code != prev {
			out = append(out, code)
			if len(out) == 4 {
				break
			}
		}
		prev = code
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// stripVowels is the fallback phonetic heuristic: uppercase, keep the first
// rune, drop subsequent vowels and collapse repeats.
func stripVowels(s string) string {
	upper := strings.ToUpper(s)
	var out []rune
	var last rune
	for i, r := range upper {
		if i > 0 && strings.ContainsRune("AEIOU", r) {
			continue
		}
		if r == last {
			continue
		}
		out = append(out, r)
		last = r
	}
	return string(out)
}

func (e *Exec) opGeoParse(cur any, rs *runState) any {
	if e.Conv.IsNothing(cur) {
		return nil
	}
	var lat, lon float64
	var ok bool
	switch t := cur.(type) {
	case string:
		parts := strings.SplitN(t, ",", 2)
		if len(parts) != 2 {
			rs.add(issues.OpExec, fmt.Sprintf("geo_parse: cannot parse %q", t))
			return nil
		}
		var err1, err2 error
		lat, err1 = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, err2 = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		ok = err1 == nil && err2 == nil
	case []any:
		if len(t) == 2 {
			var ok1, ok2 bool
			lat, ok1 = e.Conv.ToFloat(t[0])
			lon, ok2 = e.Conv.ToFloat(t[1])
			ok = ok1 && ok2
		}
	}
	if !ok {
		rs.add(issues.OpExec, "geo_parse: expected \"lat,lon\" or [lat, lon]")
		return nil
	}
	if lat < -90 || lat > 90 {
		rs.add(issues.GeoLatRange, fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
		return nil
	}
	if lon < -180 || lon > 180 {
		rs.add(issues.GeoLonRange, fmt.Sprintf("longitude %v out of range [-180, 180]", lon))
		return nil
	}
	return map[string]any{"lat": lat, "lon": lon}
}
