package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapforge-io/mapforge/internal/dsl"
)

func TestPlaceDottedTarget(t *testing.T) {
	a := New(nil)
	doc := map[string]any{}
	a.Place(doc, "user.name", "ada")
	a.Place(doc, "user.email", "ada@example.com")
	want := map[string]any{
		"user": map[string]any{"name": "ada", "email": "ada@example.com"},
	}
	assert.Equal(t, want, doc)
}

func TestPlaceSkipsNothing(t *testing.T) {
	a := New(nil)
	doc := map[string]any{}
	a.Place(doc, "ts", nil)
	assert.Empty(t, doc)
}

func TestNestedContainerAlignment(t *testing.T) {
	a := New([]dsl.Container{{Path: "contacts[]", Type: "nested"}})
	doc := map[string]any{}
	a.Place(doc, "contacts.phone", []any{"01", "02"})
	a.Place(doc, "contacts.email", []any{"x@y", "z@y"})
	want := map[string]any{
		"contacts": []any{
			map[string]any{"phone": "01", "email": "x@y"},
			map[string]any{"phone": "02", "email": "z@y"},
		},
	}
	assert.Equal(t, want, doc)
}

func TestMismatchedLengthsLongerGoverns(t *testing.T) {
	a := New([]dsl.Container{{Path: "contacts[]", Type: "nested"}})
	doc := map[string]any{}
	a.Place(doc, "contacts.phone", []any{"01", "02", "03"})
	a.Place(doc, "contacts.email", []any{"x@y"})
	records := doc["contacts"].([]any)
	assert.Len(t, records, 3)
	assert.Equal(t, map[string]any{"phone": "01", "email": "x@y"}, records[0])
	assert.Equal(t, map[string]any{"phone": "02"}, records[1])
}

func TestScalarWritesFirstRecord(t *testing.T) {
	a := New([]dsl.Container{{Path: "contacts[]", Type: "nested"}})
	doc := map[string]any{}
	a.Place(doc, "contacts.phone", []any{"01", "02"})
	a.Place(doc, "contacts.source", "import")
	records := doc["contacts"].([]any)
	assert.Equal(t, map[string]any{"phone": "01", "source": "import"}, records[0])
	assert.Equal(t, map[string]any{"phone": "02"}, records[1])
}

func TestObjectContainerStaysRecord(t *testing.T) {
	a := New([]dsl.Container{{Path: "meta", Type: "object"}})
	doc := map[string]any{}
	a.Place(doc, "meta.origin", "csv")
	want := map[string]any{"meta": map[string]any{"origin": "csv"}}
	assert.Equal(t, want, doc)
}

func TestBuildIndex(t *testing.T) {
	idx := BuildIndex([]dsl.Container{
		{Path: "contacts[]", Type: "nested"},
		{Path: "meta", Type: "object"},
	})
	assert.Equal(t, ContainerInfo{Array: true, Type: "nested"}, idx["contacts"])
	assert.Equal(t, ContainerInfo{Array: false, Type: "object"}, idx["meta"])
}
