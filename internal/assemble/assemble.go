// Package assemble places computed field values into the output document.
// Container declarations govern the shape: an array container turns a target
// prefix into a list of records whose elements stay index-aligned across all
// fields sharing that container.
package assemble

import (
	"strings"

	"github.com/mapforge-io/mapforge/internal/dsl"
)

// ContainerInfo is the derived shape of one declared container path.
type ContainerInfo struct {
	Array bool
	Type  string
}

// Index maps dotted container paths to their declared shape.
type Index map[string]ContainerInfo

// BuildIndex derives the container index from the mapping's declarations.
func BuildIndex(containers []dsl.Container) Index {
	idx := make(Index, len(containers))
	for _, c := range containers {
		idx[c.BasePath()] = ContainerInfo{Array: c.IsArray(), Type: c.Type}
	}
	return idx
}

// Assembler writes values into one output document.
type Assembler struct {
	index Index
}

// New creates an Assembler for a mapping's containers.
func New(containers []dsl.Container) *Assembler {
	return &Assembler{index: BuildIndex(containers)}
}

// Place writes value at the dotted target path inside doc. The shortest
// target prefix declared as an array container switches placement to
// index-aligned array mode; otherwise the value lands as a nested record
// field.
func (a *Assembler) Place(doc map[string]any, target string, value any) {
	parts := strings.Split(target, ".")

	for k := 1; k < len(parts); k++ {
		prefix := strings.Join(parts[:k], ".")
		if info, ok := a.index[prefix]; ok && info.Array {
			a.placeInArray(doc, parts[:k], parts[k:], value)
			return
		}
	}

	setPath(doc, parts, value)
}

// placeInArray aligns the value with the record list at the container path.
// A list value grows the array to its length and fills the leaf of each
// element; a scalar writes to the first record.
func (a *Assembler) placeInArray(doc map[string]any, containerParts, leafParts []string, value any) {
	parent := ensurePath(doc, containerParts[:len(containerParts)-1])
	key := containerParts[len(containerParts)-1]

	records, _ := parent[key].([]any)

	list, isList := value.([]any)
	if !isList {
		if value == nil {
			return
		}
		list = []any{value}
	}

	for len(records) < len(list) {
		records = append(records, map[string]any{})
	}
	for i, v := range list {
		rec, ok := records[i].(map[string]any)
		if !ok {
			rec = map[string]any{}
			records[i] = rec
		}
		setPath(rec, leafParts, v)
	}
	parent[key] = records
}

// ensurePath walks (creating as needed) nested records along parts and
// returns the record at the end of the path.
func ensurePath(doc map[string]any, parts []string) map[string]any {
	cur := doc
	for _, p := range parts {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	return cur
}

// setPath writes value at the dotted path given by parts, creating
// intermediate records. Nil values are not written.
func setPath(doc map[string]any, parts []string, value any) {
	if value == nil {
		return
	}
	parent := ensurePath(doc, parts[:len(parts)-1])
	parent[parts[len(parts)-1]] = value
}
