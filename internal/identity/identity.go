// Package identity builds document ids from an id policy and tracks
// collisions within a batch.
package identity

import (
	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/metrics"
	"github.com/mapforge-io/mapforge/internal/pipeline"
	"github.com/mapforge-io/mapforge/internal/value"
)

// Conflict modes.
const (
	ConflictError     = "error"
	ConflictSkip      = "skip"
	ConflictOverwrite = "overwrite"
)

// maxSamples bounds the duplicate samples returned by CheckIDs.
const maxSamples = 5

// BuildID derives a document id from the policy and one row: the policy's
// source columns joined by the separator (missing values join as empty
// strings), then optionally salted and digested to hex.
func BuildID(p *dsl.IDPolicy, row map[string]any) string {
	if p == nil || len(p.From) == 0 {
		return ""
	}
	joined := ""
	for i, col := range p.From {
		if i > 0 {
			joined += p.Sep
		}
		if v, ok := row[col]; ok && v != nil {
			joined += value.Stringify(v)
		}
	}
	if p.Hash != "" {
		return pipeline.HashHex(p.Hash, p.Salt+joined)
	}
	return joined
}

// Tracker detects id collisions within one batch.
type Tracker struct {
	firstRow map[string]int
}

// NewTracker creates an empty per-batch tracker.
func NewTracker() *Tracker {
	return &Tracker{firstRow: make(map[string]int)}
}

// Observe records an id and reports whether it collides with an earlier row.
// The second return is the row index of the first occurrence.
func (t *Tracker) Observe(id string, rowIdx int) (bool, int) {
	if first, seen := t.firstRow[id]; seen {
		return true, first
	}
	t.firstRow[id] = rowIdx
	return false, rowIdx
}

// DuplicateSample is one duplicated id with its occurrence count.
type DuplicateSample struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// CheckReport is the result of a check-ids call.
type CheckReport struct {
	Total         int               `json:"total"`
	Duplicates    int               `json:"duplicates"`
	DuplicateRate float64           `json:"duplicate_rate"`
	Samples       []DuplicateSample `json:"samples"`
}

// CheckIDs runs the id policy over the rows and reports duplicate counts
// plus up to five sample duplicate ids, in first-seen order.
func CheckIDs(p *dsl.IDPolicy, rows []map[string]any, m *metrics.CheckIDMetrics) CheckReport {
	counts := make(map[string]int, len(rows))
	var order []string
	for _, row := range rows {
		id := BuildID(p, row)
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	report := CheckReport{Total: len(rows)}
	for _, id := range order {
		if counts[id] < 2 {
			continue
		}
		report.Duplicates += counts[id] - 1
		if len(report.Samples) < maxSamples {
			report.Samples = append(report.Samples, DuplicateSample{ID: id, Count: counts[id]})
		}
	}
	if report.Total > 0 {
		report.DuplicateRate = float64(report.Duplicates) / float64(report.Total)
	}
	m.ObserveCheck(report.Duplicates)
	return report
}
