package infer

import (
	"math"

	"github.com/mapforge-io/mapforge/internal/dsl"
)

// Sizing defaults.
const (
	DefaultReplicas      = 1
	DefaultTargetShardGB = 30
)

const bytesPerGB = 1 << 30

// defaultAvgLen stands in when no stats exist for a field's source column.
const defaultAvgLen = 16.0

// FieldSize is the per-document byte estimate for one field.
type FieldSize struct {
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Bytes  float64 `json:"bytes"`
}

// SizeEstimate is the result of an estimate-size call.
type SizeEstimate struct {
	PerDocBytes       float64     `json:"per_doc_bytes"`
	PrimarySizeBytes  float64     `json:"primary_size_bytes"`
	TotalSizeBytes    float64     `json:"total_size_bytes"`
	RecommendedShards int         `json:"recommended_shards"`
	TargetShardSizeGB float64     `json:"target_shard_size_gb"`
	Breakdown         []FieldSize `json:"breakdown"`
}

// EstimateSize projects index size from the mapping, per-column stats and an
// expected document count. Replicas and target shard size fall back to the
// defaults when non-positive.
func EstimateSize(m *dsl.Mapping, stats []FieldStats, numDocs int64, replicas int, targetShardGB float64) SizeEstimate {
	if replicas < 0 {
		replicas = DefaultReplicas
	}
	if targetShardGB <= 0 {
		targetShardGB = DefaultTargetShardGB
	}

	avgLens := make(map[string]float64, len(stats))
	for _, st := range stats {
		avgLens[st.Column] = st.AvgLen
	}

	est := SizeEstimate{TargetShardSizeGB: targetShardGB}
	for _, f := range m.Fields {
		b := fieldBytes(f, avgLenFor(f, avgLens))
		b *= float64(1 + len(f.MultiFields))
		est.Breakdown = append(est.Breakdown, FieldSize{Target: f.Target, Type: f.Type, Bytes: b})
		est.PerDocBytes += b
	}

	est.PrimarySizeBytes = est.PerDocBytes * float64(numDocs)
	est.TotalSizeBytes = est.PrimarySizeBytes * float64(1+replicas)
	est.RecommendedShards = int(math.Ceil(est.PrimarySizeBytes / (targetShardGB * bytesPerGB)))
	if est.RecommendedShards < 1 {
		est.RecommendedShards = 1
	}
	return est
}

// avgLenFor finds the average source length for a field: its first column
// input if stats exist for it, else stats for the target itself, else the
// default.
func avgLenFor(f dsl.Field, avgLens map[string]float64) float64 {
	for _, in := range f.Input {
		if in.Kind == dsl.InputColumn {
			if l, ok := avgLens[in.Name]; ok {
				return l
			}
		}
	}
	if l, ok := avgLens[f.Target]; ok {
		return l
	}
	return defaultAvgLen
}

func fieldBytes(f dsl.Field, avgLen float64) float64 {
	switch f.Type {
	case "keyword":
		return avgLen + 16
	case "text":
		return 1.5*avgLen + 1
	case "long", "integer", "double", "date":
		return 8
	case "boolean":
		return 1
	case "ip":
		return 16
	case "geo_point":
		return 16
	case "geo_shape":
		return 2 * avgLen
	case "nested", "object":
		// Children are declared as their own fields and counted there.
		return 0
	}
	return avgLen
}
