package models

// EngineResult is what a calculation engine returns. The caching layer never
// interprets Data beyond serializing it; Confidence (when reported) drives the
// cache admission policy and TTL scaling.
type EngineResult struct {
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
}

// EngineComplexity buckets engines by how expensive/volatile their
// computation is, which bounds how long results may be cached.
type EngineComplexity string

const (
	ComplexitySimple  EngineComplexity = "simple"
	ComplexityMedium  EngineComplexity = "medium"
	ComplexityComplex EngineComplexity = "complex"
)
