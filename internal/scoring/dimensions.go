package scoring

// DimensionTimeliness is the only dimension whose score depends on data
// outside the analysis payload (the document's storage timestamp).
const DimensionTimeliness = "timeliness"

// DimensionNames is the canonical ordered list of quality dimensions. Every
// scored document carries exactly these, in this order, so consumers can
// render a fixed-shape table without probing for keys.
var DimensionNames = []string{
	"completeness",
	"accuracy",
	"consistency",
	"validity",
	"uniqueness",
	DimensionTimeliness,
	"relevance",
	"clarity",
	"conciseness",
	"structure",
	"readability",
	"metadata_richness",
	"entity_coverage",
	"topic_coherence",
	"formatting",
	"language_quality",
	"credibility",
}

var dimensionSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(DimensionNames))
	for _, name := range DimensionNames {
		m[name] = struct{}{}
	}
	return m
}()

// IsDimension reports whether name is a recognized quality dimension.
func IsDimension(name string) bool {
	_, ok := dimensionSet[name]
	return ok
}
