package similarity

// Similarity tiers, from lowest to highest.
const (
	TierSimilar       = "similar"
	TierDuplicate     = "duplicate"
	TierVerySimilar   = "very_similar_duplicate"
	TierNearIdentical = "near_identical_duplicate"
)

// Tier boundaries.
const (
	DuplicateThreshold     = 0.95
	VerySimilarThreshold   = 0.97
	NearIdenticalThreshold = 0.99
)

// Tier labels a similarity value. Anything below the duplicate threshold is
// still reported, just not flagged as a duplicate.
func Tier(s float64) string {
	switch {
	case s >= NearIdenticalThreshold:
		return TierNearIdentical
	case s >= VerySimilarThreshold:
		return TierVerySimilar
	case s >= DuplicateThreshold:
		return TierDuplicate
	default:
		return TierSimilar
	}
}
