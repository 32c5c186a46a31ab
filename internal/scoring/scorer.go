package scoring

import (
	"math"
	"time"
)

// Recommended actions, ordered from best to worst.
const (
	ActionKeep       = "KEEP"
	ActionReview     = "REVIEW"
	ActionQuarantine = "QUARANTINE"
	ActionDiscard    = "DISCARD"
)

const missingEvidence = "no evidence provided"

// timelinessFloor is the lowest ceiling the age decay can impose. A document
// older than the full horizon can still score up to this value.
const timelinessFloor = 20

// Signal is one dimension's raw input: a model-asserted score plus the
// evidence sentence backing it.
type Signal struct {
	Score    int    `json:"score"`
	Evidence string `json:"evidence"`
}

// DimensionScore is one scored dimension in a quality result.
type DimensionScore struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Evidence string `json:"evidence"`
}

// Result is the full quality verdict for one document.
type Result struct {
	Dimensions        []DimensionScore `json:"dimensions"`
	OverallScore      int              `json:"overall_quality_score"`
	RecommendedAction string           `json:"recommended_action"`
}

// Scorer turns raw dimension signals into a fixed-shape quality result.
// Action boundaries and the timeliness horizon are tunables set at startup.
type Scorer struct {
	horizon    time.Duration
	keep       int
	review     int
	quarantine int
	now        func() time.Time
}

// Options configures a Scorer. Zero or negative fields fall back to defaults.
type Options struct {
	TimelinessHorizon  time.Duration
	KeepBoundary       int
	ReviewBoundary     int
	QuarantineBoundary int
	Now                func() time.Time
}

// New builds a Scorer from opts.
func New(opts Options) *Scorer {
	s := &Scorer{
		horizon:    opts.TimelinessHorizon,
		keep:       opts.KeepBoundary,
		review:     opts.ReviewBoundary,
		quarantine: opts.QuarantineBoundary,
		now:        opts.Now,
	}
	if s.horizon <= 0 {
		s.horizon = 730 * 24 * time.Hour
	}
	if s.keep <= 0 {
		s.keep = 90
	}
	if s.review <= 0 {
		s.review = 70
	}
	if s.quarantine <= 0 {
		s.quarantine = 50
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Score produces all canonical dimensions from the given signals. A dimension
// with no signal scores 0 with a fixed evidence string; it is never omitted.
// The timeliness dimension is additionally capped by the document's age,
// measured from uploadedAt (the storage timestamp, not the analysis clock).
func (s *Scorer) Score(signals map[string]Signal, uploadedAt time.Time) Result {
	dims := make([]DimensionScore, 0, len(DimensionNames))
	sum := 0
	for _, name := range DimensionNames {
		d := DimensionScore{Name: name, Evidence: missingEvidence}
		if sig, ok := signals[name]; ok {
			d.Score = clampScore(sig.Score)
			if sig.Evidence != "" {
				d.Evidence = sig.Evidence
			}
		}
		if name == DimensionTimeliness && !uploadedAt.IsZero() {
			if limit := s.ageCeiling(s.now().Sub(uploadedAt)); d.Score > limit {
				d.Score = limit
			}
		}
		sum += d.Score
		dims = append(dims, d)
	}
	overall := int(math.Round(float64(sum) / float64(len(dims))))
	return Result{
		Dimensions:        dims,
		OverallScore:      overall,
		RecommendedAction: s.Action(overall),
	}
}

// Action maps an overall score onto a recommended action.
func (s *Scorer) Action(overall int) string {
	switch {
	case overall >= s.keep:
		return ActionKeep
	case overall >= s.review:
		return ActionReview
	case overall >= s.quarantine:
		return ActionQuarantine
	default:
		return ActionDiscard
	}
}

// ageCeiling returns the highest timeliness score a document of the given age
// may hold. The ceiling decays linearly from 100 at age zero down to the
// floor at the horizon, and stays at the floor beyond it.
func (s *Scorer) ageCeiling(age time.Duration) int {
	if age <= 0 {
		return 100
	}
	if age >= s.horizon {
		return timelinessFloor
	}
	frac := float64(age) / float64(s.horizon)
	return int(math.Round(100 - frac*float64(100-timelinessFloor)))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
