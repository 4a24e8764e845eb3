package auth

import (
	"math"
	"sort"
)

// Default face decision thresholds.
const (
	DefaultMinAbsScore = 0.35
	DefaultMinGap      = 0.10

	// scoreEpsilon absorbs float rounding at the threshold edges, so a
	// gap of 0.50-0.40 counts as 0.10.
	scoreEpsilon = 1e-9
)

// Scorer compares a probe with an enrolled template and returns a
// similarity in [0,1].
type Scorer interface {
	Score(probe, template []float64) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(probe, template []float64) float64

// Score calls f.
func (f ScorerFunc) Score(probe, template []float64) float64 { return f(probe, template) }

// CosineScorer scores feature vectors by cosine similarity, clamped to
// [0,1]. Vectors of different length or zero magnitude score 0.
type CosineScorer struct{}

// Score implements Scorer.
func (CosineScorer) Score(probe, template []float64) float64 {
	if len(probe) == 0 || len(probe) != len(template) {
		return 0
	}
	var dot, np, nt float64
	for i := range probe {
		dot += probe[i] * template[i]
		np += probe[i] * probe[i]
		nt += template[i] * template[i]
	}
	if np == 0 || nt == 0 {
		return 0
	}
	return clampScore(dot / (math.Sqrt(np) * math.Sqrt(nt)))
}

// FacePolicy holds the best-match thresholds.
type FacePolicy struct {
	MinAbsScore float64
	MinGap      float64
}

// DefaultFacePolicy returns the standard thresholds.
func DefaultFacePolicy() FacePolicy {
	return FacePolicy{MinAbsScore: DefaultMinAbsScore, MinGap: DefaultMinGap}
}

// Candidate is one principal's best score against a probe.
type Candidate struct {
	PrincipalID string  `json:"principal_id"`
	Score       float64 `json:"score"`
}

// FaceDecision is the outcome of DecideFace.
type FaceDecision struct {
	Authorized  bool
	PrincipalID string
	Score       float64
	Reason      DenyReason
	// Accepted holds the candidates that cleared MinAbsScore, best first.
	Accepted []Candidate
}

// DecideFace applies the best-match policy to candidates:
//
//  1. candidates scoring below MinAbsScore are discarded
//  2. none left: denied with ReasonNoMatch
//  3. one left: authorised as that principal
//  4. otherwise the top score must lead the runner-up by at least
//     MinGap, else denied with ReasonAmbiguousMatch
//
// Equal scores are ordered by principal id so the result does not depend
// on input order. candidates is not modified.
func DecideFace(candidates []Candidate, p FacePolicy) FaceDecision {
	accepted := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		s := clampScore(c.Score)
		if s+scoreEpsilon < p.MinAbsScore {
			continue
		}
		accepted = append(accepted, Candidate{PrincipalID: c.PrincipalID, Score: s})
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Score != accepted[j].Score {
			return accepted[i].Score > accepted[j].Score
		}
		return accepted[i].PrincipalID < accepted[j].PrincipalID
	})

	d := FaceDecision{Accepted: accepted}
	switch len(accepted) {
	case 0:
		d.Reason = ReasonNoMatch
		return d
	case 1:
	default:
		if accepted[0].Score-accepted[1].Score+scoreEpsilon < p.MinGap {
			d.Reason = ReasonAmbiguousMatch
			d.Score = accepted[0].Score
			return d
		}
	}

	d.Authorized = true
	d.PrincipalID = accepted[0].PrincipalID
	d.Score = accepted[0].Score
	return d
}

// clampScore maps NaN to 0 and bounds s to [0,1].
func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
