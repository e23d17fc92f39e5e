// Package scoring implements the comparison-score engine: it folds a
// user-configurable set of weighted, possibly-inverted criteria over the
// rating store's current snapshot and produces one normalized score per
// zipcode.
//
// Score is a pure, synchronous computation over an already-fetched snapshot.
// It performs no I/O and is fully determined by its inputs: callers fetch the
// snapshot via ratings.Store.GetBatch first.
package scoring

import (
	"ziprank/internal/types"
)

// ScaleMax is the fixed domain scale ceiling. All rating kinds are expressed
// on a common 0-10 scale by the collectors; the engine does not renormalize
// source scales. Inverted criteria contribute ScaleMax - value.
const ScaleMax = 10.0

// scaleMidpoint is the value substituted for missing observations when
// MidpointFallback is enabled.
const scaleMidpoint = 5.0

// Snapshot is the rating store's read result for a batch of zipcodes:
// zip -> rating kind -> current observation.
type Snapshot = map[string]map[types.RatingKind]types.Observation

// Options configures engine policy.
type Options struct {
	// MidpointFallback substitutes the scale midpoint (5.0) for criteria
	// with no observation instead of skipping them. The canonical policy is
	// skipping, so averages only reflect real data; this mode exists as an
	// explicit opt-in and is never mixed with skipping within one request.
	MidpointFallback bool
}

// Engine computes zipcode comparison scores. Stateless apart from options;
// safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine with the given options.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Score computes one ZipcodeScore per requested zip.
//
// Disabled criteria are excluded entirely. With no enabled criteria, every
// zip gets the sentinel (null) final score and UsedCriteria = 0 -- an empty
// request is not an error, so a UI polling during initial data collection
// never sees an exception.
//
// For each zip, each enabled criterion contributes weight * value (or
// weight * (ScaleMax - value) when inverted) if an observation exists for its
// rating kind. Missing observations contribute nothing under the canonical
// policy; the criterion still appears in the breakdown flagged Used=false so
// callers can explain the gap. The final score is the weighted average over
// contributing criteria; if none contributed, the final score is the
// sentinel.
//
// Output is deterministic for fixed inputs: zips and criteria are walked in
// the order supplied and the snapshot is only read by key.
func (e *Engine) Score(zips []string, criteria []types.Criterion, snapshot Snapshot) map[string]types.ZipcodeScore {
	enabled := make([]types.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}

	result := make(map[string]types.ZipcodeScore, len(zips))
	for _, zip := range zips {
		result[zip] = e.scoreOne(zip, enabled, snapshot[zip])
	}
	return result
}

// scoreOne computes the weighted average for a single zipcode.
func (e *Engine) scoreOne(zip string, enabled []types.Criterion, byKind map[types.RatingKind]types.Observation) types.ZipcodeScore {
	score := types.ZipcodeScore{
		Zip:       zip,
		Breakdown: make([]types.CriterionResult, 0, len(enabled)),
	}

	var weightedSum, weightSum float64
	for _, c := range enabled {
		entry := types.CriterionResult{
			RatingKind: c.RatingKind,
			Weight:     c.Weight,
			Invert:     c.Invert,
		}

		obs, ok := byKind[c.RatingKind]
		switch {
		case ok:
			raw := obs.Value
			contributed := raw
			if c.Invert {
				contributed = ScaleMax - raw
			}
			entry.Used = true
			entry.RawValue = &raw
			entry.Contributed = &contributed
			weightedSum += contributed * c.Weight
			weightSum += c.Weight
			score.UsedCriteria++
		case e.opts.MidpointFallback:
			// Alternate mode: a missing observation counts as the scale
			// midpoint. RawValue stays nil to record that no data existed.
			contributed := scaleMidpoint
			entry.Used = true
			entry.Contributed = &contributed
			weightedSum += contributed * c.Weight
			weightSum += c.Weight
			score.UsedCriteria++
		default:
			// Canonical policy: skip. The criterion appears in the breakdown
			// with Used=false and contributes nothing to the average.
		}

		score.Breakdown = append(score.Breakdown, entry)
	}

	if weightSum > 0 {
		score.FinalScore = types.ValidScore(weightedSum / weightSum)
	}
	return score
}
