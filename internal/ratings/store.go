// Package ratings implements the rating reconciliation store: the single
// write path through which source observations enter the system, and the read
// path the scoring engine and map endpoints consume.
//
// Values are validated and normalized to numbers at write time, so every
// downstream consumer can assume a well-formed Observation. Overwrites on the
// same (zip, rating kind) pair are unconditional last-writer-wins; confidence
// is carried as provenance metadata, not used as a merge policy.
package ratings

import (
	"context"
	"log/slog"
	"math"
	"time"

	"ziprank/internal/types"
)

// Repository abstracts the persistence operations the store needs. Implemented
// by db.RatingRepository; an interface here keeps the store testable without a
// database.
type Repository interface {
	Upsert(ctx context.Context, obs *types.Observation) error
	GetAll(ctx context.Context, zip string) (map[types.RatingKind]types.Observation, error)
	GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error)
	LastUpdated(ctx context.Context) (*time.Time, error)
}

// Store is the authoritative mapping from (zip, rating kind) to the latest
// reconciled observation. It has no knowledge of scheduling or scoring.
type Store struct {
	repo   Repository
	logger *slog.Logger
}

// NewStore creates a Store backed by the given repository.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger}
}

// Upsert validates and writes one observation, replacing any existing row for
// the same (zip, rating kind) pair. Validation failures are rejected
// synchronously and never partially applied:
//   - confidence outside [0,1] -> validation_confidence_out_of_range
//   - non-finite value (NaN/Inf) -> validation_value_not_numeric
//   - missing zip or kind -> validation_missing_required_field
func (s *Store) Upsert(ctx context.Context, obs *types.Observation) error {
	if obs.Zip == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "zip is required", nil)
	}
	if obs.Kind == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "rating kind is required", nil)
	}
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationConfidenceRange,
			"confidence must be within [0,1]",
			nil,
			map[string]any{"zip": obs.Zip, "rating_kind": string(obs.Kind), "confidence": obs.Confidence},
		)
	}
	if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationValueNotNumeric,
			"rating value must be a finite number",
			nil,
			map[string]any{"zip": obs.Zip, "rating_kind": string(obs.Kind)},
		)
	}

	if err := s.repo.Upsert(ctx, obs); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "rating upserted",
		"zip", obs.Zip,
		"rating_kind", string(obs.Kind),
		"source", obs.Source,
	)
	return nil
}

// GetAll returns the current observation per rating kind for one zipcode.
// Unknown zipcodes yield an empty map, not an error.
func (s *Store) GetAll(ctx context.Context, zip string) (map[types.RatingKind]types.Observation, error) {
	return s.repo.GetAll(ctx, zip)
}

// GetBatch returns the observations for a batch of zipcodes in one consistent
// read. Per-key consistency comes from the row-atomic upsert: a reader can
// never observe a half-written observation for any single (zip, kind) pair.
// Cross-key atomicity is not guaranteed and not required, since criteria are
// evaluated independently per zipcode.
func (s *Store) GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error) {
	return s.repo.GetBatch(ctx, zips)
}

// LastUpdated reports the most recent successful write to persistent state.
func (s *Store) LastUpdated(ctx context.Context) (*time.Time, error) {
	return s.repo.LastUpdated(ctx)
}
