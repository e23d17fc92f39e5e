package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"ziprank/internal/types"
)

// RatingRepository provides data access for the zipcode_ratings table: the
// authoritative mapping from (zip, rating kind) to the latest reconciled
// observation.
//
// Writes are last-writer-wins on the (zip, rating_type) composite key via
// INSERT ... ON CONFLICT DO UPDATE. There is deliberately no merge-by-
// confidence policy here: confidence is stored for downstream consumers, not
// enforced at this layer. A concurrent upsert and read for the same key can
// never interleave mid-write because the upsert is a single row-atomic
// statement.
type RatingRepository struct {
	db DBTX
}

// NewRatingRepository creates a new RatingRepository backed by the given
// database connection (pool or transaction).
func NewRatingRepository(db DBTX) *RatingRepository {
	return &RatingRepository{db: db}
}

// ratingColumns defines the standard set of columns selected for rating queries.
const ratingColumns = `r.zip, r.rating_type, r.rating_value, r.confidence, r.source, r.source_url, r.last_updated`

// scanObservation scans a single rating row. The columns must match the order
// defined in ratingColumns.
func scanObservation(rows pgx.Rows) (*types.Observation, error) {
	var obs types.Observation
	var sourceURL *string

	err := rows.Scan(
		&obs.Zip,
		&obs.Kind,
		&obs.Value,
		&obs.Confidence,
		&obs.Source,
		&sourceURL,
		&obs.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if sourceURL != nil {
		obs.SourceURL = *sourceURL
	}
	return &obs, nil
}

// Upsert writes the observation for its (zip, rating kind) pair, replacing any
// existing row. The caller (ratings.Store) is responsible for validating
// confidence and value before this point; the repository assumes well-formed
// input and maps any database failure to ErrCodeInternalDB.
func (r *RatingRepository) Upsert(ctx context.Context, obs *types.Observation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO zipcode_ratings (zip, rating_type, rating_value, confidence, source, source_url, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (zip, rating_type) DO UPDATE
		   SET rating_value = EXCLUDED.rating_value,
		       confidence   = EXCLUDED.confidence,
		       source       = EXCLUDED.source,
		       source_url   = EXCLUDED.source_url,
		       last_updated = NOW()`,
		obs.Zip,
		string(obs.Kind),
		obs.Value,
		obs.Confidence,
		obs.Source,
		nilIfEmpty(obs.SourceURL),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert rating", err)
	}
	return nil
}

// GetAll returns the current observation for every rating kind of one zipcode.
// Unknown zipcodes return an empty map, not an error.
func (r *RatingRepository) GetAll(ctx context.Context, zip string) (map[types.RatingKind]types.Observation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ratingColumns+`
		 FROM zipcode_ratings r
		 WHERE r.zip = $1`,
		zip,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get ratings", err)
	}
	defer rows.Close()

	result := make(map[types.RatingKind]types.Observation)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rating row", scanErr)
		}
		result[obs.Kind] = *obs
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating rating rows", err)
	}

	return result, nil
}

// GetBatch performs a vectorized fetch of the observations for multiple
// zipcodes in a single query. Used by the scoring engine so that one scoring
// request never issues N individual fetches. Zips with no observations are
// simply absent from the result map.
func (r *RatingRepository) GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error) {
	result := make(map[string]map[types.RatingKind]types.Observation, len(zips))
	if len(zips) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+ratingColumns+`
		 FROM zipcode_ratings r
		 WHERE r.zip = ANY($1)`,
		zips,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to batch get ratings", err)
	}
	defer rows.Close()

	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rating row in batch", scanErr)
		}
		byKind, ok := result[obs.Zip]
		if !ok {
			byKind = make(map[types.RatingKind]types.Observation)
			result[obs.Zip] = byKind
		}
		byKind[obs.Kind] = *obs
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating rating batch rows", err)
	}

	return result, nil
}

// LastUpdated returns the timestamp of the most recent successful write to
// persistent state (ratings or zipcode reference data). Returns nil when the
// database is empty. Used for staleness display.
func (r *RatingRepository) LastUpdated(ctx context.Context) (*time.Time, error) {
	var ts *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT GREATEST(
			(SELECT MAX(last_updated) FROM zipcode_ratings),
			(SELECT MAX(last_updated) FROM zipcodes)
		 )`,
	).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query last updated timestamp", err)
	}
	return ts, nil
}
