package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"ziprank/internal/types"
)

// SourceRepository provides data access for the data_sources table, one row
// per registered external data provider.
//
// update_frequency is stored as whole seconds (BIGINT) rather than a
// PostgreSQL INTERVAL; the next_update timestamp is always computed in Go and
// written as a concrete time.Time, which avoids interval parsing
// incompatibilities between Go duration strings and PG interval syntax.
type SourceRepository struct {
	db DBTX
}

// NewSourceRepository creates a new SourceRepository backed by the given
// database connection (pool or transaction).
func NewSourceRepository(db DBTX) *SourceRepository {
	return &SourceRepository{db: db}
}

// sourceColumns defines the standard set of columns selected for source queries.
const sourceColumns = `s.source_name, s.last_updated, s.next_update, s.update_frequency_seconds, s.url, s.notes`

// scanSource scans a single data_sources row. The columns must match the
// order defined in sourceColumns.
func scanSource(rows pgx.Rows) (*types.DataSource, error) {
	var src types.DataSource
	var freqSeconds int64
	var url, notes *string

	err := rows.Scan(
		&src.Name,
		&src.LastUpdated,
		&src.NextUpdate,
		&freqSeconds,
		&url,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	src.UpdateFrequency = time.Duration(freqSeconds) * time.Second
	if url != nil {
		src.URL = *url
	}
	if notes != nil {
		src.Notes = *notes
	}
	return &src, nil
}

// Register inserts the scheduling record for a source if it does not already
// exist. An existing row is left untouched so that re-registration on every
// scheduler start never resets an in-flight cadence.
func (r *SourceRepository) Register(ctx context.Context, src *types.DataSource) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO data_sources (source_name, last_updated, next_update, update_frequency_seconds, url, notes)
		 VALUES ($1, NULL, NULL, $2, $3, $4)
		 ON CONFLICT (source_name) DO NOTHING`,
		src.Name,
		int64(src.UpdateFrequency/time.Second),
		nilIfEmpty(src.URL),
		nilIfEmpty(src.Notes),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to register data source", err)
	}
	return nil
}

// List returns every registered data source ordered by name.
func (r *SourceRepository) List(ctx context.Context) ([]*types.DataSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sourceColumns+`
		 FROM data_sources s
		 ORDER BY s.source_name`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list data sources", err)
	}
	defer rows.Close()

	var results []*types.DataSource
	for rows.Next() {
		src, scanErr := scanSource(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan data source row", scanErr)
		}
		results = append(results, src)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating data source rows", err)
	}

	return results, nil
}

// ListDue returns the sources eligible to run at the given time: never-run
// sources (next_update IS NULL) and sources whose next_update has passed.
func (r *SourceRepository) ListDue(ctx context.Context, now time.Time) ([]*types.DataSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sourceColumns+`
		 FROM data_sources s
		 WHERE s.next_update IS NULL OR s.next_update <= $1
		 ORDER BY s.source_name`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due data sources", err)
	}
	defer rows.Close()

	var results []*types.DataSource
	for rows.Next() {
		src, scanErr := scanSource(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due source row", scanErr)
		}
		results = append(results, src)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due source rows", err)
	}

	return results, nil
}

// GetByName retrieves a single source record. Returns ErrCodeNotFoundSource
// if the source is not registered.
func (r *SourceRepository) GetByName(ctx context.Context, name string) (*types.DataSource, error) {
	var src types.DataSource
	var freqSeconds int64
	var url, notes *string

	err := r.db.QueryRow(ctx,
		`SELECT `+sourceColumns+`
		 FROM data_sources s
		 WHERE s.source_name = $1`,
		name,
	).Scan(&src.Name, &src.LastUpdated, &src.NextUpdate, &freqSeconds, &url, &notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSource, "data source not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve data source", err)
	}

	src.UpdateFrequency = time.Duration(freqSeconds) * time.Second
	if url != nil {
		src.URL = *url
	}
	if notes != nil {
		src.Notes = *notes
	}
	return &src, nil
}

// MarkSuccess records a successful run: last_updated becomes the run time and
// next_update the caller-computed next due time (run time + frequency). Both
// are concrete timestamps computed in Go.
//
// Failed runs are deliberately NOT recorded: the row keeps its prior
// last_updated/next_update, leaving the source due for immediate retry on the
// next scheduler tick.
func (r *SourceRepository) MarkSuccess(ctx context.Context, name string, ranAt, next time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources SET
			last_updated = $2,
			next_update  = $3
		 WHERE source_name = $1`,
		name, ranAt, next,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark data source run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSource, "data source not found", nil)
	}
	return nil
}

// DeleteAll removes every scheduling record, which makes every source "never
// run" and therefore immediately due. This backs the manual full-refresh
// trigger; the next tick re-registers the rows from the collector registry.
func (r *SourceRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM data_sources`)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset data sources", err)
	}
	return nil
}
