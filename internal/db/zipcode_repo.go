package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"ziprank/internal/types"
)

// ZipcodeRepository provides data access for the zipcodes reference table.
// Rows are created by the external geometry loader; this core only reads them
// and refreshes the demographics columns from the census collector.
type ZipcodeRepository struct {
	db DBTX
}

// NewZipcodeRepository creates a new ZipcodeRepository backed by the given
// database connection (pool or transaction).
func NewZipcodeRepository(db DBTX) *ZipcodeRepository {
	return &ZipcodeRepository{db: db}
}

// zipColumns defines the standard set of columns selected for zipcode queries.
// Geometry is selected separately because it dominates row size and most
// callers (scoring, collectors) never need it.
const zipColumns = `z.zip, z.name, z.county, z.state, z.population,
	z.median_income, z.median_home_value, z.median_rent, z.ownership_percent,
	z.last_updated`

// scanZipcode scans a single zipcode row without geometry. The columns must
// match the order defined in zipColumns.
func scanZipcode(rows pgx.Rows) (*types.Zipcode, error) {
	var z types.Zipcode
	var name, county, state *string

	err := rows.Scan(
		&z.Zip,
		&name,
		&county,
		&state,
		&z.Population,
		&z.MedianIncome,
		&z.MedianHomeValue,
		&z.MedianRent,
		&z.OwnershipPercent,
		&z.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if name != nil {
		z.Name = *name
	}
	if county != nil {
		z.County = *county
	}
	if state != nil {
		z.State = *state
	}
	return &z, nil
}

// List returns every zipcode's reference record without geometry, ordered by zip.
func (r *ZipcodeRepository) List(ctx context.Context) ([]*types.Zipcode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+zipColumns+`
		 FROM zipcodes z
		 ORDER BY z.zip`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list zipcodes", err)
	}
	defer rows.Close()

	var results []*types.Zipcode
	for rows.Next() {
		z, scanErr := scanZipcode(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan zipcode row", scanErr)
		}
		results = append(results, z)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating zipcode rows", err)
	}

	return results, nil
}

// ListWithGeometry returns every zipcode including its GeoJSON geometry blob.
// Used only by the feature-collection endpoint; the geometry is passed through
// opaquely and never parsed here.
func (r *ZipcodeRepository) ListWithGeometry(ctx context.Context) ([]*types.Zipcode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+zipColumns+`, z.geometry
		 FROM zipcodes z
		 ORDER BY z.zip`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list zipcodes with geometry", err)
	}
	defer rows.Close()

	var results []*types.Zipcode
	for rows.Next() {
		var z types.Zipcode
		var name, county, state *string
		var geometry []byte

		err := rows.Scan(
			&z.Zip,
			&name,
			&county,
			&state,
			&z.Population,
			&z.MedianIncome,
			&z.MedianHomeValue,
			&z.MedianRent,
			&z.OwnershipPercent,
			&z.LastUpdated,
			&geometry,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan zipcode geometry row", err)
		}

		if name != nil {
			z.Name = *name
		}
		if county != nil {
			z.County = *county
		}
		if state != nil {
			z.State = *state
		}
		z.Geometry = geometry
		results = append(results, &z)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating zipcode geometry rows", err)
	}

	return results, nil
}

// ListZips returns just the zip keys, ordered. Collectors iterate this to
// fetch per-zip data without dragging reference columns around.
func (r *ZipcodeRepository) ListZips(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT zip FROM zipcodes ORDER BY zip`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list zips", err)
	}
	defer rows.Close()

	var zips []string
	for rows.Next() {
		var zip string
		if err := rows.Scan(&zip); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan zip row", err)
		}
		zips = append(zips, zip)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating zip rows", err)
	}

	return zips, nil
}

// GetByZip retrieves a single zipcode record without geometry.
// Returns ErrCodeNotFoundZipcode if unknown.
func (r *ZipcodeRepository) GetByZip(ctx context.Context, zip string) (*types.Zipcode, error) {
	var z types.Zipcode
	var name, county, state *string

	err := r.db.QueryRow(ctx,
		`SELECT `+zipColumns+`
		 FROM zipcodes z
		 WHERE z.zip = $1`,
		zip,
	).Scan(
		&z.Zip, &name, &county, &state,
		&z.Population, &z.MedianIncome, &z.MedianHomeValue, &z.MedianRent, &z.OwnershipPercent,
		&z.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundZipcode, "zipcode not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve zipcode", err)
	}

	if name != nil {
		z.Name = *name
	}
	if county != nil {
		z.County = *county
	}
	if state != nil {
		z.State = *state
	}
	return &z, nil
}

// Demographics is the subset of zipcode columns refreshed by the census
// collector.
type Demographics struct {
	Population       *int
	MedianIncome     *float64
	MedianHomeValue  *float64
	MedianRent       *float64
	OwnershipPercent *float64
}

// UpdateDemographics refreshes the census-derived columns for one zipcode.
// Nil fields write NULL, matching "the source had no figure for this zip".
func (r *ZipcodeRepository) UpdateDemographics(ctx context.Context, zip string, d Demographics) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE zipcodes SET
			population        = $2,
			median_income     = $3,
			median_home_value = $4,
			median_rent       = $5,
			ownership_percent = $6,
			last_updated      = NOW()
		 WHERE zip = $1`,
		zip,
		d.Population,
		d.MedianIncome,
		d.MedianHomeValue,
		d.MedianRent,
		d.OwnershipPercent,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update zipcode demographics", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundZipcode, "zipcode not found", nil)
	}
	return nil
}

// nilIfEmpty converts an empty string to nil for nullable columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
