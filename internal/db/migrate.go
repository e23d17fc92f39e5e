package db

import (
	"context"
	_ "embed"

	"ziprank/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so the collector runs this unconditionally at
// startup. Geometry loading and reference-data seeding are owned by the
// external loader, not this core.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}
