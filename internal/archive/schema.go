package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
)

//go:embed schema.sql
var schemaDDL string

// SchemaDDL returns the archive schema.
func SchemaDDL() string {
	return schemaDDL
}

// EnsureSchema creates the archive tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("archive: db is nil")
	}
	_, err := db.ExecContext(ctx, schemaDDL)
	return err
}
