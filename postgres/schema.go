package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the tables and indexes if they do not exist yet.
// Intended for service start; production migrations can run the same
// file out of band.
func (pg *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := pg.bun.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
