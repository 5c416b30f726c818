// Package migrate applies the embedded ledger schema.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"

	"github.com/example/groupmsg/internal/db"
)

//go:embed *.sql
var files embed.FS

// Versions lists the embedded migrations in apply order.
func Versions() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Up applies every migration not yet in schema_migrations, each in its own
// transaction, and returns the versions it applied.
func Up(ctx context.Context, d *db.DB) ([]string, error) {
	versions, err := Versions()
	if err != nil {
		return nil, err
	}
	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return nil, fmt.Errorf("schema_migrations: %w", err)
	}

	var applied []string
	for _, v := range versions {
		done, err := db.Exists(ctx, d, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, v)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		sql, err := files.ReadFile(v)
		if err != nil {
			return applied, err
		}
		err = d.InTx(ctx, func(tx db.Execer) error {
			if err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			return tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, v)
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", v, err)
		}
		applied = append(applied, v)
	}
	return applied, nil
}
