package idmanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
)

// tableName returns the per-namespace ids table name. Namespace.Name()
// values are a small fixed set ("0bit_3rd", "8bit", "8bit_3rd", "24bit",
// "24bit_3rd"), so this is safe to interpolate directly into SQL.
func tableName(ns idspace.Namespace) string {
	return "ids_" + ns.Name()
}

// subspaceByteExpr returns the SQL expression that extracts an id's
// subspace byte: the high byte for namespaces with Use3rdDiacritic, else
// the low byte.
func subspaceByteExpr(ns idspace.Namespace) string {
	if ns.Use3rdDiacritic {
		return "((id >> 24) & 255)"
	}
	return "(id & 255)"
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, ns := range idspace.AllValues() {
		t := tableName(ns)
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				description TEXT NOT NULL,
				atime INTEGER NOT NULL
			)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_desc_atime ON %s(description, atime DESC)`, t, t),
		}
		for _, s := range stmts {
			if _, err := db.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("idmanager: migrate %s: %w", t, err)
			}
		}
	}

	uploadStmts := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER NOT NULL,
			terminal_id TEXT NOT NULL,
			description TEXT NOT NULL,
			size INTEGER NOT NULL,
			upload_time INTEGER NOT NULL,
			PRIMARY KEY (id, terminal_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_terminal_time ON uploads(terminal_id, upload_time DESC)`,
	}
	for _, s := range uploadStmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("idmanager: migrate uploads: %w", err)
		}
	}
	return nil
}
