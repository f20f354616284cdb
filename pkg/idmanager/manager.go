// Package idmanager provides a durable, transactional mapping from an
// opaque image description to an allocated image id within a chosen
// (namespace, subspace), plus a per-(id, terminal) upload ledger. It is
// backed by an embedded sqlite database (modernc.org/sqlite), accessed
// through database/sql with exactly one transaction per public operation.
package idmanager

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
)

// maxRandomAttempts is the number of random-candidate draws GetID tries
// before falling back to deterministic enumeration with LRU eviction.
const maxRandomAttempts = 16

// defaultMaxPerSubspace is the default cleanup trigger threshold: once a
// (namespace, subspace) holds more than this many rows (and more than 75%
// of its capacity), the oldest rows are trimmed back down to this count.
const defaultMaxPerSubspace = 1024

// Manager is a durable image-id allocator and upload ledger.
type Manager struct {
	db     *sql.DB
	log    *slog.Logger
	maxPer int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxPerSubspace overrides the default cleanup trigger threshold
// (1024).
func WithMaxPerSubspace(n int) Option {
	return func(m *Manager) { m.maxPer = n }
}

// WithLogger attaches a logger; eviction, cleanup, and fallback-to-LRU
// events are logged at Debug/Warn. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Open opens (creating if necessary) the sqlite-backed id database at
// path and runs its schema migration. The sentinel path ":memory:"
// selects a process-local, non-shared in-memory database (used by tests);
// passing it through a shared-cache DSN keeps every connection on the
// pool pointed at the same in-memory instance.
func Open(ctx context.Context, path string, opts ...Option) (*Manager, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&mode=memory"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("idmanager: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// The shared in-memory database only survives while at least one
		// connection is open; a single connection avoids it vanishing
		// between uses and avoids cross-connection lock contention.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("idmanager: enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("idmanager: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	m := &Manager{db: db, log: slog.Default(), maxPer: defaultMaxPerSubspace}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

// IDRecord is a persisted (id, description, atime) row.
type IDRecord struct {
	ID          uint32
	Description string
	ATime       time.Time
}

func withTx[T any](ctx context.Context, db *sql.DB, fn func(*sql.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("idmanager: begin transaction: %w", err)
	}
	v, err := fn(tx)
	if err != nil {
		tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("idmanager: commit: %w", err)
	}
	return v, nil
}

// GetID returns the id associated with description within (ns, sub),
// allocating a fresh one if none exists yet. See spec.md §4.2 for the
// full allocation algorithm (random draws, then deterministic enumeration,
// then LRU eviction).
func (m *Manager) GetID(ctx context.Context, description string, ns idspace.Namespace, sub idspace.Subspace) (uint32, error) {
	table := tableName(ns)
	expr := subspaceByteExpr(ns)

	return withTx(ctx, m.db, func(tx *sql.Tx) (uint32, error) {
		if id, found, err := lookupByDescription(ctx, tx, table, expr, description, sub); err != nil {
			return 0, err
		} else if found {
			if err := touchATime(ctx, tx, table, id); err != nil {
				return 0, err
			}
			return id, nil
		}

		for i := 0; i < maxRandomAttempts; i++ {
			cand, err := ns.GenRandomID(sub)
			if err != nil {
				return 0, fmt.Errorf("idmanager: generate random id: %w", err)
			}
			inserted, err := tryInsert(ctx, tx, table, cand, description)
			if err != nil {
				return 0, err
			}
			if inserted {
				if err := m.maybeCleanup(ctx, tx, ns, sub, table); err != nil {
					return 0, err
				}
				return cand, nil
			}
		}

		m.log.Debug("idmanager: falling back to deterministic enumeration", "namespace", ns.Name(), "subspace", sub.String())

		for cand := range ns.AllIDs(sub) {
			inserted, err := tryInsert(ctx, tx, table, cand, description)
			if err != nil {
				return 0, err
			}
			if inserted {
				if err := m.maybeCleanup(ctx, tx, ns, sub, table); err != nil {
					return 0, err
				}
				return cand, nil
			}
		}

		victim, found, err := oldestInSubspace(ctx, tx, table, expr, sub)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, ErrExhausted
		}

		m.log.Warn("idmanager: evicting LRU id under subspace pressure", "namespace", ns.Name(), "subspace", sub.String(), "id", victim)
		if err := evictID(ctx, tx, table, victim); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, description, atime) VALUES (?, ?, ?)`, table),
			victim, description, nowNano()); err != nil {
			return 0, fmt.Errorf("idmanager: insert after eviction: %w", err)
		}
		return victim, nil
	})
}

// GetInfo looks up an id's record across all namespaces (the namespace is
// derived from the id's bits). Returns (nil, nil) on a miss. A hit
// refreshes the record's atime.
func (m *Manager) GetInfo(ctx context.Context, id uint32) (*IDRecord, error) {
	ns, err := idspace.FromID(id)
	if err != nil {
		return nil, nil
	}
	table := tableName(ns)

	return withTx(ctx, m.db, func(tx *sql.Tx) (*IDRecord, error) {
		rec, found, err := selectRecord(ctx, tx, table, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		if err := touchATime(ctx, tx, table, id); err != nil {
			return nil, err
		}
		rec.ATime = time.Now()
		return &rec, nil
	})
}

// SetID upserts a row at exactly this id with the given description,
// setting atime to now. It does not alter Upload Records directly, but a
// changed description will cause subsequent NeedsUploading checks to
// report true for every terminal that previously uploaded this id.
func (m *Manager) SetID(ctx context.Context, id uint32, description string) error {
	ns, err := idspace.FromID(id)
	if err != nil {
		return fmt.Errorf("idmanager: SetID: %w", err)
	}
	table := tableName(ns)

	_, err = withTx(ctx, m.db, func(tx *sql.Tx) (struct{}, error) {
		_, execErr := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, description, atime) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET description = excluded.description, atime = excluded.atime
		`, table), id, description, nowNano())
		if execErr != nil {
			return struct{}{}, fmt.Errorf("idmanager: SetID: %w", execErr)
		}
		return struct{}{}, nil
	})
	return err
}

// DelID deletes the id's record and all of its Upload Records.
func (m *Manager) DelID(ctx context.Context, id uint32) error {
	ns, err := idspace.FromID(id)
	if err != nil {
		return fmt.Errorf("idmanager: DelID: %w", err)
	}
	table := tableName(ns)

	_, err = withTx(ctx, m.db, func(tx *sql.Tx) (struct{}, error) {
		if err := evictID(ctx, tx, table, id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// GetAll returns every record in (ns, sub), newest atime first.
func (m *Manager) GetAll(ctx context.Context, ns idspace.Namespace, sub idspace.Subspace) ([]IDRecord, error) {
	table := tableName(ns)
	expr := subspaceByteExpr(ns)

	return withTx(ctx, m.db, func(tx *sql.Tx) ([]IDRecord, error) {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(
			`SELECT id, description, atime FROM %s WHERE %s >= ? AND %s < ? ORDER BY atime DESC`,
			table, expr, expr), sub.Begin, sub.End)
		if err != nil {
			return nil, fmt.Errorf("idmanager: GetAll: %w", err)
		}
		defer rows.Close()

		var out []IDRecord
		for rows.Next() {
			var rec IDRecord
			var id int64
			var atimeNano int64
			if err := rows.Scan(&id, &rec.Description, &atimeNano); err != nil {
				return nil, fmt.Errorf("idmanager: GetAll scan: %w", err)
			}
			rec.ID = uint32(id)
			rec.ATime = time.Unix(0, atimeNano)
			out = append(out, rec)
		}
		return out, rows.Err()
	})
}

func nowNano() int64 { return time.Now().UnixNano() }

func lookupByDescription(ctx context.Context, tx *sql.Tx, table, expr, description string, sub idspace.Subspace) (uint32, bool, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE description = ? AND %s >= ? AND %s < ? ORDER BY atime DESC LIMIT 1`,
		table, expr, expr), description, sub.Begin, sub.End)
	var id int64
	switch err := row.Scan(&id); err {
	case nil:
		return uint32(id), true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("idmanager: lookup by description: %w", err)
	}
}

func selectRecord(ctx context.Context, tx *sql.Tx, table string, id uint32) (IDRecord, bool, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, description, atime FROM %s WHERE id = ?`, table), id)
	var rec IDRecord
	var rowID int64
	var atimeNano int64
	switch err := row.Scan(&rowID, &rec.Description, &atimeNano); err {
	case nil:
		rec.ID = uint32(rowID)
		rec.ATime = time.Unix(0, atimeNano)
		return rec, true, nil
	case sql.ErrNoRows:
		return IDRecord{}, false, nil
	default:
		return IDRecord{}, false, fmt.Errorf("idmanager: select record: %w", err)
	}
}

func touchATime(ctx context.Context, tx *sql.Tx, table string, id uint32) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET atime = ? WHERE id = ?`, table), nowNano(), id); err != nil {
		return fmt.Errorf("idmanager: touch atime: %w", err)
	}
	return nil
}

// tryInsert attempts to insert a fresh row at id. It returns (false, nil)
// if the id is already taken, rather than an error, so callers can retry
// with another candidate.
func tryInsert(ctx context.Context, tx *sql.Tx, table string, id uint32, description string) (bool, error) {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, description, atime) VALUES (?, ?, ?)`, table),
		id, description, nowNano())
	if err != nil {
		return false, fmt.Errorf("idmanager: insert candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("idmanager: insert candidate rows affected: %w", err)
	}
	return n > 0, nil
}

func oldestInSubspace(ctx context.Context, tx *sql.Tx, table, expr string, sub idspace.Subspace) (uint32, bool, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE %s >= ? AND %s < ? ORDER BY atime ASC LIMIT 1`,
		table, expr, expr), sub.Begin, sub.End)
	var id int64
	switch err := row.Scan(&id); err {
	case nil:
		return uint32(id), true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("idmanager: find oldest in subspace: %w", err)
	}
}

// evictID deletes id's record row and every Upload Record it owns.
func evictID(ctx context.Context, tx *sql.Tx, table string, id uint32) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("idmanager: evict id row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("idmanager: evict upload records: %w", err)
	}
	return nil
}

// maybeCleanup trims (ns, sub) back down to m.maxPer rows (oldest first)
// once it exceeds both m.maxPer and 75% of the subspace's total capacity.
func (m *Manager) maybeCleanup(ctx context.Context, tx *sql.Tx, ns idspace.Namespace, sub idspace.Subspace, table string) error {
	expr := subspaceByteExpr(ns)

	var count int
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s >= ? AND %s < ?`, table, expr, expr), sub.Begin, sub.End)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("idmanager: count subspace rows: %w", err)
	}

	if count <= m.maxPer {
		return nil
	}
	size := ns.SubspaceSize(sub)
	if size == 0 || float64(count) <= 0.75*float64(size) {
		return nil
	}

	toRemove := count - m.maxPer
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE %s >= ? AND %s < ? ORDER BY atime ASC LIMIT ?`,
		table, expr, expr), sub.Begin, sub.End, toRemove)
	if err != nil {
		return fmt.Errorf("idmanager: select cleanup victims: %w", err)
	}
	var victims []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("idmanager: scan cleanup victim: %w", err)
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	m.log.Debug("idmanager: cleanup trimming dense subspace", "namespace", ns.Name(), "subspace", sub.String(), "removed", len(victims))
	for _, id := range victims {
		if err := evictID(ctx, tx, table, uint32(id)); err != nil {
			return err
		}
	}
	return nil
}
