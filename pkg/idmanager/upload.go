package idmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
)

// UploadInfo describes one id's upload state on one terminal, plus its
// position in that terminal's recency/bytes ledger.
type UploadInfo struct {
	ID          uint32
	TerminalID  string
	Description string
	Size        int64
	UploadTime  time.Time

	// UploadsAgo is the 1-based position of this upload among all of the
	// terminal's uploads ordered by upload_time descending (1 = most
	// recent).
	UploadsAgo int
	// BytesAgo is the cumulative byte size of uploads at positions
	// 1..UploadsAgo inclusive on the same terminal, so the most recent
	// upload has UploadsAgo=1 and BytesAgo equal to its own size.
	BytesAgo int64
}

// MarkUploaded records that id's current description was uploaded to
// terminalID, sized size bytes, at now. Requires an existing ID Record;
// returns ErrNoIDRecord otherwise.
func (m *Manager) MarkUploaded(ctx context.Context, id uint32, terminalID string, size int64) error {
	_, err := withTx(ctx, m.db, func(tx *sql.Tx) (struct{}, error) {
		rec, found, err := selectRecordAnyNamespace(ctx, tx, id)
		if err != nil {
			return struct{}{}, err
		}
		if !found {
			return struct{}{}, ErrNoIDRecord
		}
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO uploads (id, terminal_id, description, size, upload_time) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id, terminal_id) DO UPDATE SET
				description = excluded.description,
				size = excluded.size,
				upload_time = excluded.upload_time
		`, id, terminalID, rec.Description, size, nowNano())
		if execErr != nil {
			return struct{}{}, fmt.Errorf("idmanager: MarkUploaded: %w", execErr)
		}
		return struct{}{}, nil
	})
	return err
}

// GetUploadInfo returns id's upload record on terminalID, or
// (nil, nil) on a miss.
func (m *Manager) GetUploadInfo(ctx context.Context, id uint32, terminalID string) (*UploadInfo, error) {
	return withTx(ctx, m.db, func(tx *sql.Tx) (*UploadInfo, error) {
		return getUploadInfoTx(ctx, tx, id, terminalID)
	})
}

func getUploadInfoTx(ctx context.Context, tx *sql.Tx, id uint32, terminalID string) (*UploadInfo, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT description, size, upload_time FROM uploads WHERE id = ? AND terminal_id = ?`, id, terminalID)
	var info UploadInfo
	var uploadNano int64
	switch err := row.Scan(&info.Description, &info.Size, &uploadNano); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, fmt.Errorf("idmanager: GetUploadInfo: %w", err)
	}
	info.ID = id
	info.TerminalID = terminalID
	info.UploadTime = time.Unix(0, uploadNano)

	rows, err := tx.QueryContext(ctx,
		`SELECT id, size, upload_time FROM uploads WHERE terminal_id = ? ORDER BY upload_time DESC`, terminalID)
	if err != nil {
		return nil, fmt.Errorf("idmanager: GetUploadInfo ledger scan: %w", err)
	}
	defer rows.Close()

	pos := 0
	var bytesAgo int64
	found := false
	for rows.Next() {
		var rowID int64
		var size int64
		var t int64
		if err := rows.Scan(&rowID, &size, &t); err != nil {
			return nil, fmt.Errorf("idmanager: GetUploadInfo ledger row: %w", err)
		}
		pos++
		bytesAgo += size
		if uint32(rowID) == id && t == uploadNano {
			found = true
			info.UploadsAgo = pos
			info.BytesAgo = bytesAgo
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		// Should not happen: the row we scanned above must appear in its
		// own terminal's ledger.
		return nil, fmt.Errorf("idmanager: GetUploadInfo: id %d missing from its own terminal ledger", id)
	}
	return &info, nil
}

// NeedsUploading reports whether id should be (re-)uploaded to terminalID
// given the current description. It is true when: there is no upload
// record yet; the recorded description no longer matches the id's current
// description; the upload is older than maxTimeAgo; the upload is more
// than maxUploadsAgo uploads stale; or more than maxBytesAgo bytes of
// fresher uploads have since been sent to the same terminal. A
// non-positive limit disables that particular check.
func (m *Manager) NeedsUploading(ctx context.Context, id uint32, terminalID string, maxUploadsAgo int, maxBytesAgo int64, maxTimeAgo time.Duration) (bool, error) {
	return withTx(ctx, m.db, func(tx *sql.Tx) (bool, error) {
		rec, found, err := selectRecordAnyNamespace(ctx, tx, id)
		if err != nil {
			return false, err
		}
		if !found {
			return true, nil
		}

		info, err := getUploadInfoTx(ctx, tx, id, terminalID)
		if err != nil {
			return false, err
		}
		if info == nil {
			return true, nil
		}
		if info.Description != rec.Description {
			return true, nil
		}
		if maxTimeAgo > 0 && time.Since(info.UploadTime) > maxTimeAgo {
			return true, nil
		}
		if maxUploadsAgo > 0 && info.UploadsAgo > maxUploadsAgo {
			return true, nil
		}
		if maxBytesAgo > 0 && info.BytesAgo > maxBytesAgo {
			return true, nil
		}
		return false, nil
	})
}

// CleanupUploads trims each terminal's upload ledger independently: for
// every terminal_id, uploads beyond maxUploads (by recency), beyond
// maxBytes cumulative size, or older than maxAge are deleted. A
// non-positive limit disables that particular check.
func (m *Manager) CleanupUploads(ctx context.Context, maxUploads int, maxBytes int64, maxAge time.Duration) error {
	_, err := withTx(ctx, m.db, func(tx *sql.Tx) (struct{}, error) {
		terms, err := distinctTerminalIDs(ctx, tx)
		if err != nil {
			return struct{}{}, err
		}
		for _, terminalID := range terms {
			if err := cleanupTerminalUploads(ctx, tx, terminalID, maxUploads, maxBytes, maxAge); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

func distinctTerminalIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT terminal_id FROM uploads`)
	if err != nil {
		return nil, fmt.Errorf("idmanager: list terminal ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("idmanager: scan terminal id: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func cleanupTerminalUploads(ctx context.Context, tx *sql.Tx, terminalID string, maxUploads int, maxBytes int64, maxAge time.Duration) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, size, upload_time FROM uploads WHERE terminal_id = ? ORDER BY upload_time DESC`, terminalID)
	if err != nil {
		return fmt.Errorf("idmanager: cleanup: list uploads for %s: %w", terminalID, err)
	}
	type row struct {
		id   int64
		size int64
		t    int64
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.size, &r.t); err != nil {
			rows.Close()
			return fmt.Errorf("idmanager: cleanup: scan upload row: %w", err)
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	var cumulative int64
	var victims []int64
	for i, r := range all {
		cumulative += r.size
		stale := false
		if maxUploads > 0 && i+1 > maxUploads {
			stale = true
		}
		if maxBytes > 0 && cumulative > maxBytes {
			stale = true
		}
		if maxAge > 0 && now.Sub(time.Unix(0, r.t)) > maxAge {
			stale = true
		}
		if stale {
			victims = append(victims, r.id)
		}
	}

	for _, id := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ? AND terminal_id = ?`, id, terminalID); err != nil {
			return fmt.Errorf("idmanager: cleanup: delete upload: %w", err)
		}
	}
	return nil
}

func selectRecordAnyNamespace(ctx context.Context, tx *sql.Tx, id uint32) (IDRecord, bool, error) {
	ns, err := idspace.FromID(id)
	if err != nil {
		return IDRecord{}, false, nil
	}
	return selectRecord(ctx, tx, tableName(ns), id)
}
