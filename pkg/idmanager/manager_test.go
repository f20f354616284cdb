package idmanager

import (
	"context"
	"testing"
	"time"

	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
)

func openTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := Open(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestGetIDIsStableForSameDescription(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	sub := idspace.Full

	id1, err := m.GetID(ctx, "cat.png#1234", idspace.NS24bit, sub)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := m.GetID(ctx, "cat.png#1234", idspace.NS24bit, sub)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("GetID for the same description returned different ids: %d vs %d", id1, id2)
	}

	id3, err := m.GetID(ctx, "dog.png#5678", idspace.NS24bit, sub)
	if err != nil {
		t.Fatal(err)
	}
	if id3 == id1 {
		t.Fatalf("GetID for distinct descriptions collided on id %d", id1)
	}
}

func TestGetIDRespectsSubspace(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	sub, err := idspace.NewSubspace(10, 12)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		id, err := m.GetID(ctx, descN(i), idspace.NS8bit, sub)
		if err != nil {
			t.Fatal(err)
		}
		if !idspace.NS8bit.ContainsAndInSubspace(id, sub) {
			t.Fatalf("id %d not within requested namespace/subspace", id)
		}
	}
}

// TestGetIDExhaustsAndEvictsLRU verifies invariant 5 (and scenario S1):
// once a subspace's ids are exhausted, the oldest unused entry is
// recycled rather than returning an error.
func TestGetIDExhaustsAndEvictsLRU(t *testing.T) {
	m := openTestManager(t, WithMaxPerSubspace(1<<30)) // disable cleanup trigger for this test
	ctx := context.Background()
	sub, err := idspace.NewSubspace(1, 2) // a single nonzero byte value -> subspace size 1
	if err != nil {
		t.Fatal(err)
	}

	first, err := m.GetID(ctx, "first", idspace.NS8bit, sub)
	if err != nil {
		t.Fatal(err)
	}

	// Touch "first" (still the only, and so the oldest, record), then
	// allocate a second description which must evict it since the subspace
	// holds only 1 id.
	time.Sleep(2 * time.Millisecond)
	if _, err := m.GetInfo(ctx, first); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)

	second, err := m.GetID(ctx, "second", idspace.NS8bit, sub)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatalf("expected eviction to recycle the only id in a size-1 subspace, got %d and %d", first, second)
	}

	rec, err := m.GetInfo(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Description != "second" {
		t.Fatalf("expected evicted id to now carry the new description, got %+v", rec)
	}
}

func TestSetIDAndDelID(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	id, err := m.GetID(ctx, "original", idspace.NS24bit, idspace.Full)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetID(ctx, id, "renamed"); err != nil {
		t.Fatal(err)
	}
	rec, err := m.GetInfo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Description != "renamed" {
		t.Fatalf("SetID did not take effect, got %+v", rec)
	}

	if err := m.DelID(ctx, id); err != nil {
		t.Fatal(err)
	}
	rec, err = m.GetInfo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected DelID to remove the record, still got %+v", rec)
	}
}

func TestDelIDCascadesToUploads(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	id, err := m.GetID(ctx, "img", idspace.NS24bit, idspace.Full)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.MarkUploaded(ctx, id, "term-a", 1024); err != nil {
		t.Fatal(err)
	}
	if err := m.DelID(ctx, id); err != nil {
		t.Fatal(err)
	}
	info, err := m.GetUploadInfo(ctx, id, "term-a")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expected DelID to cascade-delete upload records, still got %+v", info)
	}
}

// TestUploadLedgerArithmetic verifies scenario S2: uploads_ago and
// bytes_ago are recomputed relative to the most recent uploads on the
// same terminal.
func TestUploadLedgerArithmetic(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	var ids []uint32
	for i := 0; i < 3; i++ {
		id, err := m.GetID(ctx, descN(i), idspace.NS24bit, idspace.Full)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		if err := m.MarkUploaded(ctx, id, "term", int64(100*(i+1))); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// ids[2] was uploaded last (300 bytes): uploads_ago=1, bytes_ago=300
	// (inclusive of its own size).
	info, err := m.GetUploadInfo(ctx, ids[2], "term")
	if err != nil {
		t.Fatal(err)
	}
	if info.UploadsAgo != 1 || info.BytesAgo != 300 {
		t.Errorf("most recent upload: UploadsAgo=%d BytesAgo=%d, want 1,300", info.UploadsAgo, info.BytesAgo)
	}

	// ids[0] was uploaded first (100 bytes): uploads_ago=3, bytes_ago=300+200+100=600.
	info, err = m.GetUploadInfo(ctx, ids[0], "term")
	if err != nil {
		t.Fatal(err)
	}
	if info.UploadsAgo != 3 || info.BytesAgo != 600 {
		t.Errorf("oldest upload: UploadsAgo=%d BytesAgo=%d, want 3,600", info.UploadsAgo, info.BytesAgo)
	}
}

func TestNeedsUploading(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	id, err := m.GetID(ctx, "img", idspace.NS24bit, idspace.Full)
	if err != nil {
		t.Fatal(err)
	}

	need, err := m.NeedsUploading(ctx, id, "term", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected NeedsUploading to be true before any upload")
	}

	if err := m.MarkUploaded(ctx, id, "term", 10); err != nil {
		t.Fatal(err)
	}
	need, err = m.NeedsUploading(ctx, id, "term", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if need {
		t.Fatal("expected NeedsUploading to be false right after upload with no limits")
	}

	if err := m.SetID(ctx, id, "img-changed"); err != nil {
		t.Fatal(err)
	}
	need, err = m.NeedsUploading(ctx, id, "term", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected NeedsUploading to be true after description changed")
	}
}

func TestNeedsUploadingTimeLimit(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	id, err := m.GetID(ctx, "img", idspace.NS24bit, idspace.Full)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.MarkUploaded(ctx, id, "term", 10); err != nil {
		t.Fatal(err)
	}
	need, err := m.NeedsUploading(ctx, id, "term", 0, 0, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected NeedsUploading to be true once maxTimeAgo has elapsed")
	}
}

func TestCleanupUploadsTrimsPerTerminal(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id, err := m.GetID(ctx, descN(i), idspace.NS24bit, idspace.Full)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.MarkUploaded(ctx, id, "term", 100); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	if err := m.CleanupUploads(ctx, 2, 0, 0); err != nil {
		t.Fatal(err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT COUNT(*) FROM uploads WHERE terminal_id = ?`, "term")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected a count row")
	}
	var count int
	if err := rows.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("CleanupUploads(maxUploads=2): got %d remaining rows, want 2", count)
	}
}

func TestMarkUploadedRequiresIDRecord(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()
	err := m.MarkUploaded(ctx, 0x01000001, "term", 10)
	if err != ErrNoIDRecord {
		t.Fatalf("MarkUploaded on unknown id: err = %v, want ErrNoIDRecord", err)
	}
}

func descN(i int) string {
	return "description-" + string(rune('a'+i))
}
