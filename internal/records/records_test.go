package records

import (
	"os"
	"testing"

	"Vigil/internal/storage"
)

// newTestStore creates a record store over temporary storage.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir, err := os.MkdirTemp("", "records_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return NewStore(db)
}

func TestPutGetDelete(t *testing.T) {
	store := newTestStore(t)

	rec := Record{
		Name:        "estate",
		Beneficiary: "aabbcc",
		Note:        "main estate documents",
		UpdatedAt:   100,
	}

	if err := store.Put(rec); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, ok := store.Get("estate")
	if !ok {
		t.Fatal("expected record")
	}

	if got != rec {
		t.Errorf("expected %+v, got %+v", rec, got)
	}

	// Overwrite
	rec.Note = "updated"
	if err := store.Put(rec); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, _ = store.Get("estate")
	if got.Note != "updated" {
		t.Error("put should overwrite")
	}

	if err := store.Delete("estate"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, ok := store.Get("estate"); ok {
		t.Error("expected miss after delete")
	}
}

func TestPutRequiresName(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(Record{Beneficiary: "aa"}); err == nil {
		t.Error("expected error for nameless record")
	}
}

func TestList(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := store.Put(Record{Name: name, UpdatedAt: 1}); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Lexicographic key order
	if records[0].Name != "alpha" || records[1].Name != "bravo" || records[2].Name != "charlie" {
		t.Errorf("unexpected order: %v", records)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	source := newTestStore(t)

	for _, name := range []string{"alpha", "bravo"} {
		if err := source.Put(Record{Name: name, Beneficiary: "aa", UpdatedAt: 100}); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	snapshot, err := source.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	target := newTestStore(t)

	count, err := target.ImportSnapshot(snapshot)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if count != 2 {
		t.Errorf("expected 2 imported records, got %d", count)
	}

	got, ok := target.Get("alpha")
	if !ok || got.Beneficiary != "aa" {
		t.Errorf("imported record mismatch: %+v", got)
	}
}

func TestSnapshotEmptyStore(t *testing.T) {
	source := newTestStore(t)

	snapshot, err := source.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	target := newTestStore(t)

	count, err := target.ImportSnapshot(snapshot)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if count != 0 {
		t.Errorf("expected 0 records, got %d", count)
	}
}

func TestImportRejectsCorruptedSnapshot(t *testing.T) {
	source := newTestStore(t)

	if err := source.Put(Record{Name: "alpha", UpdatedAt: 1}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	snapshot, err := source.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// Truncation breaks the zstd stream
	target := newTestStore(t)
	if _, err := target.ImportSnapshot(snapshot[:len(snapshot)/2]); err == nil {
		t.Error("expected error for truncated snapshot")
	}
}
