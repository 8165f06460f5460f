package vectordb

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T, dim int) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")
	db, created, err := Open(Options{Path: path, Dimension: dim})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !created {
		t.Fatal("expected a fresh database to report created=true")
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestOpenCreatesFreshDatabase(t *testing.T) {
	db, path := openTestDB(t, 4)
	if db.Dimension() != 4 {
		t.Fatalf("Dimension() = %d, want 4", db.Dimension())
	}
	for _, suffix := range []string{"", "-index", "-wal"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Fatalf("expected %s to exist: %v", path+suffix, err)
		}
	}
}

func TestInsertThenSearchFindsExactMatch(t *testing.T) {
	db, _ := openTestDB(t, 4)

	id1, _, err := db.Insert([]int8{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	id2, _, err := db.Insert([]int8{-1, -2, -3, -4})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id2 != id1+1 {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", id1, id2)
	}

	results, err := db.SearchTopK([]int8{1, 2, 3, 4}, 1)
	if err != nil {
		t.Fatalf("SearchTopK: %v", err)
	}
	if len(results) != 1 || results[0] != id1 {
		t.Fatalf("results = %v, want [%d]", results, id1)
	}
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	db, _ := openTestDB(t, 4)
	if _, _, err := db.Insert([]int8{1, 2}); err != ErrDimensionMismatch {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestDeleteIsIdempotentForUnknownID(t *testing.T) {
	db, _ := openTestDB(t, 4)
	if _, err := db.Delete(999); err != nil {
		t.Fatalf("Delete of unknown id should not error: %v", err)
	}
}

func TestDeletedVectorIsExcludedFromSearch(t *testing.T) {
	db, _ := openTestDB(t, 4)
	id, _, err := db.Insert([]int8{5, 5, 5, 5})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := db.SearchTopK([]int8{5, 5, 5, 5}, 5)
	if err != nil {
		t.Fatalf("SearchTopK: %v", err)
	}
	for _, r := range results {
		if r == id {
			t.Fatalf("deleted id %d should not appear in search results", id)
		}
	}
}

func TestCompactPreservesLiveVectorsAndDropsDeleted(t *testing.T) {
	db, _ := openTestDB(t, 2)

	keep, _, err := db.Insert([]int8{1, 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	gone, _, err := db.Insert([]int8{2, 2})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.Delete(gone); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	results, err := db.SearchTopK([]int8{1, 1}, 5)
	if err != nil {
		t.Fatalf("SearchTopK: %v", err)
	}
	foundKeep, foundGone := false, false
	for _, r := range results {
		if r == keep {
			foundKeep = true
		}
		if r == gone {
			foundGone = true
		}
	}
	if !foundKeep {
		t.Fatal("expected the surviving vector's id in search results after compaction")
	}
	if foundGone {
		t.Fatal("deleted vector's id should not survive compaction")
	}
}

func TestReopenReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	db, created, err := Open(Options{Path: path, Dimension: 3})
	if err != nil || !created {
		t.Fatalf("Open: created=%v err=%v", created, err)
	}
	id, _, err := db.Insert([]int8{9, 9, 9})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, created2, err := Open(Options{Path: path, Dimension: 3})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if created2 {
		t.Fatal("reopening an existing database should report created=false")
	}

	results, err := reopened.SearchTopK([]int8{9, 9, 9}, 1)
	if err != nil {
		t.Fatalf("SearchTopK after reopen: %v", err)
	}
	if len(results) != 1 || results[0] != id {
		t.Fatalf("results after reopen = %v, want [%d]", results, id)
	}
}

func TestCorruptFilesRecreateByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	db, _, err := Open(Options{Path: path, Dimension: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	if err := os.WriteFile(path, []byte("not a valid header at all"), 0o644); err != nil {
		t.Fatalf("corrupt base file: %v", err)
	}

	db2, created, err := Open(Options{Path: path, Dimension: 4})
	if err != nil {
		t.Fatalf("Open after corruption: %v", err)
	}
	defer db2.Close()
	if !created {
		t.Fatal("expected corrupted files to be recreated")
	}
}

func TestCorruptFilesHaltUnderQuarantinePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	db, _, err := Open(Options{Path: path, Dimension: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	if err := os.WriteFile(path, []byte("not a valid header at all"), 0o644); err != nil {
		t.Fatalf("corrupt base file: %v", err)
	}

	_, _, err = Open(Options{Path: path, Dimension: 4, OnCorrupt: QuarantineAndHalt})
	if err == nil {
		t.Fatal("expected an error under QuarantineAndHalt for corrupted files")
	}
}

func TestCompactInProgressIsRejected(t *testing.T) {
	db, _ := openTestDB(t, 2)
	db.compactMu.Lock()
	db.compacting = true
	db.compactMu.Unlock()

	if err := db.Compact(); err != ErrCompactionInProgress {
		t.Fatalf("err = %v, want ErrCompactionInProgress", err)
	}

	db.compactMu.Lock()
	db.compacting = false
	db.compactMu.Unlock()
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	db, _ := openTestDB(t, 4)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := db.Insert([]int8{1, 2, 3, 4}); err != ErrClosed {
		t.Fatalf("Insert after close: err = %v, want ErrClosed", err)
	}
}
