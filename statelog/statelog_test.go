package statelog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyFromLogNewWhenAbsent(t *testing.T) {
	store := NewStore(t.TempDir())
	state, keys, err := store.ClassifyFromLog("run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != New {
		t.Errorf("expected New, got %v", state)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestMergeAndWriteCreatesRecord(t *testing.T) {
	store := NewStore(t.TempDir())

	rec, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt"},
		map[string]string{"a.txt": "etag-a"},
		[]string{"b.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.TotalLocalFiles != 2 {
		t.Errorf("expected 2 local files, got %d", rec.TotalLocalFiles)
	}
	if rec.TotalUploadedFiles != 1 {
		t.Errorf("expected 1 uploaded file, got %d", rec.TotalUploadedFiles)
	}
	if rec.TotalFailedUpload != 1 {
		t.Errorf("expected 1 failed file, got %d", rec.TotalFailedUpload)
	}
	if rec.Completed {
		t.Error("expected completed=false")
	}
}

func TestMergeAndWriteRetrySucceedsRemovesFromFailed(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt"},
		map[string]string{"a.txt": "etag-a"},
		[]string{"b.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt"},
		map[string]string{"b.txt": "etag-b"},
		nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.TotalFailedUpload != 0 {
		t.Errorf("expected no failed files, got %d", rec.TotalFailedUpload)
	}
	if rec.TotalUploadedFiles != 2 {
		t.Errorf("expected 2 uploaded files, got %d", rec.TotalUploadedFiles)
	}
	if !rec.Completed {
		t.Error("expected completed=true")
	}
	if rec.UploadedFiles["a.txt"] != "etag-a" {
		t.Errorf("expected a.txt's prior etag to persist, got %s", rec.UploadedFiles["a.txt"])
	}
}

func TestCompletedNeverReverts(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt"},
		map[string]string{"a.txt": "etag-a"},
		nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.Read("run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Completed {
		t.Fatal("expected completed=true after first attempt")
	}

	// A later invocation that somehow reports a failure must not flip
	// completed back to false.
	rec2, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt"}, nil, []string{"a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec2.Completed {
		t.Error("expected completed to remain true once set")
	}
}

func TestUploadedFilesMonotonicallyGrows(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt", "c.txt"},
		map[string]string{"a.txt": "etag-a"}, []string{"b.txt", "c.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt", "c.txt"},
		map[string]string{"b.txt": "etag-b"}, []string{"c.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := rec.UploadedFiles["a.txt"]; !ok {
		t.Error("expected a.txt to remain uploaded across attempts")
	}
	if _, ok := rec.UploadedFiles["b.txt"]; !ok {
		t.Error("expected b.txt to be newly uploaded")
	}
	if len(rec.UploadedFiles) != 2 {
		t.Errorf("expected 2 uploaded files, got %d", len(rec.UploadedFiles))
	}
}

func TestClassifyFromLogPartialAndUploaded(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt"},
		map[string]string{"a.txt": "etag-a"}, []string{"b.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, keys, err := store.ClassifyFromLog("run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != Partial {
		t.Errorf("expected Partial, got %v", state)
	}
	if _, ok := keys["a.txt"]; !ok {
		t.Error("expected a.txt in uploaded keys")
	}

	_, err = store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt", "b.txt"},
		map[string]string{"b.txt": "etag-b"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, _, err = store.ClassifyFromLog("run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != Uploaded {
		t.Errorf("expected Uploaded, got %v", state)
	}
}

func TestReadPartialFileTreatedAsNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1.upload.log.json")
	if err := os.WriteFile(path, []byte(`{"run_id": "run1", "complet`), 0644); err != nil {
		t.Fatalf("failed to seed corrupt state file: %v", err)
	}

	store := NewStore(dir)
	_, err := store.Read("run1")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound for corrupt file, got %v", err)
	}
}

func TestEmptyRunCompletesImmediately(t *testing.T) {
	store := NewStore(t.TempDir())

	rec, err := store.MergeAndWrite("run1", "/data/run1", nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Completed {
		t.Error("expected empty run to complete immediately")
	}
	if rec.TotalLocalFiles != 0 || rec.TotalUploadedFiles != 0 {
		t.Errorf("expected all-zero totals, got local=%d uploaded=%d", rec.TotalLocalFiles, rec.TotalUploadedFiles)
	}
}

func TestRoundTripReadAfterWrite(t *testing.T) {
	store := NewStore(t.TempDir())

	written, err := store.MergeAndWrite("run1", "/data/run1",
		[]string{"a.txt"}, map[string]string{"a.txt": "etag-a"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	read, err := store.Read("run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if read.RunID != written.RunID || read.Completed != written.Completed ||
		read.TotalUploadedFiles != written.TotalUploadedFiles {
		t.Errorf("round-trip mismatch: wrote %+v, read %+v", written, read)
	}
}
