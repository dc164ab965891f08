// Package statelog implements the per-run durable state log as specified in
// section 4.2 of the design specification. It is the single source of truth
// for what has been uploaded for a given run, enabling resumable uploads.
package statelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// ErrNotFound is returned by Read when no state record exists for the run.
var ErrNotFound = fmt.Errorf("state record not found")

// State is one of the classifications RunDiscovery assigns to a run based
// on its state log, as defined in section 4.3.
type State int

const (
	New State = iota
	Partial
	Uploaded
)

// Record is the persisted JSON document recording upload progress for one
// run, as defined in section 3 of the spec. Field names are bit-stable:
// external consumers may parse this file directly.
type Record struct {
	RunID              string            `json:"run_id"`
	RunPath            string            `json:"run_path"`
	Completed          bool              `json:"completed"`
	TotalLocalFiles    int               `json:"total_local_files"`
	TotalUploadedFiles int               `json:"total_uploaded_files"`
	TotalFailedUpload  int               `json:"total_failed_upload"`
	FailedUploadFiles  []string          `json:"failed_upload_files"`
	UploadedFiles      map[string]string `json:"uploaded_files"`
}

// Store implements atomic read-modify-write access to per-run state
// records under a logs directory, as specified in section 4.2.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at the given logs directory (the
// "uploads" subdirectory of the configured log_dir, per section 6's
// on-disk layout: "uploads/{run_id}.upload.log.json").
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// pathFor returns the state record path for a given run ID.
func (s *Store) pathFor(runID string) string {
	return filepath.Join(s.dir, runID+".upload.log.json")
}

// Read loads the state record for a run. It returns ErrNotFound if the
// record does not exist, including when a prior write was interrupted and
// only a partial file is present (readers treat a decode failure the same
// as absence — see section 4.2's durability note).
func (s *Store) Read(runID string) (Record, error) {
	path := s.pathFor(runID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to read state record for %s: %w", runID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A rare redundant re-upload of already-stored objects is
		// idempotent because the store is keyed by the same path, so
		// treating a corrupt/partial file as NOT_FOUND is acceptable.
		return Record{}, ErrNotFound
	}

	return rec, nil
}

// ClassifyFromLog implements the classify_from_log operation from section
// 4.2: returns (Uploaded, keys) when completed, (Partial, keys) otherwise,
// or (New, nil) if no record exists.
func (s *Store) ClassifyFromLog(runID string) (State, map[string]string, error) {
	rec, err := s.Read(runID)
	if errors.Is(err, ErrNotFound) {
		return New, nil, nil
	}
	if err != nil {
		return New, nil, err
	}

	if rec.Completed {
		return Uploaded, rec.UploadedFiles, nil
	}
	return Partial, rec.UploadedFiles, nil
}

// MergeAndWrite implements merge_and_write from section 4.2: load-or-
// initialize the run's record, merge in this attempt's successes and
// failures, recompute the derived invariants, and persist atomically via
// write-to-temp-then-rename.
//
// Merge rules: uploaded_files is the union of the prior map and newUploaded
// (new ETag wins on collision). failed_upload_files is replaced wholesale
// by newFailed, so a file that failed previously and now succeeds is no
// longer listed. completed is set true iff newFailed is empty and every
// local file has a recorded upload. Once a record's completed is true, the
// entire record is frozen: a later call for the same run_id returns the
// stored record unchanged instead of recomputing anything.
func (s *Store) MergeAndWrite(runID, runPath string, localFiles []string, newUploaded map[string]string, newFailed []string) (Record, error) {
	rec, err := s.Read(runID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	if errors.Is(err, ErrNotFound) {
		rec = Record{
			RunID:         runID,
			RunPath:       runPath,
			UploadedFiles: make(map[string]string),
		}
	}

	// A completed record is frozen in full per section 8's testable
	// property: no field changes again, not just the boolean.
	if rec.Completed {
		return rec, nil
	}

	if rec.UploadedFiles == nil {
		rec.UploadedFiles = make(map[string]string)
	}
	for path, etag := range newUploaded {
		rec.UploadedFiles[path] = etag
	}

	rec.FailedUploadFiles = append([]string(nil), newFailed...)
	if rec.FailedUploadFiles == nil {
		rec.FailedUploadFiles = []string{}
	}

	rec.RunPath = runPath
	rec.TotalLocalFiles = len(localFiles)
	rec.TotalUploadedFiles = len(rec.UploadedFiles)
	rec.TotalFailedUpload = len(rec.FailedUploadFiles)
	rec.Completed = rec.TotalFailedUpload == 0 && rec.TotalUploadedFiles == rec.TotalLocalFiles

	if err := s.write(runID, rec); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// write serializes the record to a sibling temp file then renames it over
// the target. The rename is the commit point.
func (s *Store) write(runID string, rec Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state log directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	target := s.pathFor(runID)
	tmp, err := os.CreateTemp(s.dir, runID+".upload.log.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit state file for %s: %w", runID, err)
	}

	return nil
}
