// Package discovery implements RunDiscovery as specified in section 4.3 of
// the design specification: scanning monitored roots and classifying each
// subdirectory as not-a-run / incomplete / new / partial / uploaded /
// filtered-out.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gurre/seqrun-upload/samplesheet"
	"github.com/gurre/seqrun-upload/statelog"
)

// Classification is the tag RunDiscovery assigns to a candidate directory,
// as defined in section 3 ("RunCandidate").
type Classification int

const (
	NotRun Classification = iota
	Incomplete
	Filtered
	New
	Partial
	Uploaded
)

func (c Classification) String() string {
	switch c {
	case NotRun:
		return "NOT_RUN"
	case Incomplete:
		return "INCOMPLETE"
	case Filtered:
		return "FILTERED"
	case New:
		return "NEW"
	case Partial:
		return "PARTIAL"
	case Uploaded:
		return "UPLOADED"
	default:
		return "UNKNOWN"
	}
}

// terminationMarkers are the files whose presence indicates a sequencing
// run has finished copying, per the glossary's "Completed run" definition.
var terminationMarkers = []string{"CopyComplete.txt", "RTAComplete.txt", "RTAComplete.xml"}

// Candidate is a classified run directory, as defined in section 3
// ("RunCandidate"). For Partial runs, UploadedPaths holds the set of
// already-uploaded absolute local file paths from the state log.
type Candidate struct {
	Path           string
	RunID          string
	Classification Classification
	UploadedPaths  map[string]string
}

// Classify implements the ordered classification table from section 4.3:
// cheap filesystem checks first, samplesheet parse only after the run is
// known complete, state-log check last. Classification is pure — it does
// not mutate anything.
func Classify(runDir string, store statelog.Interface, sampleRegex *regexp.Regexp, logger *slog.Logger) Candidate {
	runID := filepath.Base(runDir)
	cand := Candidate{Path: runDir, RunID: runID}

	if _, err := os.Stat(filepath.Join(runDir, "RunInfo.xml")); err != nil {
		cand.Classification = NotRun
		return cand
	}

	if !IsComplete(runDir) {
		cand.Classification = Incomplete
		return cand
	}

	contents, err := samplesheet.Locate(runDir)
	if err != nil {
		if logger != nil {
			logger.Error("failed to read samplesheet", "run_id", runID, "error", err)
		}
		cand.Classification = Incomplete
		return cand
	}
	if contents == nil {
		if logger != nil {
			logger.Error("samplesheet unreadable or ambiguous", "run_id", runID)
		}
		cand.Classification = Incomplete
		return cand
	}

	names := contents.SampleNames()
	if len(names) == 0 && logger != nil {
		logger.Warn("no sample names extracted from samplesheet", "run_id", runID)
	}
	if !samplesheet.Uploadable(names, sampleRegex) {
		cand.Classification = Filtered
		return cand
	}

	state, uploaded, err := store.ClassifyFromLog(runID)
	if err != nil {
		if logger != nil {
			logger.Error("failed to classify from state log", "run_id", runID, "error", err)
		}
		cand.Classification = Incomplete
		return cand
	}

	switch state {
	case statelog.Uploaded:
		cand.Classification = Uploaded
	case statelog.Partial:
		cand.Classification = Partial
		cand.UploadedPaths = uploaded
	default:
		cand.Classification = New
	}

	return cand
}

// IsComplete checks for the presence of any termination marker file, as
// defined in the glossary's "Completed run". Exported so upload-mode's
// is-complete check (section 4.8) can reuse the same logic as monitor-mode
// classification.
func IsComplete(runDir string) bool {
	for _, marker := range terminationMarkers {
		if _, err := os.Stat(filepath.Join(runDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Scan classifies every immediate subdirectory of root, returning new and
// partial candidates. Non-candidate classifications (NOT_RUN, INCOMPLETE,
// FILTERED, UPLOADED) are dropped from the result. Classify logs only
// samplesheet and state-log read errors and an empty sample-name list; the
// other classifications are not logged.
func Scan(root string, store statelog.Interface, sampleRegex *regexp.Regexp, logger *slog.Logger) (newRuns []Candidate, partialRuns []Candidate, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan monitored directory %s: %w", root, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cand := Classify(filepath.Join(root, e.Name()), store, sampleRegex, logger)
		switch cand.Classification {
		case New:
			newRuns = append(newRuns, cand)
		case Partial:
			partialRuns = append(partialRuns, cand)
		}
	}

	return newRuns, partialRuns, nil
}
