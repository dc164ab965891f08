// Package samplesheet implements SamplesheetReader as specified in section
// 4.4 of the design specification: locating a run's samplesheet, extracting
// sample names, and deciding whether a run is uploadable under a configured
// sample-name filter.
package samplesheet

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// samplesheetPattern matches candidate samplesheet filenames case
// insensitively, per section 4.4.
var samplesheetPattern = regexp.MustCompile(`(?i).*sample[-_ ]?sheet.*\.csv$`)

// sampleIDLinePrefix is the literal column header samples are extracted
// under.
const sampleIDLinePrefix = "Sample_ID"

// Contents is a samplesheet's content as an ordered sequence of lines, with
// a single trailing newline stripped, as specified in section 4.4.
type Contents struct {
	Lines []string
}

// Locate finds candidate samplesheet files directly under runDir. Zero
// matches returns (nil, nil). Multiple matches are all read; their contents
// must be byte-identical, otherwise (nil, nil) is returned (logged as an
// error by the caller — RunDiscovery).
func Locate(runDir string) (*Contents, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory %s: %w", runDir, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if samplesheetPattern.MatchString(e.Name()) {
			candidates = append(candidates, filepath.Join(runDir, e.Name()))
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	var first []byte
	for i, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read samplesheet candidate %s: %w", path, err)
		}
		data = bytes.TrimSuffix(data, []byte("\n"))

		if i == 0 {
			first = data
			continue
		}
		if !bytes.Equal(first, data) {
			// Candidates disagree: ambiguous, caller treats as skip.
			return nil, nil
		}
	}

	lines := strings.Split(string(first), "\n")
	return &Contents{Lines: lines}, nil
}

// SampleNames extracts sample names from the unique line beginning with
// "Sample_ID": the names are the first comma-separated field of every
// subsequent line until end-of-file. If zero or more than one such header
// line is found, returns nil.
func (c *Contents) SampleNames() []string {
	headerIdx := -1
	for i, line := range c.Lines {
		if strings.HasPrefix(line, sampleIDLinePrefix) {
			if headerIdx != -1 {
				// Ambiguous: more than one Sample_ID line.
				return nil
			}
			headerIdx = i
		}
	}
	if headerIdx == -1 {
		return nil
	}

	var names []string
	for _, line := range c.Lines[headerIdx+1:] {
		name := line
		if idx := strings.IndexByte(line, ','); idx >= 0 {
			name = line[:idx]
		}
		names = append(names, name)
	}

	return names
}

// Uploadable decides whether every extracted sample name matches re (a
// search, not an anchored match, per the open question in section 9: the
// original implementation uses search semantics). An empty name list
// returns false (logged as a warning by the caller, treated as a skip). A
// nil regex means no filter is configured, so every run is uploadable.
func Uploadable(names []string, re *regexp.Regexp) bool {
	if len(names) == 0 {
		return false
	}
	if re == nil {
		return true
	}
	for _, name := range names {
		if !re.MatchString(name) {
			return false
		}
	}
	return true
}
