// Package runenum implements FileEnumerator and WorkPartitioner as specified
// in sections 4.5 and 4.6 of the design specification.
package runenum

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

// FileEntry is a single local file discovered during enumeration: its
// absolute path and byte size, as defined in section 3 ("LocalFileEntry").
type FileEntry struct {
	Path string
	Size int64
}

// Enumerate recursively walks root, yielding regular files only. Symlinks
// are not followed, matching the recommendation in section 4.5 to avoid
// walk cycles. Files whose full path matches any of excludePatterns
// (compiled as a single alternation) are dropped. The result is sorted by
// size descending; ties retain directory-walk order.
func Enumerate(root string, excludePatterns []string) ([]FileEntry, error) {
	var exclude *regexp.Regexp
	if len(excludePatterns) > 0 {
		combined := "(" + excludePatterns[0] + ")"
		for _, p := range excludePatterns[1:] {
			combined += "|(" + p + ")"
		}
		re, err := regexp.Compile(combined)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern: %w", err)
		}
		exclude = re
	}

	var entries []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// WalkDir reports symlinks as their own DirEntry type without
		// following them; skip anything that isn't a regular file.
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		if exclude != nil && exclude.MatchString(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		entries = append(entries, FileEntry{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", root, err)
	}

	sortBySizeDescending(entries)
	return entries, nil
}

func sortBySizeDescending(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Size > entries[j].Size
	})
}

// Partition implements WorkPartitioner (section 4.6): it splits a
// size-sorted list (largest first) into n balanced shards via round-robin
// chunking — first chunking F into consecutive groups of size n, then
// taking the i-th element of each group as shard i. Shard i therefore
// receives the i-th largest, the (n+i)-th largest, and so on.
//
// If len(files) < n, Partition returns len(files) shards of length 1, not n
// shards with some empty. An empty input returns an empty slice.
func Partition(files []FileEntry, n int) [][]FileEntry {
	if len(files) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if len(files) < n {
		n = len(files)
	}

	shards := make([][]FileEntry, n)
	for i, f := range files {
		shard := i % n
		shards[shard] = append(shards[shard], f)
	}
	return shards
}
