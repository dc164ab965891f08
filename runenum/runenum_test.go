package runenum

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func TestEnumerateSortedBySizeDescending(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.txt"), 10)
	writeFile(t, filepath.Join(dir, "large.txt"), 1000)
	writeFile(t, filepath.Join(dir, "medium.txt"), 100)

	entries, err := Enumerate(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Size < entries[i].Size {
			t.Errorf("entries not sorted descending: %+v", entries)
		}
	}
}

func TestEnumerateRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), 1)
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), 2)
	writeFile(t, filepath.Join(dir, "sub", "deeper", "c.txt"), 3)

	entries, err := Enumerate(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestEnumerateExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), 10)
	writeFile(t, filepath.Join(dir, "skip.log"), 10)

	entries, err := Enumerate(dir, []string{`\.log$`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after exclude, got %d", len(entries))
	}
	if filepath.Base(entries[0].Path) != "keep.txt" {
		t.Errorf("expected keep.txt to remain, got %s", entries[0].Path)
	}
}

func TestEnumerateExcludeEverythingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), 10)
	writeFile(t, filepath.Join(dir, "b.txt"), 20)

	entries, err := Enumerate(dir, []string{".*"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty result, got %d entries", len(entries))
	}
}

func TestEnumerateThenExcludeEqualsExcludeThenSort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), 30)
	writeFile(t, filepath.Join(dir, "b.log"), 10)
	writeFile(t, filepath.Join(dir, "c.txt"), 20)

	excluded, err := Enumerate(dir, []string{`\.log$`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := Enumerate(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var filteredThenSorted []FileEntry
	for _, e := range all {
		if filepath.Ext(e.Path) != ".log" {
			filteredThenSorted = append(filteredThenSorted, e)
		}
	}
	sortBySizeDescending(filteredThenSorted)

	if len(excluded) != len(filteredThenSorted) {
		t.Fatalf("length mismatch: %d vs %d", len(excluded), len(filteredThenSorted))
	}
	for i := range excluded {
		if excluded[i].Path != filteredThenSorted[i].Path {
			t.Errorf("order mismatch at %d: %s vs %s", i, excluded[i].Path, filteredThenSorted[i].Path)
		}
	}
}

func TestEnumerateEmptyDir(t *testing.T) {
	dir := t.TempDir()
	entries, err := Enumerate(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty result, got %d", len(entries))
	}
}

func TestPartitionRecoversMultiset(t *testing.T) {
	files := []FileEntry{
		{Path: "a", Size: 50}, {Path: "b", Size: 40}, {Path: "c", Size: 30},
		{Path: "d", Size: 20}, {Path: "e", Size: 10},
	}
	shards := Partition(files, 3)

	var got []string
	for _, shard := range shards {
		for _, f := range shard {
			got = append(got, f.Path)
		}
	}
	sort.Strings(got)

	var want []string
	for _, f := range files {
		want = append(want, f.Path)
	}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("expected %d files recovered, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("multiset mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestPartitionShardLengthsBalanced(t *testing.T) {
	files := make([]FileEntry, 10)
	for i := range files {
		files[i] = FileEntry{Path: string(rune('a' + i)), Size: int64(100 - i)}
	}

	shards := Partition(files, 3)

	maxLen, minLen := 0, 1<<30
	for _, shard := range shards {
		if len(shard) > maxLen {
			maxLen = len(shard)
		}
		if len(shard) < minLen {
			minLen = len(shard)
		}
	}
	if maxLen-minLen > 1 {
		t.Errorf("shard length imbalance: max=%d min=%d", maxLen, minLen)
	}

	ceil := (len(files) + 2) / 3
	if maxLen > ceil {
		t.Errorf("shard exceeds ceil(|F|/n): max=%d ceil=%d", maxLen, ceil)
	}
}

func TestPartitionFewerFilesThanCores(t *testing.T) {
	files := []FileEntry{{Path: "a", Size: 10}, {Path: "b", Size: 5}}
	shards := Partition(files, 10)

	if len(shards) != 2 {
		t.Fatalf("expected 2 shards (one per file), got %d", len(shards))
	}
	for _, shard := range shards {
		if len(shard) != 1 {
			t.Errorf("expected shard of length 1, got %d", len(shard))
		}
	}
}

func TestPartitionEmptyInput(t *testing.T) {
	shards := Partition(nil, 4)
	if len(shards) != 0 {
		t.Errorf("expected no shards for empty input, got %d", len(shards))
	}
}

func TestPartitionInterleavesLargestAndSmallest(t *testing.T) {
	// shard i receives the i-th largest, the (n+i)-th largest, and so on.
	files := []FileEntry{
		{Path: "1st", Size: 100}, {Path: "2nd", Size: 90}, {Path: "3rd", Size: 80},
		{Path: "4th", Size: 70}, {Path: "5th", Size: 60}, {Path: "6th", Size: 50},
	}
	shards := Partition(files, 2)

	if shards[0][0].Path != "1st" || shards[0][1].Path != "3rd" || shards[0][2].Path != "5th" {
		t.Errorf("unexpected shard 0: %+v", shards[0])
	}
	if shards[1][0].Path != "2nd" || shards[1][1].Path != "4th" || shards[1][2].Path != "6th" {
		t.Errorf("unexpected shard 1: %+v", shards[1])
	}
}
