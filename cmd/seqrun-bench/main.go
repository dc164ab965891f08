// Package main implements a benchmarking harness for the uploader's
// cores/threads partitioning, a supplemented feature carried over from
// the original implementation's benchmark script. It generates a
// synthetic sequencing run directory and uploads it once per
// cores/threads combination, reporting throughput for each.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gurre/seqrun-upload/metrics"
	"github.com/gurre/seqrun-upload/runenum"
	"github.com/gurre/seqrun-upload/s3store"
	"github.com/gurre/seqrun-upload/uploader"
)

func randomString(r *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

// generateSyntheticRun writes numFiles files of fileSize bytes each under a
// fresh temporary directory, mimicking a completed sequencing run closely
// enough to exercise the uploader (content is random bytes; no FASTQ/BCL
// structure is needed since the uploader is content-agnostic).
func generateSyntheticRun(r *rand.Rand, numFiles, fileSize int) (string, error) {
	dir, err := os.MkdirTemp("", "seqrun-bench-")
	if err != nil {
		return "", fmt.Errorf("failed to create synthetic run dir: %w", err)
	}

	data := make([]byte, fileSize)
	for i := 0; i < numFiles; i++ {
		r.Read(data)
		name := fmt.Sprintf("%s.dat", randomString(r, 12))
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return "", fmt.Errorf("failed to write synthetic file %d: %w", i, err)
		}
	}

	return dir, nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func main() {
	localPath := flag.String("local_path", "", "path to a sequencing run to benchmark with (generates a synthetic one if empty)")
	bucket := flag.String("bucket", "", "S3 bucket to upload to")
	remotePath := flag.String("remote_path", "", "path to upload to in bucket (a random prefix is used if empty)")
	profileName := flag.String("profile_name", "", "AWS profile name")
	coresList := flag.String("cores", "", "comma-separated list of core counts to benchmark with")
	threadsList := flag.String("threads", "", "comma-separated list of thread counts to benchmark with")
	numFiles := flag.Int("num_files", 200, "number of files in the synthetic run (ignored if --local_path is set)")
	fileSize := flag.Int("file_size", 1<<20, "size in bytes of each synthetic file (ignored if --local_path is set)")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	flag.Parse()

	if *bucket == "" {
		log.Fatal("--bucket is required")
	}
	if *coresList == "" || *threadsList == "" {
		log.Fatal("--cores and --threads are required")
	}

	cores, err := parseIntList(*coresList)
	if err != nil {
		log.Fatalf("invalid --cores: %v", err)
	}
	threads, err := parseIntList(*threadsList)
	if err != nil {
		log.Fatalf("invalid --threads: %v", err)
	}

	rp := *remotePath
	if rp == "" {
		rp = fmt.Sprintf("/benchmark_upload_%d", time.Now().UnixNano())
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(s))
	fmt.Printf("using seed: %d\n", s)

	runDir := *localPath
	if runDir == "" {
		generated, err := generateSyntheticRun(r, *numFiles, *fileSize)
		if err != nil {
			log.Fatalf("failed to generate synthetic run: %v", err)
		}
		defer os.RemoveAll(generated)
		runDir = generated
		fmt.Printf("generated synthetic run at %s (%d files, %d bytes each)\n", runDir, *numFiles, *fileSize)
	}

	ctx := context.Background()
	client, err := s3store.NewClient(ctx, *profileName)
	if err != nil {
		log.Fatalf("failed to create S3 client: %v", err)
	}

	files, err := runenum.Enumerate(runDir, nil)
	if err != nil {
		log.Fatalf("failed to enumerate %s: %v", runDir, err)
	}
	parentPath := filepath.Dir(runDir) + "/"

	fmt.Printf("uploading benchmarking output to %s:%s\n", *bucket, rp)

	for _, c := range cores {
		for _, t := range threads {
			fmt.Printf("beginning benchmark with %d cores and %d threads\n", c, t)

			shards := runenum.Partition(files, c)
			m := metrics.New()

			start := time.Now()
			result, err := uploader.Upload(ctx, client, shards, *bucket, rp, parentPath, t, m)
			elapsed := time.Since(start)
			if err != nil {
				log.Printf("benchmark run failed for cores=%d threads=%d: %v", c, t, err)
				continue
			}

			report := m.GenerateReport(fmt.Sprintf("bench-c%d-t%d", c, t))
			fmt.Printf("cores=%d threads=%d elapsed=%s uploaded=%d failed=%d throughput=%.2f B/s\n",
				c, t, elapsed, len(result.Successes), len(result.Failures), report.Throughput)
		}
	}
}
