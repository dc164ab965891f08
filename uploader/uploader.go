// Package uploader implements the two-tier concurrent uploader specified in
// section 4.7: outer shard-level workers, inner thread-level workers, both
// collapsed per Design Note §9 into goroutines within a single process
// rather than separate OS processes, since the object-store client is
// goroutine-safe.
package uploader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/gurre/seqrun-upload/metrics"
	"github.com/gurre/seqrun-upload/runenum"
	"github.com/gurre/seqrun-upload/s3store"
)

// Result is the outcome of uploading all shards: the union of every
// shard's successes (local path to ETag) and the concatenation of every
// shard's failures, as specified by the result-merging rule in section
// 4.7.
type Result struct {
	Successes map[string]string
	Failures  []string
}

// Upload runs the outer shard tier (one goroutine per shard, up to cores)
// and the inner file tier (up to threads concurrent uploads per shard),
// implementing the public entry point from section 4.7:
// upload(shards, bucket, remote_path, parent_path, cores, threads).
//
// A per-file failure is isolated to that file and recorded in Failures; it
// never aborts the shard or the other shards. Files whose upload fails
// because the context was cancelled are recorded in Failures like any other
// per-file failure. No shard goroutine returns an error, so err is always
// nil.
func Upload(ctx context.Context, client s3store.Client, shards [][]runenum.FileEntry, bucket, remotePath, parentPath string, threads int, m *metrics.Metrics) (Result, error) {
	if threads < 1 {
		threads = 1
	}

	var mu sync.Mutex
	successes := make(map[string]string)
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		shard := shard
		g.Go(func() error {
			shardSuccesses, shardFailures := uploadShard(gctx, client, shard, bucket, remotePath, parentPath, threads, m)
			mu.Lock()
			for path, etag := range shardSuccesses {
				successes[path] = etag
			}
			failures = append(failures, shardFailures...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("upload failed: %w", err)
	}

	return Result{Successes: successes, Failures: failures}, nil
}

// uploadShard runs the inner thread tier for one shard: up to threads
// concurrent upload_single_file calls, isolating per-file failures.
func uploadShard(ctx context.Context, client s3store.Client, shard []runenum.FileEntry, bucket, remotePath, parentPath string, threads int, m *metrics.Metrics) (map[string]string, []string) {
	var mu sync.Mutex
	successes := make(map[string]string)
	var failures []string

	inner, innerCtx := errgroup.WithContext(ctx)
	inner.SetLimit(threads)

	for _, file := range shard {
		file := file
		inner.Go(func() error {
			etag, err := uploadSingleFile(innerCtx, client, file, bucket, remotePath, parentPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, file.Path)
				if m != nil {
					m.RecordFailed()
				}
				return nil
			}
			successes[file.Path] = etag
			if m != nil {
				m.RecordUploaded(file.Size)
			}
			return nil
		})
	}

	// Every goroutine above returns nil, so inner.Wait never reports an
	// error; per-file errors are handled and swallowed above, never
	// propagated.
	_ = inner.Wait()

	return successes, failures
}

// uploadSingleFile implements upload_single_file from section 4.7 steps
// 1-4: compute the remote key, PutObject the file content, then
// HeadObject to retrieve the ETag with surrounding quotes stripped.
func uploadSingleFile(ctx context.Context, client s3store.Client, file runenum.FileEntry, bucket, remotePath, parentPath string) (string, error) {
	key := RemoteKey(file.Path, remotePath, parentPath)

	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to head object %s: %w", key, err)
	}

	etag := ""
	if head.ETag != nil {
		etag = strings.Trim(*head.ETag, `"`)
	}

	return etag, nil
}

// RemoteKey implements the remote-key construction rule from section 4.7
// step 1: strip parentPath from the start of localPath, strip leading
// slashes from what remains, join to remotePath, strip leading slashes
// from the result.
func RemoteKey(localPath, remotePath, parentPath string) string {
	rel := strings.TrimPrefix(localPath, parentPath)
	rel = strings.TrimLeft(rel, "/")

	joined := strings.TrimRight(remotePath, "/") + "/" + rel
	return strings.TrimLeft(joined, "/")
}
