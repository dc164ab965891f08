// Package mock provides an in-memory S3Client used by the integration
// tests to exercise the full monitor/upload flow without any network
// access.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is an in-memory implementation of s3store.Client for testing.
type S3Client struct {
	mu sync.Mutex

	// Objects maps "bucket/key" to stored content.
	Objects map[string][]byte
	// ETags maps "bucket/key" to the ETag returned on put.
	ETags map[string]string
	// Buckets lists the bucket names HeadBucket/ListBuckets report as
	// reachable.
	Buckets map[string]bool

	// FailKeys, if set, makes PutObject return an error for the listed
	// "bucket/key" pairs, simulating per-file upload failure (scenario 2,
	// "interrupt and resume").
	FailKeys map[string]bool
}

// NewS3Client creates an empty mock S3 client with the given reachable
// buckets.
func NewS3Client(buckets ...string) *S3Client {
	b := make(map[string]bool, len(buckets))
	for _, name := range buckets {
		b[name] = true
	}
	return &S3Client{
		Objects: make(map[string][]byte),
		ETags:   make(map[string]string),
		Buckets: b,
	}
}

func objectKey(bucket, key string) string {
	return fmt.Sprintf("%s/%s", bucket, key)
}

// PutObject implements s3store.Client.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := objectKey(*params.Bucket, *params.Key)

	m.mu.Lock()
	fail := m.FailKeys[key]
	m.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("simulated upload failure for %s", key)
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	etag := fmt.Sprintf("%x", len(data))

	m.mu.Lock()
	m.Objects[key] = data
	m.ETags[key] = etag
	m.mu.Unlock()

	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("%q", etag))}, nil
}

// HeadObject implements s3store.Client.
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := objectKey(*params.Bucket, *params.Key)

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.Objects[key]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("object not found: " + key)}
	}

	contentLength := int64(len(data))
	etag := fmt.Sprintf("%q", m.ETags[key])

	return &s3.HeadObjectOutput{ETag: &etag, ContentLength: &contentLength}, nil
}

// GetObject implements s3store.Client.
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := objectKey(*params.Bucket, *params.Key)

	m.mu.Lock()
	data, ok := m.Objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("object not found: " + key)}
	}

	contentLength := int64(len(data))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: &contentLength,
	}, nil
}

// HeadBucket implements s3store.Client.
func (m *S3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Buckets[*params.Bucket] {
		return nil, &types.NotFound{Message: aws.String("bucket not found: " + *params.Bucket)}
	}
	return &s3.HeadBucketOutput{}, nil
}

// ListBuckets implements s3store.Client.
func (m *S3Client) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &s3.ListBucketsOutput{}
	for name := range m.Buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

// Keys returns every object key currently stored under bucket, for test
// assertions.
func (m *S3Client) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := bucket + "/"
	var keys []string
	for k := range m.Objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	return keys
}
