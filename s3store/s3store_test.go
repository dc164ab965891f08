package s3store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeClient is a hand-rolled mock of Client, following the teacher's
// preference for plain struct mocks over a generated/mockery client.
type fakeClient struct {
	listBucketsErr error
	headBucketErr  map[string]error
	headBucketCall []string
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{}, nil
}

func (f *fakeClient) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.headBucketCall = append(f.headBucketCall, *params.Bucket)
	if err, ok := f.headBucketErr[*params.Bucket]; ok {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeClient) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if f.listBucketsErr != nil {
		return nil, f.listBucketsErr
	}
	return &s3.ListBucketsOutput{}, nil
}

func TestVerifyAccessSuccess(t *testing.T) {
	client := &fakeClient{}
	err := VerifyAccess(context.Background(), client, []string{"bucket-a", "bucket-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.headBucketCall) != 2 {
		t.Errorf("expected 2 head-bucket calls, got %d", len(client.headBucketCall))
	}
}

func TestVerifyAccessFailsOnBadCredentials(t *testing.T) {
	client := &fakeClient{listBucketsErr: errors.New("access denied")}
	err := VerifyAccess(context.Background(), client, []string{"bucket-a"})
	if err == nil {
		t.Fatal("expected error from list-buckets failure")
	}
}

func TestVerifyAccessFailsOnUnreachableBucket(t *testing.T) {
	client := &fakeClient{headBucketErr: map[string]error{"missing": errors.New("not found")}}
	err := VerifyAccess(context.Background(), client, []string{"ok", "missing"})
	if err == nil {
		t.Fatal("expected error from unreachable bucket")
	}
}

func TestVerifyAccessDedupesBuckets(t *testing.T) {
	client := &fakeClient{}
	err := VerifyAccess(context.Background(), client, []string{"same", "same", "same"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.headBucketCall) != 1 {
		t.Errorf("expected deduped bucket list to yield 1 call, got %d", len(client.headBucketCall))
	}
}

func TestVerifyAccessSkipsEmptyBucketNames(t *testing.T) {
	client := &fakeClient{}
	err := VerifyAccess(context.Background(), client, []string{"", "real"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.headBucketCall) != 1 {
		t.Errorf("expected only the non-empty bucket to be checked, got %d calls", len(client.headBucketCall))
	}
}

func TestMultipartThresholdIsAboutOneGiB(t *testing.T) {
	want := int64(1 << 30)
	if got := MultipartThreshold(); got != want {
		t.Errorf("expected multipart threshold %d, got %d", want, got)
	}
}
