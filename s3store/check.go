package s3store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// VerifyAccess implements section 4.8 step 2: verify credentials with a
// list-buckets call, then verify every configured bucket is reachable with
// a head-bucket call. Any failure here is fatal to the caller.
func VerifyAccess(ctx context.Context, client Client, buckets []string) error {
	if _, err := client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("failed to list buckets (check credentials): %w", err)
	}

	seen := make(map[string]bool, len(buckets))
	for _, bucket := range buckets {
		if bucket == "" || seen[bucket] {
			continue
		}
		seen[bucket] = true

		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket}); err != nil {
			return fmt.Errorf("bucket %s is not reachable: %w", bucket, err)
		}
	}

	return nil
}
