package s3store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSClient resolves the calling principal's ARN, the input
// CheckPutObjectPermission needs before it can simulate that principal's S3
// permissions.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var _ STSClient = (*sts.Client)(nil)

// NewIAMClient builds an IAM client using the same profile resolution as
// NewClient.
func NewIAMClient(ctx context.Context, profileName string) (*iam.Client, error) {
	cfg, err := loadConfig(ctx, profileName)
	if err != nil {
		return nil, err
	}
	return iam.NewFromConfig(cfg), nil
}

// NewSTSClient builds an STS client using the same profile resolution as
// NewClient.
func NewSTSClient(ctx context.Context, profileName string) (*sts.Client, error) {
	cfg, err := loadConfig(ctx, profileName)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(cfg), nil
}

// CheckPutObjectPermission implements the optional pre-flight permission
// check from section 4.8 step 2: resolve the caller's principal ARN, then
// simulate s3:PutObject against every configured bucket so a missing
// permission surfaces as a clear, named error before any run is discovered
// rather than as an opaque AccessDenied deep into an upload attempt.
//
// This check is a supplement to VerifyAccess, not a replacement: a
// principal that cannot call iam:SimulatePrincipalPolicy (common for
// scoped-down roles) makes the check a no-op rather than fatal.
func CheckPutObjectPermission(ctx context.Context, stsClient STSClient, iamClient IAMClient, buckets []string) error {
	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil
	}

	seen := make(map[string]bool, len(buckets))
	for _, bucket := range buckets {
		if bucket == "" || seen[bucket] {
			continue
		}
		seen[bucket] = true

		resource := fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
		out, err := iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: identity.Arn,
			ActionNames:     []string{"s3:PutObject"},
			ResourceArns:    []string{resource},
		})
		if err != nil {
			continue
		}

		for _, result := range out.EvaluationResults {
			if result.EvalDecision == types.PolicyEvaluationDecisionTypeAllowed {
				continue
			}
			return fmt.Errorf("principal %s is not allowed s3:PutObject on bucket %s", *identity.Arn, bucket)
		}
	}

	return nil
}
