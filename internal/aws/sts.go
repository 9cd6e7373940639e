package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSClient resolves the identity behind the loaded credentials
type STSClient interface {
	CallerIdentity(ctx context.Context) (*Identity, error)
}

// Identity is the caller identity reported by STS
type Identity struct {
	Account string
	Arn     string
	UserID  string
}

// SDKSTSClient implements STSClient using AWS SDK v2
type SDKSTSClient struct {
	client *sts.Client
}

// NewSDKSTSClient creates a new STS client using the provided AWS config
func NewSDKSTSClient(cfg aws.Config) *SDKSTSClient {
	return &SDKSTSClient{
		client: sts.NewFromConfig(cfg),
	}
}

func (c *SDKSTSClient) CallerIdentity(ctx context.Context) (*Identity, error) {
	result, err := c.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	return &Identity{
		Account: aws.ToString(result.Account),
		Arn:     aws.ToString(result.Arn),
		UserID:  aws.ToString(result.UserId),
	}, nil
}
