package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when neither flags nor the shared config name a region
const DefaultRegion = "us-east-1"

// LoadConfig loads the AWS configuration with an optional profile and region override
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{}
	if profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config (profile %q): %w", profile, err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// Clients bundles the service clients the workflows need
type Clients struct {
	ACM     ACMClient
	EC2     EC2Client
	ELB     ELBClient
	Route53 Route53Client
	STS     STSClient
}

// NewSDKClients creates SDK-backed clients for every service from one AWS config
func NewSDKClients(cfg aws.Config) *Clients {
	return &Clients{
		ACM:     NewSDKACMClient(cfg),
		EC2:     NewSDKEC2Client(cfg),
		ELB:     NewSDKELBClient(cfg),
		Route53: NewSDKRoute53Client(cfg),
		STS:     NewSDKSTSClient(cfg),
	}
}
