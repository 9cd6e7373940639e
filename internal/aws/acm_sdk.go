package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
)

// SDKACMClient implements ACMClient using AWS SDK v2
type SDKACMClient struct {
	client *acm.Client
}

// NewSDKACMClient creates a new ACM client using the provided AWS config
func NewSDKACMClient(cfg aws.Config) *SDKACMClient {
	return &SDKACMClient{
		client: acm.NewFromConfig(cfg),
	}
}

func (c *SDKACMClient) RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error) {
	input := &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: types.ValidationMethodDns,
		Tags:             acmTags(tags),
	}

	result, err := c.client.RequestCertificate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to request certificate: %w", err)
	}

	return aws.ToString(result.CertificateArn), nil
}

func (c *SDKACMClient) DescribeCertificate(ctx context.Context, arn string) (*CertificateDetails, error) {
	result, err := c.client.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe certificate: %w", err)
	}

	return &CertificateDetails{
		Arn:    arn,
		Domain: aws.ToString(result.Certificate.DomainName),
		Status: string(result.Certificate.Status),
	}, nil
}

func (c *SDKACMClient) ListCertificates(ctx context.Context) ([]CertificateDetails, error) {
	var certs []CertificateDetails

	paginator := acm.NewListCertificatesPaginator(c.client, &acm.ListCertificatesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list certificates: %w", err)
		}
		for _, summary := range page.CertificateSummaryList {
			certs = append(certs, CertificateDetails{
				Arn:    aws.ToString(summary.CertificateArn),
				Domain: aws.ToString(summary.DomainName),
				Status: string(summary.Status),
			})
		}
	}

	return certs, nil
}

func (c *SDKACMClient) DeleteCertificate(ctx context.Context, arn string) error {
	_, err := c.client.DeleteCertificate(ctx, &acm.DeleteCertificateInput{
		CertificateArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	return nil
}

func (c *SDKACMClient) GetValidationRecords(ctx context.Context, arn string) ([]ValidationRecord, error) {
	result, err := c.client.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe certificate: %w", err)
	}

	var records []ValidationRecord
	for _, dvo := range result.Certificate.DomainValidationOptions {
		if dvo.ResourceRecord != nil {
			records = append(records, ValidationRecord{
				Name:  aws.ToString(dvo.ResourceRecord.Name),
				Type:  string(dvo.ResourceRecord.Type),
				Value: aws.ToString(dvo.ResourceRecord.Value),
			})
		}
	}

	return records, nil
}

// acmTags converts a tag map to ACM tags, ordered by key
func acmTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return out
}
