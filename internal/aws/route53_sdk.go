package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

const changeComment = "Managed by awseb-https"

// SDKRoute53Client implements Route53Client using AWS SDK v2
type SDKRoute53Client struct {
	client *route53.Client
}

// NewSDKRoute53Client creates a new Route53 client using the provided AWS config
func NewSDKRoute53Client(cfg aws.Config) *SDKRoute53Client {
	return &SDKRoute53Client{
		client: route53.NewFromConfig(cfg),
	}
}

func (c *SDKRoute53Client) FindHostedZonesByName(ctx context.Context, domain string) ([]HostedZone, error) {
	var zones []HostedZone

	input := &route53.ListHostedZonesByNameInput{
		DNSName: aws.String(domain),
	}
	for {
		result, err := c.client.ListHostedZonesByName(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list hosted zones: %w", err)
		}

		// Zones are returned in name order starting at domain, so the
		// first non-matching name ends the search.
		for _, hz := range result.HostedZones {
			if !SameName(aws.ToString(hz.Name), domain) {
				return zones, nil
			}
			zone := HostedZone{
				ID:   NormalizeZoneId(aws.ToString(hz.Id)),
				Name: aws.ToString(hz.Name),
			}
			if hz.Config != nil {
				zone.Private = hz.Config.PrivateZone
			}
			zones = append(zones, zone)
		}

		if !result.IsTruncated {
			return zones, nil
		}
		input.DNSName = result.NextDNSName
		input.HostedZoneId = result.NextHostedZoneId
	}
}

func (c *SDKRoute53Client) ChangeRecord(ctx context.Context, zoneId string, action ChangeAction, record DNSRecord) error {
	rrs := &types.ResourceRecordSet{
		Name: aws.String(record.Name),
		Type: types.RRType(record.Type),
	}

	// ALIAS records carry neither TTL nor resource records
	if record.AliasTarget != nil {
		rrs.AliasTarget = &types.AliasTarget{
			DNSName:              aws.String(record.AliasTarget.DNSName),
			HostedZoneId:         aws.String(record.AliasTarget.HostedZoneID),
			EvaluateTargetHealth: record.AliasTarget.EvaluateTargetHealth,
		}
	} else {
		rrs.TTL = aws.Int64(record.TTL)
		rrs.ResourceRecords = []types.ResourceRecord{
			{Value: aws.String(record.Value)},
		}
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(NormalizeZoneId(zoneId)),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String(changeComment),
			Changes: []types.Change{
				{
					Action:            types.ChangeAction(action),
					ResourceRecordSet: rrs,
				},
			},
		},
	}

	_, err := c.client.ChangeResourceRecordSets(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to %s record %s: %w", action, record.Name, err)
	}

	return nil
}

func (c *SDKRoute53Client) GetRecord(ctx context.Context, zoneId, name, recordType string) (*DNSRecord, error) {
	input := &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(NormalizeZoneId(zoneId)),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(recordType),
		MaxItems:        aws.Int32(1),
	}

	result, err := c.client.ListResourceRecordSets(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	for _, rrs := range result.ResourceRecordSets {
		// Route53 returns names with trailing dot
		if !SameName(aws.ToString(rrs.Name), name) || string(rrs.Type) != recordType {
			continue
		}

		record := &DNSRecord{
			Name: aws.ToString(rrs.Name),
			Type: string(rrs.Type),
			TTL:  aws.ToInt64(rrs.TTL),
		}
		if rrs.AliasTarget != nil {
			record.AliasTarget = &AliasTarget{
				DNSName:              aws.ToString(rrs.AliasTarget.DNSName),
				HostedZoneID:         aws.ToString(rrs.AliasTarget.HostedZoneId),
				EvaluateTargetHealth: rrs.AliasTarget.EvaluateTargetHealth,
			}
		} else if len(rrs.ResourceRecords) > 0 {
			record.Value = aws.ToString(rrs.ResourceRecords[0].Value)
		}
		return record, nil
	}

	return nil, nil // Not found
}
