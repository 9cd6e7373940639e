package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// SDKEC2Client implements EC2Client using AWS SDK v2
type SDKEC2Client struct {
	client *ec2.Client
}

// NewSDKEC2Client creates a new EC2 client using the provided AWS config
func NewSDKEC2Client(cfg aws.Config) *SDKEC2Client {
	return &SDKEC2Client{
		client: ec2.NewFromConfig(cfg),
	}
}

func (c *SDKEC2Client) FindSecurityGroups(ctx context.Context, tags map[string]string) ([]SecurityGroup, error) {
	input := &ec2.DescribeSecurityGroupsInput{
		Filters: tagFilters(tags),
	}

	var groups []SecurityGroup
	paginator := ec2.NewDescribeSecurityGroupsPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe security groups: %w", err)
		}
		for _, sg := range page.SecurityGroups {
			groups = append(groups, securityGroupFromSDK(sg))
		}
	}

	return groups, nil
}

func (c *SDKEC2Client) AuthorizeIngress(ctx context.Context, groupId string, rule IngressRule) error {
	input := &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(groupId),
		IpPermissions: []types.IpPermission{
			{
				IpProtocol: aws.String(rule.Protocol),
				FromPort:   aws.Int32(rule.FromPort),
				ToPort:     aws.Int32(rule.ToPort),
				IpRanges: []types.IpRange{
					{
						CidrIp:      aws.String(rule.CIDR),
						Description: aws.String(rule.Description),
					},
				},
			},
		},
	}

	result, err := c.client.AuthorizeSecurityGroupIngress(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to authorize ingress on %s: %w", groupId, err)
	}
	if result.Return != nil && !*result.Return {
		return fmt.Errorf("authorize ingress on %s was not accepted", groupId)
	}

	return nil
}

// tagFilters builds one tag:<key> filter per tag, ordered by key
func tagFilters(tags map[string]string) []types.Filter {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]types.Filter, 0, len(keys))
	for _, k := range keys {
		filters = append(filters, types.Filter{
			Name:   aws.String("tag:" + k),
			Values: []string{tags[k]},
		})
	}
	return filters
}

func securityGroupFromSDK(sg types.SecurityGroup) SecurityGroup {
	group := SecurityGroup{
		ID:   aws.ToString(sg.GroupId),
		Name: aws.ToString(sg.GroupName),
		Tags: make(map[string]string, len(sg.Tags)),
	}
	for _, t := range sg.Tags {
		group.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	for _, perm := range sg.IpPermissions {
		for _, r := range perm.IpRanges {
			group.Ingress = append(group.Ingress, IngressRule{
				Protocol:    aws.ToString(perm.IpProtocol),
				FromPort:    aws.ToInt32(perm.FromPort),
				ToPort:      aws.ToInt32(perm.ToPort),
				CIDR:        aws.ToString(r.CidrIp),
				Description: aws.ToString(r.Description),
			})
		}
	}
	return group
}
