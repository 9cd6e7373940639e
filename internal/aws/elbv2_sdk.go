package aws

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// describeTagsBatch is the maximum number of ARNs accepted by DescribeTags
const describeTagsBatch = 20

// SDKELBClient implements ELBClient using AWS SDK v2
type SDKELBClient struct {
	client *elbv2.Client
}

// NewSDKELBClient creates a new Elastic Load Balancing v2 client using the provided AWS config
func NewSDKELBClient(cfg aws.Config) *SDKELBClient {
	return &SDKELBClient{
		client: elbv2.NewFromConfig(cfg),
	}
}

func (c *SDKELBClient) ListLoadBalancers(ctx context.Context) ([]LoadBalancer, error) {
	var lbs []LoadBalancer

	paginator := elbv2.NewDescribeLoadBalancersPaginator(c.client, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancers: %w", err)
		}
		for _, lb := range page.LoadBalancers {
			lbs = append(lbs, LoadBalancer{
				Arn:                   aws.ToString(lb.LoadBalancerArn),
				Name:                  aws.ToString(lb.LoadBalancerName),
				DNSName:               aws.ToString(lb.DNSName),
				CanonicalHostedZoneID: aws.ToString(lb.CanonicalHostedZoneId),
				Type:                  string(lb.Type),
			})
		}
	}

	return lbs, nil
}

func (c *SDKELBClient) DescribeTags(ctx context.Context, arns []string) (map[string]map[string]string, error) {
	tags := make(map[string]map[string]string, len(arns))

	for start := 0; start < len(arns); start += describeTagsBatch {
		end := min(start+describeTagsBatch, len(arns))

		result, err := c.client.DescribeTags(ctx, &elbv2.DescribeTagsInput{
			ResourceArns: arns[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancer tags: %w", err)
		}
		for _, desc := range result.TagDescriptions {
			m := make(map[string]string, len(desc.Tags))
			for _, t := range desc.Tags {
				m[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
			tags[aws.ToString(desc.ResourceArn)] = m
		}
	}

	return tags, nil
}

func (c *SDKELBClient) ListListeners(ctx context.Context, lbArn string) ([]Listener, error) {
	var listeners []Listener

	paginator := elbv2.NewDescribeListenersPaginator(c.client, &elbv2.DescribeListenersInput{
		LoadBalancerArn: aws.String(lbArn),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe listeners: %w", err)
		}
		for _, l := range page.Listeners {
			listener := Listener{
				Arn:      aws.ToString(l.ListenerArn),
				Protocol: string(l.Protocol),
				Port:     aws.ToInt32(l.Port),
			}
			// DescribeListeners only reports the default certificate
			if len(l.Certificates) > 0 {
				listener.CertificateArn = aws.ToString(l.Certificates[0].CertificateArn)
			}
			listeners = append(listeners, listener)
		}
	}

	return listeners, nil
}

func (c *SDKELBClient) ListTargetGroups(ctx context.Context, lbArn string) ([]TargetGroup, error) {
	var groups []TargetGroup

	paginator := elbv2.NewDescribeTargetGroupsPaginator(c.client, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(lbArn),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe target groups: %w", err)
		}
		for _, tg := range page.TargetGroups {
			groups = append(groups, TargetGroup{
				Arn:  aws.ToString(tg.TargetGroupArn),
				Name: aws.ToString(tg.TargetGroupName),
			})
		}
	}

	return groups, nil
}

func (c *SDKELBClient) RedirectListenerToHTTPS(ctx context.Context, listenerArn string, httpsPort int32) error {
	input := &elbv2.ModifyListenerInput{
		ListenerArn: aws.String(listenerArn),
		DefaultActions: []types.Action{
			{
				Type: types.ActionTypeEnumRedirect,
				RedirectConfig: &types.RedirectActionConfig{
					Protocol:   aws.String("HTTPS"),
					Port:       aws.String(strconv.Itoa(int(httpsPort))),
					StatusCode: types.RedirectActionStatusCodeEnumHttp301,
				},
			},
		},
	}

	if _, err := c.client.ModifyListener(ctx, input); err != nil {
		return fmt.Errorf("failed to modify listener %s: %w", listenerArn, err)
	}

	return nil
}

func (c *SDKELBClient) CreateHTTPSListener(ctx context.Context, listener HTTPSListener) (string, error) {
	input := &elbv2.CreateListenerInput{
		LoadBalancerArn: aws.String(listener.LoadBalancerArn),
		Protocol:        types.ProtocolEnumHttps,
		Port:            aws.Int32(listener.Port),
		Certificates: []types.Certificate{
			{CertificateArn: aws.String(listener.CertificateArn)},
		},
		DefaultActions: []types.Action{
			{
				Type:           types.ActionTypeEnumForward,
				TargetGroupArn: aws.String(listener.TargetGroupArn),
			},
		},
		Tags: elbTags(listener.Tags),
	}

	result, err := c.client.CreateListener(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTPS listener: %w", err)
	}
	if len(result.Listeners) == 0 {
		return "", fmt.Errorf("create listener returned no listener")
	}

	return aws.ToString(result.Listeners[0].ListenerArn), nil
}

func (c *SDKELBClient) SetDefaultCertificate(ctx context.Context, listenerArn, certificateArn string) error {
	input := &elbv2.ModifyListenerInput{
		ListenerArn: aws.String(listenerArn),
		Certificates: []types.Certificate{
			{CertificateArn: aws.String(certificateArn)},
		},
	}

	if _, err := c.client.ModifyListener(ctx, input); err != nil {
		return fmt.Errorf("failed to set certificate of listener %s: %w", listenerArn, err)
	}

	return nil
}

func elbTags(tags map[string]string) []types.Tag {
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
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}
