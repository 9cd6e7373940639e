package provisioner

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

// LoadBalancerIdentity is the read-only identity of a load balancer
type LoadBalancerIdentity struct {
	Arn                   string
	DNSName               string
	CanonicalHostedZoneID string
}

// AliasTarget returns the Route53 alias target for the load balancer
func (lb *LoadBalancerIdentity) AliasTarget() aws.AliasTarget {
	return aws.AliasTarget{
		DNSName:              lb.DNSName,
		HostedZoneID:         lb.CanonicalHostedZoneID,
		EvaluateTargetHealth: true,
	}
}

// LoadBalancerLocator finds the load balancer of an Elastic Beanstalk environment
type LoadBalancerLocator struct {
	ELB       aws.ELBClient
	Ambiguity AmbiguityPolicy
	Log       logr.Logger
}

// FindByEnvironmentTag returns the load balancer tagged with the environment name
func (l *LoadBalancerLocator) FindByEnvironmentTag(ctx context.Context, environment string) (*LoadBalancerIdentity, error) {
	if environment == "" {
		return nil, fmt.Errorf("%w: environment name is required", ErrInvalidArgument)
	}

	lbs, err := l.listLoadBalancers(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list load balancers: %w", err)
		l.Log.Error(err, "Load balancer lookup failed", "environment", environment)
		return nil, err
	}

	lookup := Lookup[aws.LoadBalancer]{Kind: "load balancer", Key: environment}
	if len(lbs) > 0 {
		arns := make([]string, 0, len(lbs))
		for _, lb := range lbs {
			arns = append(arns, lb.Arn)
		}

		tags, err := l.describeTags(ctx, arns)
		if err != nil {
			err = fmt.Errorf("failed to describe load balancer tags: %w", err)
			l.Log.Error(err, "Load balancer lookup failed", "environment", environment)
			return nil, err
		}

		for _, lb := range lbs {
			if tags[lb.Arn][EnvironmentTagKey] == environment {
				lookup.Candidates = append(lookup.Candidates, lb)
			}
		}
	}

	lb, err := lookup.Resolve(l.Log, l.Ambiguity, func(lb aws.LoadBalancer) string { return lb.Arn })
	if err != nil {
		l.Log.Error(err, "Load balancer not resolved", "environment", environment)
		return nil, err
	}

	identity := &LoadBalancerIdentity{
		Arn:                   lb.Arn,
		DNSName:               lb.DNSName,
		CanonicalHostedZoneID: lb.CanonicalHostedZoneID,
	}
	if identity.CanonicalHostedZoneID == "" {
		zoneID, err := aws.CanonicalHostedZoneID(lb.DNSName)
		if err != nil {
			err = fmt.Errorf("load balancer %s has no canonical hosted zone: %w", lb.Arn, err)
			l.Log.Error(err, "Cannot derive canonical hosted zone", "dnsName", lb.DNSName)
			return nil, err
		}
		identity.CanonicalHostedZoneID = zoneID
	}

	l.Log.Info("Found load balancer", "environment", environment, "arn", identity.Arn, "dnsName", identity.DNSName)
	return identity, nil
}

func (l *LoadBalancerLocator) listLoadBalancers(ctx context.Context) ([]aws.LoadBalancer, error) {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()
	return l.ELB.ListLoadBalancers(awsCtx)
}

func (l *LoadBalancerLocator) describeTags(ctx context.Context, arns []string) (map[string]map[string]string, error) {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()
	return l.ELB.DescribeTags(awsCtx, arns)
}
