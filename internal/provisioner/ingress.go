package provisioner

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

// Tags Elastic Beanstalk and CloudFormation put on environment resources
const (
	EnvironmentTagKey = "elasticbeanstalk:environment-name"
	LogicalIDTagKey   = "aws:cloudformation:logical-id"

	// LoadBalancerSecurityGroupLogicalID is the CloudFormation logical ID of
	// the security group Elastic Beanstalk attaches to the load balancer
	LoadBalancerSecurityGroupLogicalID = "AWSEBLoadBalancerSecurityGroup"
)

// HTTPSIngressRule is TCP 443 from anywhere
func HTTPSIngressRule() aws.IngressRule {
	return aws.IngressRule{
		Protocol:    "tcp",
		FromPort:    443,
		ToPort:      443,
		CIDR:        "0.0.0.0/0",
		Description: "Allow HTTPS inbound",
	}
}

// NetworkSecurityEditor opens HTTPS on an environment's load balancer security group
type NetworkSecurityEditor struct {
	EC2 aws.EC2Client

	// Idempotent treats an already-present rule as success
	Idempotent bool
	Ambiguity  AmbiguityPolicy

	Log logr.Logger
}

// AuthorizeHTTPSIngress allows inbound TCP 443 from 0.0.0.0/0 on the load
// balancer security group of the environment and returns the group ID
func (e *NetworkSecurityEditor) AuthorizeHTTPSIngress(ctx context.Context, environment string) (string, error) {
	if environment == "" {
		return "", fmt.Errorf("%w: environment name is required", ErrInvalidArgument)
	}

	group, err := e.findLoadBalancerSecurityGroup(ctx, environment)
	if err != nil {
		return "", err
	}

	rule := HTTPSIngressRule()
	for _, existing := range group.Ingress {
		if existing.Covers(rule) {
			dup := &DuplicateRuleError{GroupID: group.ID, Rule: rule}
			if e.Idempotent {
				e.Log.Info("HTTPS ingress already allowed", "securityGroup", group.ID, "environment", environment)
				return group.ID, nil
			}
			e.Log.Error(dup, "HTTPS ingress already allowed", "securityGroup", group.ID)
			return "", dup
		}
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	if err := e.EC2.AuthorizeIngress(awsCtx, group.ID, rule); err != nil {
		if aws.IsDuplicatePermission(err) {
			dup := &DuplicateRuleError{GroupID: group.ID, Rule: rule, Err: err}
			if e.Idempotent {
				e.Log.Info("HTTPS ingress already allowed", "securityGroup", group.ID, "environment", environment)
				return group.ID, nil
			}
			e.Log.Error(dup, "HTTPS ingress already allowed", "securityGroup", group.ID)
			return "", dup
		}
		err = fmt.Errorf("failed to authorize HTTPS ingress on %s: %w", group.ID, err)
		e.Log.Error(err, "Failed to authorize ingress", "securityGroup", group.ID, "environment", environment)
		return "", err
	}

	e.Log.Info("Authorized HTTPS ingress", "securityGroup", group.ID, "environment", environment, "cidr", rule.CIDR)
	return group.ID, nil
}

func (e *NetworkSecurityEditor) findLoadBalancerSecurityGroup(ctx context.Context, environment string) (*aws.SecurityGroup, error) {
	tags := map[string]string{
		EnvironmentTagKey: environment,
		LogicalIDTagKey:   LoadBalancerSecurityGroupLogicalID,
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	groups, err := e.EC2.FindSecurityGroups(awsCtx, tags)
	if err != nil {
		err = fmt.Errorf("failed to find security group for environment %s: %w", environment, err)
		e.Log.Error(err, "Security group lookup failed", "environment", environment)
		return nil, err
	}

	lookup := Lookup[aws.SecurityGroup]{Kind: "security group", Key: environment, Candidates: groups}
	group, err := lookup.Resolve(e.Log, e.Ambiguity, func(g aws.SecurityGroup) string { return g.ID })
	if err != nil {
		e.Log.Error(err, "Load balancer security group not resolved", "environment", environment)
		return nil, err
	}
	return &group, nil
}
