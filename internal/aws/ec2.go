package aws

import (
	"context"
)

// EC2Client defines the security group operations used by the provisioner
type EC2Client interface {
	// FindSecurityGroups returns the security groups carrying all of the given tags
	FindSecurityGroups(ctx context.Context, tags map[string]string) ([]SecurityGroup, error)

	// AuthorizeIngress adds an inbound rule to a security group
	AuthorizeIngress(ctx context.Context, groupId string, rule IngressRule) error
}

// SecurityGroup represents an EC2 security group
type SecurityGroup struct {
	ID      string
	Name    string
	Tags    map[string]string
	Ingress []IngressRule
}

// IngressRule represents a single-CIDR inbound permission
type IngressRule struct {
	Protocol    string // tcp, udp, icmp, -1
	FromPort    int32
	ToPort      int32
	CIDR        string
	Description string
}

// Covers reports whether r already grants everything other grants.
// Descriptions are ignored.
func (r IngressRule) Covers(other IngressRule) bool {
	if r.CIDR != other.CIDR {
		return false
	}
	if r.Protocol == "-1" {
		return true
	}
	return r.Protocol == other.Protocol && r.FromPort <= other.FromPort && r.ToPort >= other.ToPort
}
