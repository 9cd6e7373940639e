package aws

import (
	"context"
)

// ELBClient defines the load balancer operations used by the provisioner
type ELBClient interface {
	// ListLoadBalancers returns every load balancer in the region
	ListLoadBalancers(ctx context.Context) ([]LoadBalancer, error)

	// DescribeTags returns the tags of each load balancer, keyed by ARN
	DescribeTags(ctx context.Context, arns []string) (map[string]map[string]string, error)

	// ListListeners returns the listeners of a load balancer
	ListListeners(ctx context.Context, lbArn string) ([]Listener, error)

	// ListTargetGroups returns the target groups attached to a load balancer
	ListTargetGroups(ctx context.Context, lbArn string) ([]TargetGroup, error)

	// RedirectListenerToHTTPS replaces a listener's default action with a
	// permanent redirect to HTTPS on the given port
	RedirectListenerToHTTPS(ctx context.Context, listenerArn string, httpsPort int32) error

	// CreateHTTPSListener creates an HTTPS listener forwarding to a target group
	CreateHTTPSListener(ctx context.Context, listener HTTPSListener) (listenerArn string, err error)

	// SetDefaultCertificate replaces the default certificate of an HTTPS listener
	SetDefaultCertificate(ctx context.Context, listenerArn, certificateArn string) error
}

// LoadBalancer represents an Elastic Load Balancing v2 load balancer
type LoadBalancer struct {
	Arn                   string
	Name                  string
	DNSName               string
	CanonicalHostedZoneID string
	Type                  string // application, network, gateway
}

// Listener represents a load balancer listener
type Listener struct {
	Arn      string
	Protocol string
	Port     int32

	// CertificateArn is the default certificate of an HTTPS listener
	CertificateArn string
}

// TargetGroup represents a load balancer target group
type TargetGroup struct {
	Arn  string
	Name string
}

// HTTPSListener describes an HTTPS listener to create
type HTTPSListener struct {
	LoadBalancerArn string
	TargetGroupArn  string
	CertificateArn  string
	Port            int32
	Tags            map[string]string
}
