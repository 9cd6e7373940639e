package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

const (
	testEnv       = "prod-app"
	testDomain    = "example.com"
	testSubdomain = "app.example.com"
	testZoneID    = "Z0123456789EXAMPLE"
	testGroupID   = "sg-0123456789abcdef0"
	testLBArn     = "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/awseb-AWSEB-1ABC/0123456789abcdef"
	testLBDNSName = "awseb-AWSEB-1ABC-123456789.us-east-1.elb.amazonaws.com"
)

// fixture is an Elastic Beanstalk environment backed by mocks
type fixture struct {
	acm *aws.MockACMClient
	ec2 *aws.MockEC2Client
	elb *aws.MockELBClient
	r53 *aws.MockRoute53Client

	metrics  *Metrics
	certs    *CertificateProvisioner
	ingress  *NetworkSecurityEditor
	lbs      *LoadBalancerLocator
	dns      *DnsAliasManager
	setup    *SetupWorkflow
	teardown *TeardownWorkflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testr.New(t)

	acm := aws.NewMockACMClient()
	acm.IssueAfter = 1

	ec2 := aws.NewMockEC2Client(&aws.SecurityGroup{
		ID:   testGroupID,
		Name: "awseb-e-prod-app-stack-AWSEBLoadBalancerSecurityGroup",
		Tags: map[string]string{
			EnvironmentTagKey: testEnv,
			LogicalIDTagKey:   LoadBalancerSecurityGroupLogicalID,
		},
		Ingress: []aws.IngressRule{
			{Protocol: "tcp", FromPort: 80, ToPort: 80, CIDR: "0.0.0.0/0"},
		},
	})

	elb := aws.NewMockELBClient()
	elb.AddLoadBalancer(aws.LoadBalancer{
		Arn:                   testLBArn,
		Name:                  "awseb-AWSEB-1ABC",
		DNSName:               testLBDNSName,
		CanonicalHostedZoneID: "Z35SXDOTRQ7X7K",
		Type:                  "application",
	}, map[string]string{EnvironmentTagKey: testEnv})

	r53 := aws.NewMockRoute53Client(aws.HostedZone{ID: "/hostedzone/" + testZoneID, Name: testDomain + "."})

	f := &fixture{acm: acm, ec2: ec2, elb: elb, r53: r53, metrics: NewMetrics()}

	f.dns = &DnsAliasManager{Route53: r53, Ambiguity: FailOnAmbiguity, Log: log.WithName("dns")}
	f.certs = &CertificateProvisioner{
		ACM:               acm,
		Publisher:         f.dns,
		PollInterval:      time.Millisecond,
		ValidationTimeout: time.Second,
		Ambiguity:         FailOnAmbiguity,
		Metrics:           f.metrics,
		Log:               log.WithName("certificate"),
	}
	f.ingress = &NetworkSecurityEditor{EC2: ec2, Idempotent: true, Ambiguity: FailOnAmbiguity, Log: log.WithName("ingress")}
	f.lbs = &LoadBalancerLocator{ELB: elb, Ambiguity: FailOnAmbiguity, Log: log.WithName("loadbalancer")}

	f.setup = &SetupWorkflow{
		Certificates:  f.certs,
		Ingress:       f.ingress,
		LoadBalancers: f.lbs,
		Listeners:     &ListenerConfigurator{ELB: elb, Log: log.WithName("listener")},
		DNS:           f.dns,
		Metrics:       f.metrics,
		Log:           log.WithName("setup"),
	}
	f.teardown = &TeardownWorkflow{
		Certificates:  f.certs,
		LoadBalancers: f.lbs,
		DNS:           f.dns,
		Metrics:       f.metrics,
		Log:           log.WithName("teardown"),
	}
	return f
}

func (f *fixture) setupRequest() SetupRequest {
	return SetupRequest{Environment: testEnv, Domain: testDomain, Subdomain: testSubdomain}
}

func (f *fixture) aliasRecord(t *testing.T) *aws.DNSRecord {
	t.Helper()
	record, err := f.r53.GetRecord(t.Context(), testZoneID, testSubdomain, "A")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	return record
}

func httpsRuleCount(group *aws.SecurityGroup) int {
	n := 0
	for _, r := range group.Ingress {
		if r.Covers(HTTPSIngressRule()) {
			n++
		}
	}
	return n
}

type publisherFunc func(ctx context.Context, apexDomain string, records []aws.ValidationRecord) error

func (f publisherFunc) PublishValidationRecords(ctx context.Context, apexDomain string, records []aws.ValidationRecord) error {
	return f(ctx, apexDomain, records)
}
