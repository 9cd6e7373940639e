package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// MockACMClient is a mock implementation for testing
type MockACMClient struct {
	Certificates      map[string]*CertificateDetails
	ValidationRecords map[string][]ValidationRecord
	Tags              map[string]map[string]string

	// IssueAfter is the number of DescribeCertificate calls a certificate
	// stays PENDING_VALIDATION before it is ISSUED. Negative means never.
	IssueAfter int

	RequestErr  error
	DescribeErr error
	ListErr     error
	DeleteErr   error

	order         []string
	describeCalls map[string]int
	next          int
}

func NewMockACMClient() *MockACMClient {
	return &MockACMClient{
		Certificates:      make(map[string]*CertificateDetails),
		ValidationRecords: make(map[string][]ValidationRecord),
		Tags:              make(map[string]map[string]string),
		IssueAfter:        -1,
		describeCalls:     make(map[string]int),
	}
}

func (m *MockACMClient) RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error) {
	if m.RequestErr != nil {
		return "", m.RequestErr
	}
	m.next++
	arn := fmt.Sprintf("arn:aws:acm:us-east-1:123456789012:certificate/%04d", m.next)
	m.Certificates[arn] = &CertificateDetails{
		Arn:    arn,
		Domain: domain,
		Status: CertificateStatusPendingValidation,
	}
	m.ValidationRecords[arn] = []ValidationRecord{
		{
			Name:  fmt.Sprintf("_acm-validation.%s.", strings.TrimPrefix(domain, "*.")),
			Type:  "CNAME",
			Value: "_validation-value.acm-validations.aws.",
		},
	}
	m.Tags[arn] = tags
	m.order = append(m.order, arn)
	return arn, nil
}

func (m *MockACMClient) DescribeCertificate(ctx context.Context, certArn string) (*CertificateDetails, error) {
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	cert, ok := m.Certificates[certArn]
	if !ok {
		return nil, fmt.Errorf("certificate not found: %s", certArn)
	}
	if cert.Status == CertificateStatusPendingValidation && m.IssueAfter >= 0 {
		if m.describeCalls[certArn] >= m.IssueAfter {
			cert.Status = CertificateStatusIssued
		}
		m.describeCalls[certArn]++
	}
	out := *cert
	return &out, nil
}

func (m *MockACMClient) ListCertificates(ctx context.Context) ([]CertificateDetails, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var certs []CertificateDetails
	for _, arn := range m.order {
		if cert, ok := m.Certificates[arn]; ok {
			certs = append(certs, *cert)
		}
	}
	return certs, nil
}

func (m *MockACMClient) DeleteCertificate(ctx context.Context, certArn string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.Certificates[certArn]; !ok {
		return &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "certificate not found: " + certArn}
	}
	delete(m.Certificates, certArn)
	delete(m.ValidationRecords, certArn)
	return nil
}

func (m *MockACMClient) GetValidationRecords(ctx context.Context, certArn string) ([]ValidationRecord, error) {
	records, ok := m.ValidationRecords[certArn]
	if !ok {
		return nil, fmt.Errorf("certificate not found: %s", certArn)
	}
	return records, nil
}

// SetStatus forces the status of a certificate
func (m *MockACMClient) SetStatus(certArn, status string) {
	if cert, ok := m.Certificates[certArn]; ok {
		cert.Status = status
	}
}

// RecordChange is a change accepted by MockRoute53Client
type RecordChange struct {
	ZoneID string
	Action ChangeAction
	Record DNSRecord
}

// MockRoute53Client is a mock implementation for testing.
// It rejects changes the way Route53 does: CREATE of an existing record and
// DELETE of a missing or different record fail with InvalidChangeBatch.
type MockRoute53Client struct {
	Zones   []HostedZone
	Records map[string]DNSRecord // key: zoneId:name:type
	Changes []RecordChange

	FindErr   error
	ChangeErr error
	GetErr    error
}

func NewMockRoute53Client(zones ...HostedZone) *MockRoute53Client {
	return &MockRoute53Client{
		Zones:   zones,
		Records: make(map[string]DNSRecord),
	}
}

func recordKey(zoneId, name, recordType string) string {
	return fmt.Sprintf("%s:%s:%s", NormalizeZoneId(zoneId), strings.ToLower(strings.TrimSuffix(name, ".")), recordType)
}

func (m *MockRoute53Client) FindHostedZonesByName(ctx context.Context, domain string) ([]HostedZone, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var zones []HostedZone
	for _, z := range m.Zones {
		if SameName(z.Name, domain) {
			zones = append(zones, z)
		}
	}
	return zones, nil
}

func (m *MockRoute53Client) ChangeRecord(ctx context.Context, zoneId string, action ChangeAction, record DNSRecord) error {
	if m.ChangeErr != nil {
		return m.ChangeErr
	}
	key := recordKey(zoneId, record.Name, record.Type)
	existing, exists := m.Records[key]

	switch action {
	case ChangeActionCreate:
		if exists {
			return invalidChangeBatch(fmt.Sprintf("Tried to create resource record set [name='%s.', type='%s'] but it already exists", strings.TrimSuffix(record.Name, "."), record.Type))
		}
		m.Records[key] = record
	case ChangeActionDelete:
		if !exists {
			return invalidChangeBatch(fmt.Sprintf("Tried to delete resource record set [name='%s.', type='%s'] but it was not found", strings.TrimSuffix(record.Name, "."), record.Type))
		}
		if !sameRecordData(existing, record) {
			return invalidChangeBatch(fmt.Sprintf("Tried to delete resource record set [name='%s.', type='%s'] but the values provided do not match the current values", strings.TrimSuffix(record.Name, "."), record.Type))
		}
		delete(m.Records, key)
	case ChangeActionUpsert:
		m.Records[key] = record
	default:
		return &smithy.GenericAPIError{Code: "InvalidInput", Message: "unknown action " + string(action)}
	}

	m.Changes = append(m.Changes, RecordChange{ZoneID: zoneId, Action: action, Record: record})
	return nil
}

func (m *MockRoute53Client) GetRecord(ctx context.Context, zoneId string, name, recordType string) (*DNSRecord, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	record, ok := m.Records[recordKey(zoneId, name, recordType)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func sameRecordData(a, b DNSRecord) bool {
	if (a.AliasTarget == nil) != (b.AliasTarget == nil) {
		return false
	}
	if a.AliasTarget != nil {
		return SameName(a.AliasTarget.DNSName, b.AliasTarget.DNSName) &&
			a.AliasTarget.HostedZoneID == b.AliasTarget.HostedZoneID &&
			a.AliasTarget.EvaluateTargetHealth == b.AliasTarget.EvaluateTargetHealth
	}
	return a.Value == b.Value && a.TTL == b.TTL
}

func invalidChangeBatch(msg string) error {
	return &smithy.GenericAPIError{Code: CodeInvalidChangeBatch, Message: msg}
}

// MockEC2Client is a mock implementation for testing
type MockEC2Client struct {
	Groups         []*SecurityGroup
	AuthorizeCalls int

	FindErr      error
	AuthorizeErr error
}

func NewMockEC2Client(groups ...*SecurityGroup) *MockEC2Client {
	return &MockEC2Client{Groups: groups}
}

func (m *MockEC2Client) FindSecurityGroups(ctx context.Context, tags map[string]string) ([]SecurityGroup, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var groups []SecurityGroup
	for _, g := range m.Groups {
		if hasTags(g.Tags, tags) {
			out := *g
			out.Ingress = append([]IngressRule(nil), g.Ingress...)
			groups = append(groups, out)
		}
	}
	return groups, nil
}

func (m *MockEC2Client) AuthorizeIngress(ctx context.Context, groupId string, rule IngressRule) error {
	m.AuthorizeCalls++
	if m.AuthorizeErr != nil {
		return m.AuthorizeErr
	}
	for _, g := range m.Groups {
		if g.ID != groupId {
			continue
		}
		for _, existing := range g.Ingress {
			if existing.Covers(rule) {
				return &smithy.GenericAPIError{
					Code:    CodeDuplicatePermission,
					Message: fmt.Sprintf("the specified rule \"peer: %s, %s, from port: %d, to port: %d, ALLOW\" already exists", rule.CIDR, strings.ToUpper(rule.Protocol), rule.FromPort, rule.ToPort),
				}
			}
		}
		g.Ingress = append(g.Ingress, rule)
		return nil
	}
	return &smithy.GenericAPIError{Code: "InvalidGroup.NotFound", Message: fmt.Sprintf("the security group '%s' does not exist", groupId)}
}

func hasTags(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// MockELBClient is a mock implementation for testing
type MockELBClient struct {
	LoadBalancers []LoadBalancer
	Tags          map[string]map[string]string
	Listeners     map[string][]Listener
	TargetGroups  map[string][]TargetGroup
	Redirects     map[string]int32 // listener ARN -> HTTPS port
	Created       []HTTPSListener

	ListErr        error
	TagsErr        error
	CreateErr      error
	CertificateErr error
}

func NewMockELBClient() *MockELBClient {
	return &MockELBClient{
		Tags:         make(map[string]map[string]string),
		Listeners:    make(map[string][]Listener),
		TargetGroups: make(map[string][]TargetGroup),
		Redirects:    make(map[string]int32),
	}
}

// AddLoadBalancer registers a load balancer with its tags, an HTTP:80
// listener and a default target group
func (m *MockELBClient) AddLoadBalancer(lb LoadBalancer, tags map[string]string) {
	m.LoadBalancers = append(m.LoadBalancers, lb)
	m.Tags[lb.Arn] = tags
	m.Listeners[lb.Arn] = []Listener{
		{Arn: lb.Arn + "/listener/http", Protocol: "HTTP", Port: 80},
	}
	m.TargetGroups[lb.Arn] = []TargetGroup{
		{Arn: lb.Arn + "/targetgroup/default", Name: "default"},
	}
}

func (m *MockELBClient) ListLoadBalancers(ctx context.Context) ([]LoadBalancer, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]LoadBalancer(nil), m.LoadBalancers...), nil
}

func (m *MockELBClient) DescribeTags(ctx context.Context, arns []string) (map[string]map[string]string, error) {
	if m.TagsErr != nil {
		return nil, m.TagsErr
	}
	out := make(map[string]map[string]string, len(arns))
	for _, arn := range arns {
		out[arn] = m.Tags[arn]
	}
	return out, nil
}

func (m *MockELBClient) ListListeners(ctx context.Context, lbArn string) ([]Listener, error) {
	return append([]Listener(nil), m.Listeners[lbArn]...), nil
}

func (m *MockELBClient) ListTargetGroups(ctx context.Context, lbArn string) ([]TargetGroup, error) {
	return append([]TargetGroup(nil), m.TargetGroups[lbArn]...), nil
}

func (m *MockELBClient) RedirectListenerToHTTPS(ctx context.Context, listenerArn string, httpsPort int32) error {
	m.Redirects[listenerArn] = httpsPort
	return nil
}

func (m *MockELBClient) CreateHTTPSListener(ctx context.Context, listener HTTPSListener) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	for _, l := range m.Listeners[listener.LoadBalancerArn] {
		if l.Port == listener.Port {
			return "", &smithy.GenericAPIError{Code: "DuplicateListener", Message: "a listener already exists on this port for this load balancer"}
		}
	}
	arn := fmt.Sprintf("%s/listener/https-%d", listener.LoadBalancerArn, listener.Port)
	m.Listeners[listener.LoadBalancerArn] = append(m.Listeners[listener.LoadBalancerArn], Listener{
		Arn:            arn,
		Protocol:       "HTTPS",
		Port:           listener.Port,
		CertificateArn: listener.CertificateArn,
	})
	m.Created = append(m.Created, listener)
	return arn, nil
}

func (m *MockELBClient) SetDefaultCertificate(ctx context.Context, listenerArn, certificateArn string) error {
	if m.CertificateErr != nil {
		return m.CertificateErr
	}
	for _, listeners := range m.Listeners {
		for i := range listeners {
			if listeners[i].Arn != listenerArn {
				continue
			}
			if !strings.EqualFold(listeners[i].Protocol, "HTTPS") {
				return &smithy.GenericAPIError{Code: "ValidationError", Message: "certificates can only be set on HTTPS listeners"}
			}
			listeners[i].CertificateArn = certificateArn
			return nil
		}
	}
	return &smithy.GenericAPIError{Code: "ListenerNotFound", Message: "listener " + listenerArn + " not found"}
}

// MockSTSClient is a mock implementation for testing
type MockSTSClient struct {
	Identity *Identity
	Err      error
}

func (m *MockSTSClient) CallerIdentity(ctx context.Context) (*Identity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Identity == nil {
		return &Identity{Account: "123456789012", Arn: "arn:aws:iam::123456789012:user/test", UserID: "AIDTEST"}, nil
	}
	return m.Identity, nil
}

// NewMockClients bundles fresh mocks for every service
func NewMockClients() (*Clients, *MockACMClient, *MockEC2Client, *MockELBClient, *MockRoute53Client) {
	acm := NewMockACMClient()
	ec2 := NewMockEC2Client()
	elb := NewMockELBClient()
	r53 := NewMockRoute53Client()
	return &Clients{ACM: acm, EC2: ec2, ELB: elb, Route53: r53, STS: &MockSTSClient{}}, acm, ec2, elb, r53
}
