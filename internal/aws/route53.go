package aws

import (
	"context"
	"strings"
)

// Route53Client defines the DNS zone operations used by the provisioner
type Route53Client interface {
	// FindHostedZonesByName returns every hosted zone whose name is exactly domain
	FindHostedZonesByName(ctx context.Context, domain string) ([]HostedZone, error)

	// ChangeRecord submits a single resource record set change
	ChangeRecord(ctx context.Context, zoneId string, action ChangeAction, record DNSRecord) error

	// GetRecord retrieves a DNS record, or nil if it does not exist
	GetRecord(ctx context.Context, zoneId string, name, recordType string) (*DNSRecord, error)
}

// ChangeAction is a Route53 change batch action
type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "CREATE"
	ChangeActionDelete ChangeAction = "DELETE"
	ChangeActionUpsert ChangeAction = "UPSERT"
)

// HostedZone represents a Route53 hosted zone
type HostedZone struct {
	ID      string
	Name    string
	Private bool
}

// DNSRecord represents a Route53 DNS record
type DNSRecord struct {
	Name string
	Type string // A, CNAME

	// For ALIAS records (pointing to the load balancer)
	AliasTarget *AliasTarget

	// For CNAME records (ACM validation)
	Value string
	TTL   int64
}

// AliasTarget represents Route53 ALIAS record target
type AliasTarget struct {
	DNSName              string
	HostedZoneID         string // The canonical hosted zone ID of the load balancer
	EvaluateTargetHealth bool
}

// NormalizeZoneId strips the /hostedzone/ prefix Route53 puts on zone IDs
func NormalizeZoneId(zoneId string) string {
	return strings.TrimPrefix(zoneId, "/hostedzone/")
}

// SameName compares DNS names ignoring case and the trailing dot
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}
