package aws

import (
	"context"
)

// ACMClient defines the certificate authority operations used by the provisioner
type ACMClient interface {
	// RequestCertificate requests a new DNS-validated certificate for the given domain
	RequestCertificate(ctx context.Context, domain string, tags map[string]string) (certArn string, err error)

	// DescribeCertificate gets the current status and details of a certificate
	DescribeCertificate(ctx context.Context, certArn string) (*CertificateDetails, error)

	// ListCertificates returns every certificate known to the account, in listing order
	ListCertificates(ctx context.Context) ([]CertificateDetails, error)

	// DeleteCertificate deletes an ACM certificate
	DeleteCertificate(ctx context.Context, certArn string) error

	// GetValidationRecords returns the DNS records needed for certificate validation.
	// The list is empty until ACM has generated the records.
	GetValidationRecords(ctx context.Context, certArn string) ([]ValidationRecord, error)
}

// ACM certificate statuses
const (
	CertificateStatusPendingValidation  = "PENDING_VALIDATION"
	CertificateStatusIssued             = "ISSUED"
	CertificateStatusFailed             = "FAILED"
	CertificateStatusValidationTimedOut = "VALIDATION_TIMED_OUT"
	CertificateStatusRevoked            = "REVOKED"
	CertificateStatusExpired            = "EXPIRED"
	CertificateStatusInactive           = "INACTIVE"
)

// CertificateDetails represents ACM certificate information
type CertificateDetails struct {
	Arn    string
	Domain string
	Status string
}

// ValidationRecord represents a DNS validation record for ACM
type ValidationRecord struct {
	Name  string
	Type  string // CNAME
	Value string
}
