package provisioner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

const (
	// AWSCallTimeout is the default timeout for a single AWS API call
	AWSCallTimeout = 30 * time.Second

	// DefaultPollInterval and DefaultValidationTimeout match the ACM
	// certificate_validated waiter: 40 checks, 15 seconds apart.
	DefaultPollInterval      = 15 * time.Second
	DefaultValidationTimeout = 10 * time.Minute
)

// CertificateState is the validation state of a certificate
type CertificateState string

const (
	CertificatePending   CertificateState = "PENDING"
	CertificateValidated CertificateState = "VALIDATED"
	CertificateFailed    CertificateState = "FAILED"
)

// Certificate is a certificate returned by the provisioner
type Certificate struct {
	Arn    string
	Domain string
	State  CertificateState
}

// certificateState maps an ACM status onto a validation state
func certificateState(status string) CertificateState {
	switch status {
	case aws.CertificateStatusIssued:
		return CertificateValidated
	case aws.CertificateStatusFailed, aws.CertificateStatusValidationTimedOut,
		aws.CertificateStatusRevoked, aws.CertificateStatusExpired, aws.CertificateStatusInactive:
		return CertificateFailed
	default:
		return CertificatePending
	}
}

// WildcardDomain returns *.apex for an apex domain
func WildcardDomain(apexDomain string) string {
	return "*." + strings.TrimSuffix(apexDomain, ".")
}

// ValidationPublisher writes ACM validation records into DNS
type ValidationPublisher interface {
	PublishValidationRecords(ctx context.Context, apexDomain string, records []aws.ValidationRecord) error
}

// CertificateProvisioner requests wildcard certificates and waits for them to validate
type CertificateProvisioner struct {
	ACM aws.ACMClient

	// Publisher, if set, receives the DNS validation records of every
	// requested certificate
	Publisher ValidationPublisher

	PollInterval      time.Duration
	ValidationTimeout time.Duration
	Ambiguity         AmbiguityPolicy

	Metrics *Metrics
	Log     logr.Logger
}

func (p *CertificateProvisioner) pollInterval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return DefaultPollInterval
}

func (p *CertificateProvisioner) validationTimeout() time.Duration {
	if p.ValidationTimeout > 0 {
		return p.ValidationTimeout
	}
	return DefaultValidationTimeout
}

// RequestAndValidate requests a certificate for *.apexDomain and blocks until
// it is validated. The returned certificate is always VALIDATED.
func (p *CertificateProvisioner) RequestAndValidate(ctx context.Context, apexDomain string, tags map[string]string) (*Certificate, error) {
	arn, err := p.Request(ctx, apexDomain, tags)
	if err != nil {
		return nil, err
	}
	return p.WaitValidated(ctx, apexDomain, arn)
}

// Request requests a DNS-validated certificate for *.apexDomain and returns its ARN
func (p *CertificateProvisioner) Request(ctx context.Context, apexDomain string, tags map[string]string) (string, error) {
	if strings.TrimSuffix(apexDomain, ".") == "" {
		return "", fmt.Errorf("%w: apex domain is required", ErrInvalidArgument)
	}
	domain := WildcardDomain(apexDomain)

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	arn, err := p.ACM.RequestCertificate(awsCtx, domain, tags)
	if err != nil {
		err = &AuthorityError{Op: "request", Target: domain, Err: err}
		p.Log.Error(err, "Failed to request certificate", "domain", domain)
		return "", err
	}

	p.Log.Info("Requested certificate", "domain", domain, "arn", arn)
	return arn, nil
}

// WaitValidated polls the certificate until it is validated, fails, or the
// validation timeout elapses. Cancelling ctx stops the wait.
func (p *CertificateProvisioner) WaitValidated(ctx context.Context, apexDomain, arn string) (*Certificate, error) {
	domain := WildcardDomain(apexDomain)
	started := time.Now()
	timeout := p.validationTimeout()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.Publisher != nil {
		if err := p.publishValidationRecords(waitCtx, apexDomain, arn); err != nil {
			return nil, p.waitError(ctx, waitCtx, err, arn, domain, timeout)
		}
	}

	p.Log.Info("Waiting for certificate to be validated", "arn", arn, "timeout", timeout)

	var cert *Certificate
	err := wait.PollUntilContextCancel(waitCtx, p.pollInterval(), true, func(ctx context.Context) (bool, error) {
		awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
		defer cancel()

		details, err := p.ACM.DescribeCertificate(awsCtx, arn)
		if err != nil {
			return false, &AuthorityError{Op: "describe", Target: arn, Err: err}
		}

		switch certificateState(details.Status) {
		case CertificateValidated:
			cert = &Certificate{Arn: arn, Domain: details.Domain, State: CertificateValidated}
			return true, nil
		case CertificateFailed:
			return false, &AuthorityError{Op: "validate", Target: arn, Err: fmt.Errorf("certificate in failed state: %s", details.Status)}
		default:
			p.Log.V(1).Info("Certificate not yet validated", "arn", arn, "status", details.Status)
			return false, nil
		}
	})
	if err != nil {
		return nil, p.waitError(ctx, waitCtx, err, arn, domain, timeout)
	}

	p.Metrics.observeValidation(time.Since(started))
	p.Log.Info("Certificate validated", "arn", arn, "domain", cert.Domain, "elapsed", time.Since(started).Round(time.Second))
	return cert, nil
}

// waitError classifies a failure inside the validation wait
func (p *CertificateProvisioner) waitError(ctx, waitCtx context.Context, err error, arn, domain string, timeout time.Duration) error {
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("waiting for certificate %s: %w", arn, ctx.Err())
		p.Log.Error(err, "Certificate wait cancelled", "arn", arn)
	case waitCtx.Err() != nil:
		err = &ValidationTimeoutError{Arn: arn, Domain: domain, Timeout: timeout}
		p.Log.Error(err, "Certificate validation timed out, certificate left in place", "arn", arn)
	default:
		p.Log.Error(err, "Certificate validation failed", "arn", arn)
	}
	return err
}

// publishValidationRecords waits for ACM to generate the validation records
// and hands them to the publisher
func (p *CertificateProvisioner) publishValidationRecords(ctx context.Context, apexDomain, arn string) error {
	var records []aws.ValidationRecord
	err := wait.PollUntilContextCancel(ctx, p.pollInterval(), true, func(ctx context.Context) (bool, error) {
		awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
		defer cancel()

		var err error
		records, err = p.ACM.GetValidationRecords(awsCtx, arn)
		if err != nil {
			return false, &AuthorityError{Op: "describe", Target: arn, Err: err}
		}
		return len(records) > 0, nil
	})
	if err != nil {
		return err
	}

	p.Log.Info("Retrieved validation records from ACM", "count", len(records), "arn", arn)
	return p.Publisher.PublishValidationRecords(ctx, apexDomain, records)
}

// FindByDomain returns the ARN of the certificate issued for *.apexDomain
func (p *CertificateProvisioner) FindByDomain(ctx context.Context, apexDomain string) (string, error) {
	if strings.TrimSuffix(apexDomain, ".") == "" {
		return "", fmt.Errorf("%w: apex domain is required", ErrInvalidArgument)
	}
	domain := WildcardDomain(apexDomain)

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	certs, err := p.ACM.ListCertificates(awsCtx)
	if err != nil {
		err = &AuthorityError{Op: "list", Target: domain, Err: err}
		p.Log.Error(err, "Failed to list certificates")
		return "", err
	}

	lookup := Lookup[aws.CertificateDetails]{Kind: "certificate", Key: domain}
	for _, cert := range certs {
		if cert.Domain == domain {
			lookup.Candidates = append(lookup.Candidates, cert)
		}
	}

	cert, err := lookup.Resolve(p.Log, p.Ambiguity, func(c aws.CertificateDetails) string { return c.Arn })
	if err != nil {
		return "", err
	}
	p.Log.Info("Found certificate", "domain", domain, "arn", cert.Arn)
	return cert.Arn, nil
}

// Delete deletes a certificate
func (p *CertificateProvisioner) Delete(ctx context.Context, arn string) error {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	if err := p.ACM.DeleteCertificate(awsCtx, arn); err != nil {
		err = &AuthorityError{Op: "delete", Target: arn, Err: err}
		p.Log.Error(err, "Failed to delete certificate", "arn", arn)
		return err
	}

	p.Log.Info("Deleted certificate", "arn", arn)
	return nil
}
