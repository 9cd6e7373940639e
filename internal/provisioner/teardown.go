package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
	"github.com/michelfeldheim/awseb-https/internal/claim"
)

// AliasTeardownRequest names the alias to remove
type AliasTeardownRequest struct {
	Environment string
	Domain      string
	Subdomain   string
}

// Validate checks the request has all required fields
func (r AliasTeardownRequest) Validate() error {
	return SetupRequest{Environment: r.Environment, Domain: r.Domain, Subdomain: r.Subdomain}.Validate()
}

// TeardownWorkflow undoes a setup. Removing the alias and removing the
// certificate are independent runs; neither triggers the other.
type TeardownWorkflow struct {
	Certificates  *CertificateProvisioner
	LoadBalancers *LoadBalancerLocator
	DNS           *DnsAliasManager
	Claims        claim.Locker

	Metrics *Metrics
	Log     logr.Logger
}

// RemoveAlias deletes the alias record pointing the subdomain at the
// environment's load balancer. The certificate and ingress rule are kept.
func (w *TeardownWorkflow) RemoveAlias(ctx context.Context, req AliasTeardownRequest) (res *Result, err error) {
	t := newTracker(WorkflowAliasTeardown, w.Metrics, w.Log)
	res = t.result
	defer func() { t.finish(err) }()

	if err := req.Validate(); err != nil {
		return res, t.fail(err)
	}

	log := w.Log.WithValues("environment", req.Environment, "domain", req.Domain, "subdomain", req.Subdomain)

	release, err := acquireClaim(ctx, w.Claims, claim.Key{Domain: req.Subdomain, Environment: req.Environment}, log)
	if err != nil {
		return res, t.fail(err)
	}
	defer release()

	lb, err := w.LoadBalancers.FindByEnvironmentTag(ctx, req.Environment)
	if err != nil {
		return res, t.fail(err)
	}
	res.LoadBalancer = lb
	t.advance(StateLBResolved)

	zoneID, err := w.DNS.Upsert(ctx, req.Domain, aws.ChangeActionDelete, req.Subdomain, lb.AliasTarget())
	res.ZoneID = zoneID
	if err != nil {
		return res, t.fail(err)
	}
	t.advance(StateAliasDeleted)

	log.Info("Alias removed", "zoneId", zoneID)
	return res, nil
}

// RemoveCertificate deletes the certificate issued for *.domain. No matching
// certificate is not an error: the run ends in CERT_ABSENT.
func (w *TeardownWorkflow) RemoveCertificate(ctx context.Context, domain string) (res *Result, err error) {
	t := newTracker(WorkflowCertificateTeardown, w.Metrics, w.Log)
	res = t.result
	defer func() { t.finish(err) }()

	if domain == "" {
		return res, t.fail(fmt.Errorf("%w: domain is required", ErrInvalidArgument))
	}

	arn, err := w.Certificates.FindByDomain(ctx, domain)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			w.Log.Info("No certificate to delete", "domain", WildcardDomain(domain))
			t.advance(StateCertAbsent)
			return res, nil
		}
		return res, t.fail(err)
	}
	res.CertificateArn = arn
	t.advance(StateCertFound)

	if err := w.Certificates.Delete(ctx, arn); err != nil {
		return res, t.fail(err)
	}
	t.advance(StateCertDeleted)
	return res, nil
}
