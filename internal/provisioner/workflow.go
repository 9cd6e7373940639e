package provisioner

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
	"github.com/michelfeldheim/awseb-https/internal/claim"
)

// Workflow names, used in logs, metrics and StepError
const (
	WorkflowSetup               = "setup"
	WorkflowAliasTeardown       = "alias-teardown"
	WorkflowCertificateTeardown = "certificate-teardown"
)

// EnvironmentCertificateTagKey tags requested certificates with the environment name
const EnvironmentCertificateTagKey = "aws_ebs_environment"

// State is a workflow state
type State string

const (
	StateStart               State = "START"
	StateCertRequested       State = "CERT_REQUESTED"
	StateCertValidated       State = "CERT_VALIDATED"
	StateIngressAuthorized   State = "INGRESS_AUTHORIZED"
	StateLBResolved          State = "LB_RESOLVED"
	StateListenersConfigured State = "LISTENERS_CONFIGURED"
	StateAliasCreated        State = "ALIAS_CREATED"
	StateAliasDeleted        State = "ALIAS_DELETED"
	StateCertFound           State = "CERT_FOUND"
	StateCertDeleted         State = "CERT_DELETED"
	StateCertAbsent          State = "CERT_ABSENT"
	StateFailed              State = "FAILED"
)

// Transition is one entry in a workflow's history
type Transition struct {
	State   State
	Skipped bool
	At      time.Time
}

// Result is the observable outcome of a workflow run. On failure it is
// returned together with the error and shows how far the run got.
type Result struct {
	Workflow string
	State    State
	History  []Transition

	CertificateArn  string
	SecurityGroupID string
	LoadBalancer    *LoadBalancerIdentity
	ZoneID          string
	Endpoint        string

	// Created lists resources this run created. Nothing is rolled back on
	// failure, so these are what an operator may need to clean up.
	Created []string
}

// States returns the states visited, skipped ones included
func (r *Result) States() []State {
	states := make([]State, 0, len(r.History))
	for _, t := range r.History {
		states = append(states, t.State)
	}
	return states
}

// tracker advances a Result through its states
type tracker struct {
	result  *Result
	started time.Time
	metrics *Metrics
	log     logr.Logger
}

func newTracker(workflow string, metrics *Metrics, log logr.Logger) *tracker {
	now := time.Now()
	return &tracker{
		result: &Result{
			Workflow: workflow,
			State:    StateStart,
			History:  []Transition{{State: StateStart, At: now}},
		},
		started: now,
		metrics: metrics,
		log:     log,
	}
}

func (t *tracker) advance(state State) {
	t.result.State = state
	t.result.History = append(t.result.History, Transition{State: state, At: time.Now()})
	t.metrics.recordStep(t.result.Workflow, state, resultSuccess)
	t.log.Info("Workflow state changed", "workflow", t.result.Workflow, "state", state)
}

// skip records a state that was passed over without running its step
func (t *tracker) skip(state State) {
	t.result.History = append(t.result.History, Transition{State: state, Skipped: true, At: time.Now()})
	t.metrics.recordStep(t.result.Workflow, state, resultSkipped)
	t.log.Info("Workflow step skipped", "workflow", t.result.Workflow, "state", state)
}

// fail moves the workflow to FAILED and wraps err with the last state reached
func (t *tracker) fail(err error) error {
	stepErr := &StepError{Workflow: t.result.Workflow, State: t.result.State, Err: err}
	t.result.State = StateFailed
	t.result.History = append(t.result.History, Transition{State: StateFailed, At: time.Now()})
	t.metrics.recordStep(t.result.Workflow, StateFailed, resultError)
	t.log.Error(err, "Workflow failed", "workflow", t.result.Workflow, "lastState", stepErr.State)
	return stepErr
}

func (t *tracker) finish(err error) {
	t.metrics.observeWorkflow(t.result.Workflow, err, time.Since(t.started))
}

// acquireClaim takes the advisory claim for key. A nil locker grants it.
func acquireClaim(ctx context.Context, locker claim.Locker, key claim.Key, log logr.Logger) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return func() {
		// Release even when the run was cancelled
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Error(err, "Failed to release claim", "key", key.String())
		}
	}, nil
}

// SetupRequest names the environment and hostnames to set up
type SetupRequest struct {
	Environment string
	Domain      string // apex domain, certificate is issued for *.Domain
	Subdomain   string // fully qualified name of the alias record
	Tags        map[string]string
}

// Validate checks the request has all required fields
func (r SetupRequest) Validate() error {
	switch {
	case r.Environment == "":
		return fmt.Errorf("%w: environment name is required", ErrInvalidArgument)
	case r.Domain == "":
		return fmt.Errorf("%w: domain is required", ErrInvalidArgument)
	case r.Subdomain == "":
		return fmt.Errorf("%w: subdomain is required", ErrInvalidArgument)
	}
	return nil
}

// certificateTags returns the request tags plus the environment tag
func (r SetupRequest) certificateTags() map[string]string {
	tags := make(map[string]string, len(r.Tags)+1)
	maps.Copy(tags, r.Tags)
	if _, ok := tags[EnvironmentCertificateTagKey]; !ok {
		tags[EnvironmentCertificateTagKey] = r.Environment
	}
	return tags
}

// SetupWorkflow provisions HTTPS for an environment: certificate, ingress,
// listeners and the DNS alias, in that order
type SetupWorkflow struct {
	Certificates  *CertificateProvisioner
	Ingress       *NetworkSecurityEditor
	LoadBalancers *LoadBalancerLocator

	// Listeners is optional; nil skips listener configuration
	Listeners *ListenerConfigurator

	DNS    *DnsAliasManager
	Claims claim.Locker

	Metrics *Metrics
	Log     logr.Logger
}

// Run executes the workflow. There is no rollback: on failure the returned
// Result records what was created before the failing step.
func (w *SetupWorkflow) Run(ctx context.Context, req SetupRequest) (res *Result, err error) {
	t := newTracker(WorkflowSetup, w.Metrics, w.Log)
	res = t.result
	defer func() { t.finish(err) }()

	if err := req.Validate(); err != nil {
		return res, t.fail(err)
	}

	log := w.Log.WithValues("environment", req.Environment, "domain", req.Domain, "subdomain", req.Subdomain)
	log.Info("Setting up HTTPS access for EBS environment")

	release, err := acquireClaim(ctx, w.Claims, claim.Key{Domain: req.Subdomain, Environment: req.Environment}, log)
	if err != nil {
		return res, t.fail(err)
	}
	defer release()

	tags := req.certificateTags()

	arn, err := w.Certificates.Request(ctx, req.Domain, tags)
	if err != nil {
		return res, t.fail(err)
	}
	res.CertificateArn = arn
	res.Created = append(res.Created, arn)
	t.advance(StateCertRequested)

	if _, err := w.Certificates.WaitValidated(ctx, req.Domain, arn); err != nil {
		return res, t.fail(err)
	}
	t.advance(StateCertValidated)

	groupID, err := w.Ingress.AuthorizeHTTPSIngress(ctx, req.Environment)
	if err != nil {
		return res, t.fail(err)
	}
	res.SecurityGroupID = groupID
	t.advance(StateIngressAuthorized)

	lb, err := w.LoadBalancers.FindByEnvironmentTag(ctx, req.Environment)
	if err != nil {
		return res, t.fail(err)
	}
	res.LoadBalancer = lb
	t.advance(StateLBResolved)

	if w.Listeners != nil {
		if err := w.Listeners.ConfigureHTTPS(ctx, lb, arn, tags); err != nil {
			return res, t.fail(err)
		}
		t.advance(StateListenersConfigured)
	} else {
		t.skip(StateListenersConfigured)
	}

	zoneID, err := w.DNS.Upsert(ctx, req.Domain, aws.ChangeActionCreate, req.Subdomain, lb.AliasTarget())
	res.ZoneID = zoneID
	if err != nil {
		return res, t.fail(err)
	}
	res.Created = append(res.Created, fmt.Sprintf("%s/%s A", zoneID, req.Subdomain))
	res.Endpoint = "https://" + req.Subdomain
	t.advance(StateAliasCreated)

	log.Info("HTTPS setup complete", "endpoint", res.Endpoint, "certificate", arn, "loadBalancer", lb.Arn)
	return res, nil
}
