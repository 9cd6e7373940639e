package provisioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michelfeldheim/awseb-https/internal/aws"
	"github.com/michelfeldheim/awseb-https/internal/claim"
)

func TestSetupWorkflow_ScenarioA(t *testing.T) {
	f := newFixture(t)

	res, err := f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)

	assert.Equal(t, StateAliasCreated, res.State)
	assert.Equal(t, []State{
		StateStart, StateCertRequested, StateCertValidated, StateIngressAuthorized,
		StateLBResolved, StateListenersConfigured, StateAliasCreated,
	}, res.States())
	assert.Equal(t, "https://app.example.com", res.Endpoint)
	assert.Equal(t, testZoneID, res.ZoneID)
	assert.Equal(t, testGroupID, res.SecurityGroupID)

	// Alias app.example.com -> load balancer in the example.com zone
	record := f.aliasRecord(t)
	require.NotNil(t, record)
	require.NotNil(t, record.AliasTarget)
	assert.Equal(t, testLBDNSName, record.AliasTarget.DNSName)
	assert.Equal(t, "Z35SXDOTRQ7X7K", record.AliasTarget.HostedZoneID)
	assert.True(t, record.AliasTarget.EvaluateTargetHealth)

	// HTTPS allowed from anywhere
	assert.Equal(t, 1, httpsRuleCount(f.ec2.Groups[0]))

	// Certificate is issued for the wildcard and tagged with the environment
	cert, err := f.acm.DescribeCertificate(t.Context(), res.CertificateArn)
	require.NoError(t, err)
	assert.Equal(t, "*.example.com", cert.Domain)
	assert.Equal(t, aws.CertificateStatusIssued, cert.Status)
	assert.Equal(t, map[string]string{EnvironmentCertificateTagKey: testEnv}, f.acm.Tags[res.CertificateArn])

	// Validation record was published into the apex zone
	validation, err := f.r53.GetRecord(t.Context(), testZoneID, "_acm-validation.example.com.", "CNAME")
	require.NoError(t, err)
	require.NotNil(t, validation)
	assert.Equal(t, int64(ValidationRecordTTL), validation.TTL)

	// HTTP redirected, HTTPS listener created with the certificate
	assert.Equal(t, HTTPSPort, f.elb.Redirects[testLBArn+"/listener/http"])
	require.Len(t, f.elb.Created, 1)
	assert.Equal(t, res.CertificateArn, f.elb.Created[0].CertificateArn)
	assert.Equal(t, testLBArn+"/targetgroup/default", f.elb.Created[0].TargetGroupArn)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.stepsTotal.WithLabelValues(WorkflowSetup, string(StateAliasCreated), resultSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.validationDuration))
}

func TestSetupWorkflow_CustomTagsKeepEnvironmentTag(t *testing.T) {
	f := newFixture(t)
	req := f.setupRequest()
	req.Tags = map[string]string{"team": "timelines"}

	res, err := f.setup.Run(t.Context(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"team": "timelines", EnvironmentCertificateTagKey: testEnv}, f.acm.Tags[res.CertificateArn])
	assert.Equal(t, map[string]string{"team": "timelines"}, req.Tags, "request tags must not be modified")
}

func TestSetupWorkflow_ListenersSkipped(t *testing.T) {
	f := newFixture(t)
	f.setup.Listeners = nil

	res, err := f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)

	assert.Equal(t, StateAliasCreated, res.State)
	require.Len(t, res.History, 7)
	assert.Equal(t, StateListenersConfigured, res.History[5].State)
	assert.True(t, res.History[5].Skipped)
	assert.Empty(t, f.elb.Created)
	assert.Empty(t, f.elb.Redirects)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.stepsTotal.WithLabelValues(WorkflowSetup, string(StateListenersConfigured), resultSkipped)))
}

func TestSetupWorkflow_ScenarioC_ValidationTimeout(t *testing.T) {
	f := newFixture(t)
	f.acm.IssueAfter = -1
	f.certs.ValidationTimeout = 50 * time.Millisecond

	res, err := f.setup.Run(t.Context(), f.setupRequest())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrValidationTimeout)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateCertRequested, stepErr.State)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateStart, StateCertRequested, StateFailed}, res.States())
	assert.Equal(t, []string{res.CertificateArn}, res.Created, "certificate is left in place")

	// Nothing after the certificate ran
	assert.Zero(t, f.ec2.AuthorizeCalls)
	assert.Equal(t, 0, httpsRuleCount(f.ec2.Groups[0]))
	assert.Empty(t, f.elb.Created)
	assert.Nil(t, f.aliasRecord(t))

	_, err = f.acm.DescribeCertificate(t.Context(), res.CertificateArn)
	assert.NoError(t, err, "timed out certificate must not be deleted")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.stepsTotal.WithLabelValues(WorkflowSetup, string(StateFailed), resultError)))
}

func TestSetupWorkflow_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(f *fixture)
		req       func(f *fixture) SetupRequest
		wantIs    error
		wantState State
	}{
		{
			name:      "missing environment",
			req:       func(f *fixture) SetupRequest { r := f.setupRequest(); r.Environment = ""; return r },
			wantIs:    ErrInvalidArgument,
			wantState: StateStart,
		},
		{
			name: "certificate request rejected",
			mutate: func(f *fixture) {
				f.acm.RequestErr = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"}
			},
			wantIs:    ErrAuthority,
			wantState: StateStart,
		},
		{
			name: "certificate validation failed",
			mutate: func(f *fixture) {
				f.acm.IssueAfter = -1
				f.certs.Publisher = publisherFunc(func(ctx context.Context, apexDomain string, records []aws.ValidationRecord) error {
					for arn := range f.acm.Certificates {
						f.acm.SetStatus(arn, aws.CertificateStatusFailed)
					}
					return nil
				})
			},
			wantIs:    ErrAuthority,
			wantState: StateCertRequested,
		},
		{
			name: "no security group",
			mutate: func(f *fixture) {
				f.ec2.Groups = nil
			},
			wantIs:    ErrResourceNotFound,
			wantState: StateCertValidated,
		},
		{
			name: "no load balancer",
			mutate: func(f *fixture) {
				f.elb.Tags[testLBArn] = map[string]string{EnvironmentTagKey: "other-env"}
			},
			wantIs:    ErrResourceNotFound,
			wantState: StateIngressAuthorized,
		},
		{
			name: "no target group",
			mutate: func(f *fixture) {
				f.elb.TargetGroups[testLBArn] = nil
			},
			wantIs:    ErrResourceNotFound,
			wantState: StateLBResolved,
		},
		{
			name: "alias already exists",
			mutate: func(f *fixture) {
				f.r53.Records[testZoneID+":app.example.com:A"] = aws.DNSRecord{
					Name:        testSubdomain,
					Type:        "A",
					AliasTarget: &aws.AliasTarget{DNSName: "other.elb.amazonaws.com", HostedZoneID: "Z35SXDOTRQ7X7K"},
				}
			},
			wantIs:    ErrConflictingRecord,
			wantState: StateListenersConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.mutate != nil {
				tt.mutate(f)
			}
			req := f.setupRequest()
			if tt.req != nil {
				req = tt.req(f)
			}

			res, err := f.setup.Run(t.Context(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, WorkflowSetup, stepErr.Workflow)
			assert.Equal(t, tt.wantState, stepErr.State)
			assert.Equal(t, StateFailed, res.State)
		})
	}
}

func TestSetupWorkflow_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.acm.IssueAfter = -1
	f.certs.PollInterval = 10 * time.Millisecond
	f.certs.ValidationTimeout = time.Minute

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.setup.Run(ctx, f.setupRequest())
	require.Error(t, err)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrValidationTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Zero(t, f.ec2.AuthorizeCalls)
}

func TestSetupWorkflow_Claim(t *testing.T) {
	f := newFixture(t)
	locker := &claim.MemoryLocker{Holder: "other-run"}
	f.setup.Claims = locker

	key := claim.Key{Domain: testSubdomain, Environment: testEnv}
	release, err := locker.Acquire(t.Context(), key)
	require.NoError(t, err)

	res, err := f.setup.Run(t.Context(), f.setupRequest())
	require.ErrorIs(t, err, claim.ErrClaimed)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, f.acm.Certificates, "nothing is requested without the claim")

	require.NoError(t, release(t.Context()))

	_, err = f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)

	// The run released its claim
	release, err = locker.Acquire(t.Context(), key)
	require.NoError(t, err)
	require.NoError(t, release(t.Context()))
}

func TestTeardownWorkflow_ScenarioB(t *testing.T) {
	f := newFixture(t)

	setup, err := f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)
	require.NotNil(t, f.aliasRecord(t))

	changesBefore := len(f.r53.Changes)

	res, err := f.teardown.RemoveAlias(t.Context(), AliasTeardownRequest{
		Environment: testEnv,
		Domain:      testDomain,
		Subdomain:   testSubdomain,
	})
	require.NoError(t, err)
	assert.Equal(t, []State{StateStart, StateLBResolved, StateAliasDeleted}, res.States())

	// Exactly the alias record was removed
	assert.Nil(t, f.aliasRecord(t))
	require.Len(t, f.r53.Changes, changesBefore+1)
	last := f.r53.Changes[len(f.r53.Changes)-1]
	assert.Equal(t, aws.ChangeActionDelete, last.Action)
	assert.Equal(t, testSubdomain, last.Record.Name)

	// Certificate and ingress rule remain
	cert, err := f.acm.DescribeCertificate(t.Context(), setup.CertificateArn)
	require.NoError(t, err)
	assert.Equal(t, aws.CertificateStatusIssued, cert.Status)
	assert.Equal(t, 1, httpsRuleCount(f.ec2.Groups[0]))
}

func TestTeardownWorkflow_RemoveAliasTwice(t *testing.T) {
	req := AliasTeardownRequest{Environment: testEnv, Domain: testDomain, Subdomain: testSubdomain}

	t.Run("missing record is an error by default", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.setup.Run(t.Context(), f.setupRequest())
		require.NoError(t, err)

		_, err = f.teardown.RemoveAlias(t.Context(), req)
		require.NoError(t, err)

		res, err := f.teardown.RemoveAlias(t.Context(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflictingRecord)
		assert.ErrorIs(t, err, ErrResourceNotFound)
		assert.Equal(t, StateFailed, res.State)
	})

	t.Run("missing record ignored", func(t *testing.T) {
		f := newFixture(t)
		f.dns.IgnoreMissingOnDelete = true

		res, err := f.teardown.RemoveAlias(t.Context(), req)
		require.NoError(t, err)
		assert.Equal(t, StateAliasDeleted, res.State)
	})
}

func TestTeardownWorkflow_RemoveCertificate(t *testing.T) {
	f := newFixture(t)

	setup, err := f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)

	res, err := f.teardown.RemoveCertificate(t.Context(), testDomain)
	require.NoError(t, err)
	assert.Equal(t, []State{StateStart, StateCertFound, StateCertDeleted}, res.States())
	assert.Equal(t, setup.CertificateArn, res.CertificateArn)
	assert.NotContains(t, f.acm.Certificates, setup.CertificateArn)

	// The alias is untouched
	assert.NotNil(t, f.aliasRecord(t))

	// Second run finds nothing and still succeeds
	res, err = f.teardown.RemoveCertificate(t.Context(), testDomain)
	require.NoError(t, err)
	assert.Equal(t, StateCertAbsent, res.State)
}

func TestTeardownWorkflow_RemoveCertificateAmbiguous(t *testing.T) {
	f := newFixture(t)
	first, _ := f.acm.RequestCertificate(t.Context(), "*.example.com", nil)
	second, _ := f.acm.RequestCertificate(t.Context(), "*.example.com", nil)

	_, err := f.teardown.RemoveCertificate(t.Context(), testDomain)
	require.ErrorIs(t, err, ErrAmbiguousMatch)
	assert.Len(t, f.acm.Certificates, 2)

	f.certs.Ambiguity = FirstMatch
	res, err := f.teardown.RemoveCertificate(t.Context(), testDomain)
	require.NoError(t, err)
	assert.Equal(t, first, res.CertificateArn)
	assert.NotContains(t, f.acm.Certificates, first)
	assert.Contains(t, f.acm.Certificates, second)
}

func TestMetrics_WorkflowDuration(t *testing.T) {
	f := newFixture(t)

	_, err := f.setup.Run(t.Context(), f.setupRequest())
	require.NoError(t, err)
	_, err = f.teardown.RemoveCertificate(t.Context(), "missing.org")
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.workflowDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.recordStep(WorkflowSetup, StateStart, resultSuccess)
		nilMetrics.observeWorkflow(WorkflowSetup, errors.New("boom"), time.Second)
		nilMetrics.observeValidation(time.Second)
	})
	assert.NoError(t, nilMetrics.Push(t.Context(), "http://localhost:9091", "awseb-https"))
}
