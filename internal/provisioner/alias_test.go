package provisioner

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

var testTarget = aws.AliasTarget{DNSName: testLBDNSName, HostedZoneID: "Z35SXDOTRQ7X7K"}

func newAliasManager(t *testing.T, zones ...aws.HostedZone) (*DnsAliasManager, *aws.MockRoute53Client) {
	r53 := aws.NewMockRoute53Client(zones...)
	return &DnsAliasManager{Route53: r53, Log: testr.New(t)}, r53
}

func TestDnsAliasManager_ResolveZone(t *testing.T) {
	public := aws.HostedZone{ID: "/hostedzone/ZPUBLIC", Name: "example.com."}
	private := aws.HostedZone{ID: "/hostedzone/ZPRIVATE", Name: "example.com.", Private: true}
	sub := aws.HostedZone{ID: "/hostedzone/ZSUB", Name: "app.example.com."}

	tests := []struct {
		name      string
		zones     []aws.HostedZone
		domain    string
		ambiguity AmbiguityPolicy
		want      string
		wantErr   error
	}{
		{name: "exact match", zones: []aws.HostedZone{sub, public}, domain: "example.com", want: "ZPUBLIC"},
		{name: "trailing dot", zones: []aws.HostedZone{public}, domain: "example.com.", want: "ZPUBLIC"},
		{name: "no zone", zones: []aws.HostedZone{sub}, domain: "example.com", wantErr: ErrResourceNotFound},
		{name: "split horizon", zones: []aws.HostedZone{public, private}, domain: "example.com", wantErr: ErrAmbiguousMatch},
		{name: "split horizon first", zones: []aws.HostedZone{public, private}, domain: "example.com", ambiguity: FirstMatch, want: "ZPUBLIC"},
		{name: "empty domain", domain: "", wantErr: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newAliasManager(t, tt.zones...)
			m.Ambiguity = tt.ambiguity

			got, err := m.ResolveZone(t.Context(), tt.domain)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDnsAliasManager_RoundTrip(t *testing.T) {
	m, r53 := newAliasManager(t, aws.HostedZone{ID: "/hostedzone/" + testZoneID, Name: "example.com."})

	zoneID, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
	require.NoError(t, err)
	assert.Equal(t, testZoneID, zoneID)

	record, err := r53.GetRecord(t.Context(), testZoneID, testSubdomain, "A")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.AliasTarget.EvaluateTargetHealth, "health evaluation is always on")

	_, err = m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, testTarget)
	require.NoError(t, err)

	record, err = r53.GetRecord(t.Context(), testZoneID, testSubdomain, "A")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestDnsAliasManager_Conflicts(t *testing.T) {
	zone := aws.HostedZone{ID: "/hostedzone/" + testZoneID, Name: "example.com."}

	t.Run("create over existing record", func(t *testing.T) {
		m, _ := newAliasManager(t, zone)
		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
		require.NoError(t, err)

		_, err = m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
		var conflict *ConflictingRecordError
		require.ErrorAs(t, err, &conflict)
		assert.False(t, conflict.Missing)
		assert.Equal(t, aws.ChangeActionCreate, conflict.Action)
		assert.NotErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("upsert over existing record", func(t *testing.T) {
		m, _ := newAliasManager(t, zone)
		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
		require.NoError(t, err)

		_, err = m.Upsert(t.Context(), testDomain, aws.ChangeActionUpsert, testSubdomain, testTarget)
		require.NoError(t, err)
	})

	t.Run("delete with different target", func(t *testing.T) {
		m, _ := newAliasManager(t, zone)
		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
		require.NoError(t, err)

		other := aws.AliasTarget{DNSName: "other.us-east-1.elb.amazonaws.com", HostedZoneID: "Z35SXDOTRQ7X7K"}
		m.IgnoreMissingOnDelete = true
		_, err = m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, other)
		require.ErrorIs(t, err, ErrConflictingRecord)
		assert.NotErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("delete missing record", func(t *testing.T) {
		for _, ignore := range []bool{false, true} {
			m, r53 := newAliasManager(t, zone)
			m.IgnoreMissingOnDelete = ignore

			_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, testTarget)
			if ignore {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrResourceNotFound)
				require.ErrorIs(t, err, ErrConflictingRecord)
			}
			assert.Empty(t, r53.Changes)
		}
	})

	t.Run("delete missing record whatever route53 says", func(t *testing.T) {
		m, r53 := newAliasManager(t, zone)
		r53.ChangeErr = &smithy.GenericAPIError{Code: aws.CodeInvalidChangeBatch, Message: "RRSet with DNS name app.example.com. is absent"}

		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, testTarget)
		var conflict *ConflictingRecordError
		require.ErrorAs(t, err, &conflict)
		assert.True(t, conflict.Missing)
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("delete rejected after the record was read", func(t *testing.T) {
		m, r53 := newAliasManager(t, zone)
		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
		require.NoError(t, err)

		r53.ChangeErr = &smithy.GenericAPIError{Code: aws.CodeInvalidChangeBatch, Message: "Tried to delete resource record set but it was not found"}
		m.IgnoreMissingOnDelete = true
		_, err = m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, testTarget)
		require.ErrorIs(t, err, ErrConflictingRecord)
		assert.NotErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("delete when the record cannot be read", func(t *testing.T) {
		m, r53 := newAliasManager(t, zone)
		r53.GetErr = errors.New("list records: throttled")

		_, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionDelete, testSubdomain, testTarget)
		require.ErrorContains(t, err, "throttled")
		assert.NotErrorIs(t, err, ErrConflictingRecord)
		assert.Empty(t, r53.Changes)
	})
}

func TestDnsAliasManager_InvalidInput(t *testing.T) {
	m, r53 := newAliasManager(t, aws.HostedZone{ID: testZoneID, Name: "example.com."})

	tests := []struct {
		name      string
		action    aws.ChangeAction
		subdomain string
		target    aws.AliasTarget
	}{
		{name: "unknown action", action: "REPLACE", subdomain: testSubdomain, target: testTarget},
		{name: "empty subdomain", action: aws.ChangeActionCreate, target: testTarget},
		{name: "empty target", action: aws.ChangeActionCreate, subdomain: testSubdomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Upsert(t.Context(), testDomain, tt.action, tt.subdomain, tt.target)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Empty(t, r53.Changes)
}

func TestDnsAliasManager_ChangeError(t *testing.T) {
	m, r53 := newAliasManager(t, aws.HostedZone{ID: testZoneID, Name: "example.com."})
	r53.ChangeErr = errors.New("request timeout")

	zoneID, err := m.Upsert(t.Context(), testDomain, aws.ChangeActionCreate, testSubdomain, testTarget)
	require.ErrorContains(t, err, "request timeout")
	assert.NotErrorIs(t, err, ErrConflictingRecord)
	assert.Equal(t, testZoneID, zoneID)
}

func TestDnsAliasManager_PublishValidationRecords(t *testing.T) {
	m, r53 := newAliasManager(t, aws.HostedZone{ID: testZoneID, Name: "example.com."})
	records := []aws.ValidationRecord{
		{Name: "_abc.example.com.", Type: "CNAME", Value: "_xyz.acm-validations.aws."},
	}

	// Publishing twice is harmless
	require.NoError(t, m.PublishValidationRecords(t.Context(), testDomain, records))
	require.NoError(t, m.PublishValidationRecords(t.Context(), testDomain, records))

	record, err := r53.GetRecord(t.Context(), testZoneID, "_abc.example.com", "CNAME")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "_xyz.acm-validations.aws.", record.Value)
	assert.Equal(t, int64(ValidationRecordTTL), record.TTL)

	r53.ChangeErr = errors.New("boom")
	assert.ErrorContains(t, m.PublishValidationRecords(t.Context(), testDomain, records), "boom")
}
