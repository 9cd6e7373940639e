package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

// ValidationRecordTTL is the TTL of published ACM validation records
const ValidationRecordTTL = 300

// DnsAliasManager creates and deletes alias A records in the apex hosted zone
type DnsAliasManager struct {
	Route53   aws.Route53Client
	Ambiguity AmbiguityPolicy

	// IgnoreMissingOnDelete makes a DELETE of an absent record succeed
	IgnoreMissingOnDelete bool

	Log logr.Logger
}

// ResolveZone returns the ID of the hosted zone named exactly apexDomain
func (m *DnsAliasManager) ResolveZone(ctx context.Context, apexDomain string) (string, error) {
	apex := strings.TrimSuffix(apexDomain, ".")
	if apex == "" {
		return "", fmt.Errorf("%w: apex domain is required", ErrInvalidArgument)
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	zones, err := m.Route53.FindHostedZonesByName(awsCtx, apex)
	if err != nil {
		err = fmt.Errorf("failed to list hosted zones for %s: %w", apex, err)
		m.Log.Error(err, "Hosted zone lookup failed", "domain", apex)
		return "", err
	}

	lookup := Lookup[aws.HostedZone]{Kind: "hosted zone", Key: apex, Candidates: zones}
	zone, err := lookup.Resolve(m.Log, m.Ambiguity, func(z aws.HostedZone) string { return aws.NormalizeZoneId(z.ID) })
	if err != nil {
		m.Log.Error(err, "Hosted zone not resolved", "domain", apex)
		return "", err
	}
	return aws.NormalizeZoneId(zone.ID), nil
}

// Upsert submits a single alias A record change for subdomain in the zone of
// apexDomain. The zone ID is returned with the error when it was resolved.
func (m *DnsAliasManager) Upsert(ctx context.Context, apexDomain string, action aws.ChangeAction, subdomain string, target aws.AliasTarget) (string, error) {
	switch action {
	case aws.ChangeActionCreate, aws.ChangeActionDelete, aws.ChangeActionUpsert:
	default:
		return "", fmt.Errorf("%w: unsupported change action %q", ErrInvalidArgument, action)
	}
	if strings.TrimSuffix(subdomain, ".") == "" {
		return "", fmt.Errorf("%w: subdomain is required", ErrInvalidArgument)
	}
	if target.DNSName == "" || target.HostedZoneID == "" {
		return "", fmt.Errorf("%w: alias target needs a DNS name and a hosted zone ID", ErrInvalidArgument)
	}

	zoneID, err := m.ResolveZone(ctx, apexDomain)
	if err != nil {
		return "", err
	}

	// Route53 always evaluates health for alias targets created here
	target.EvaluateTargetHealth = true
	record := aws.DNSRecord{
		Name:        strings.TrimSuffix(subdomain, "."),
		Type:        "A",
		AliasTarget: &target,
	}

	if action == aws.ChangeActionDelete {
		missing, err := m.checkDeletable(ctx, zoneID, record)
		if err != nil {
			return zoneID, err
		}
		if missing {
			return zoneID, nil
		}
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	if err := m.Route53.ChangeRecord(awsCtx, zoneID, action, record); err != nil {
		if !aws.IsInvalidChangeBatch(err) {
			err = fmt.Errorf("failed to %s alias %s in zone %s: %w", strings.ToLower(string(action)), record.Name, zoneID, err)
			m.Log.Error(err, "Alias change failed", "zoneId", zoneID, "name", record.Name, "action", action)
			return zoneID, err
		}

		conflict := &ConflictingRecordError{ZoneID: zoneID, Name: record.Name, Action: action, Err: err}
		m.Log.Error(conflict, "Alias change rejected", "zoneId", zoneID, "name", record.Name, "action", action)
		return zoneID, conflict
	}

	m.Log.Info("Changed alias record", "action", action, "zoneId", zoneID, "name", record.Name, "target", target.DNSName)
	return zoneID, nil
}

// checkDeletable reads the live record before a DELETE. It reports missing
// when the record is absent and IgnoreMissingOnDelete allows that.
func (m *DnsAliasManager) checkDeletable(ctx context.Context, zoneID string, record aws.DNSRecord) (missing bool, err error) {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	live, err := m.Route53.GetRecord(awsCtx, zoneID, record.Name, record.Type)
	if err != nil {
		err = fmt.Errorf("failed to read alias %s in zone %s: %w", record.Name, zoneID, err)
		m.Log.Error(err, "Alias lookup failed", "zoneId", zoneID, "name", record.Name)
		return false, err
	}

	if live == nil {
		if m.IgnoreMissingOnDelete {
			m.Log.Info("Alias record already absent", "zoneId", zoneID, "name", record.Name)
			return true, nil
		}
		conflict := &ConflictingRecordError{
			ZoneID:  zoneID,
			Name:    record.Name,
			Action:  aws.ChangeActionDelete,
			Missing: true,
			Err:     errors.New("record does not exist"),
		}
		m.Log.Error(conflict, "Alias change rejected", "zoneId", zoneID, "name", record.Name)
		return false, conflict
	}

	want := record.AliasTarget
	if live.AliasTarget == nil || !aws.SameName(live.AliasTarget.DNSName, want.DNSName) ||
		aws.NormalizeZoneId(live.AliasTarget.HostedZoneID) != aws.NormalizeZoneId(want.HostedZoneID) {
		current := live.Value
		if live.AliasTarget != nil {
			current = live.AliasTarget.DNSName
		}
		conflict := &ConflictingRecordError{
			ZoneID: zoneID,
			Name:   record.Name,
			Action: aws.ChangeActionDelete,
			Err:    fmt.Errorf("record points to %s, not %s", current, want.DNSName),
		}
		m.Log.Error(conflict, "Alias change rejected", "zoneId", zoneID, "name", record.Name)
		return false, conflict
	}
	return false, nil
}

// PublishValidationRecords UPSERTs ACM validation CNAMEs into the apex zone
func (m *DnsAliasManager) PublishValidationRecords(ctx context.Context, apexDomain string, records []aws.ValidationRecord) error {
	zoneID, err := m.ResolveZone(ctx, apexDomain)
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range records {
		awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
		err := m.Route53.ChangeRecord(awsCtx, zoneID, aws.ChangeActionUpsert, aws.DNSRecord{
			Name:  r.Name,
			Type:  r.Type,
			Value: r.Value,
			TTL:   ValidationRecordTTL,
		})
		cancel()
		if err != nil {
			err = fmt.Errorf("failed to publish validation record %s: %w", r.Name, err)
			m.Log.Error(err, "Validation record not published", "zoneId", zoneID, "name", r.Name)
			errs = append(errs, err)
			continue
		}
		m.Log.Info("Published validation record", "zoneId", zoneID, "name", r.Name)
	}
	return errors.Join(errs...)
}
