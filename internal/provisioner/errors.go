package provisioner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

// Sentinel errors. Every typed error below matches one of these with errors.Is.
var (
	ErrAuthority         = errors.New("certificate authority error")
	ErrValidationTimeout = errors.New("certificate validation timed out")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrAmbiguousMatch    = errors.New("ambiguous resource match")
	ErrConflictingRecord = errors.New("conflicting DNS record")
	ErrDuplicateRule     = errors.New("duplicate ingress rule")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// AuthorityError is a failed certificate authority call
type AuthorityError struct {
	Op     string // request, describe, validate, list, delete
	Target string // domain or certificate ARN
	Err    error
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("certificate authority %s failed for %s: %v", e.Op, e.Target, e.Err)
}

func (e *AuthorityError) Unwrap() error { return e.Err }

func (e *AuthorityError) Is(target error) bool { return target == ErrAuthority }

// Throttled reports whether the authority rejected the call for rate limiting
func (e *AuthorityError) Throttled() bool { return aws.IsThrottling(e.Err) }

// ValidationTimeoutError means the certificate was still not validated when the wait ended.
// The certificate is not deleted.
type ValidationTimeoutError struct {
	Arn     string
	Domain  string
	Timeout time.Duration
}

func (e *ValidationTimeoutError) Error() string {
	return fmt.Sprintf("certificate %s for %s was not validated within %s", e.Arn, e.Domain, e.Timeout)
}

func (e *ValidationTimeoutError) Is(target error) bool { return target == ErrValidationTimeout }

// NotFoundError means a lookup that requires exactly one match found none
type NotFoundError struct {
	Kind string // security group, load balancer, hosted zone, certificate
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrResourceNotFound }

// AmbiguousMatchError means a lookup that requires exactly one match found several
type AmbiguousMatchError struct {
	Kind       string
	Key        string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d %ss match %s: %s", len(e.Candidates), e.Kind, e.Key, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousMatchError) Is(target error) bool { return target == ErrAmbiguousMatch }

// ConflictingRecordError means Route53 rejected an alias change against the
// current zone contents. Missing is set when a DELETE targeted an absent record.
type ConflictingRecordError struct {
	ZoneID  string
	Name    string
	Action  aws.ChangeAction
	Missing bool
	Err     error
}

func (e *ConflictingRecordError) Error() string {
	return fmt.Sprintf("%s of record %s in zone %s rejected: %v", e.Action, e.Name, e.ZoneID, e.Err)
}

func (e *ConflictingRecordError) Unwrap() error { return e.Err }

func (e *ConflictingRecordError) Is(target error) bool {
	return target == ErrConflictingRecord || (e.Missing && target == ErrResourceNotFound)
}

// DuplicateRuleError means the security group already permits the rule
type DuplicateRuleError struct {
	GroupID string
	Rule    aws.IngressRule
	Err     error
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("security group %s already allows %s %d-%d from %s", e.GroupID, e.Rule.Protocol, e.Rule.FromPort, e.Rule.ToPort, e.Rule.CIDR)
}

func (e *DuplicateRuleError) Unwrap() error { return e.Err }

func (e *DuplicateRuleError) Is(target error) bool { return target == ErrDuplicateRule }

// StepError records the workflow state a failure happened in
type StepError struct {
	Workflow string
	State    State
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed after %s: %v", e.Workflow, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
