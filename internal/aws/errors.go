package aws

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
)

// Well-known AWS API error codes
const (
	CodeDuplicatePermission = "InvalidPermission.Duplicate"
	CodeInvalidChangeBatch  = "InvalidChangeBatch"
)

var throttlingCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"PriorRequestNotComplete":                true,
	"ProvisionedThroughputExceededException": true,
}

var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
}

// ErrorCode returns the AWS API error code carried by err, or "" if err
// does not wrap an API error
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsDuplicatePermission reports whether err is EC2 rejecting an ingress rule that already exists
func IsDuplicatePermission(err error) bool {
	return ErrorCode(err) == CodeDuplicatePermission
}

// IsInvalidChangeBatch reports whether Route53 rejected a change batch
func IsInvalidChangeBatch(err error) bool {
	var icb *types.InvalidChangeBatch
	if errors.As(err, &icb) {
		return true
	}
	return ErrorCode(err) == CodeInvalidChangeBatch
}

// IsThrottling reports whether err is a throttling error
func IsThrottling(err error) bool {
	return throttlingCodes[ErrorCode(err)]
}

// IsAccessDenied reports whether err is an authorization failure
func IsAccessDenied(err error) bool {
	return accessDeniedCodes[ErrorCode(err)]
}
