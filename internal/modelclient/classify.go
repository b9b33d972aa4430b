package modelclient

import (
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	coreerrors "github.com/kaisan-axrail/mbppchatbot-sub000/internal/errors"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// errorClass is the tier-fallback classification from spec.md §4.2:
// validation-class errors demote to the next endpoint tier, permission
// and throttling-class errors are surfaced to the caller, and anything
// else is treated as transient and left to the retry policy.
type errorClass int

const (
	classTransient errorClass = iota
	classValidation
	classPermission
	classThrottling
)

// classify inspects err (already unwrapped from the resilience executor)
// and assigns it a fallback class. Unrecognised errors default to
// transient, which is the safe choice: they are retried in place rather
// than silently demoted past a tier that might otherwise have worked.
// classifyOverrideForTests lets _test.go files in this package inject a
// synthetic classification for an error type they control, so tier
// fallback behavior can be exercised without a live Anthropic/Bedrock
// error value. Nil in production.
var classifyOverrideForTests func(err error) (errorClass, bool)

func classify(dialect Dialect, err error) errorClass {
	if err == nil {
		return classTransient
	}
	if classifyOverrideForTests != nil {
		if class, ok := classifyOverrideForTests(err); ok {
			return class
		}
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return classThrottling
	}
	if coreerrors.Is(err, coreerrors.KindDialect) {
		return classValidation
	}

	switch dialect {
	case DialectA:
		return classifyAnthropic(err)
	default:
		return classifyBedrock(err)
	}
}

func classifyAnthropic(err error) errorClass {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return classTransient
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return classValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return classPermission
	case http.StatusTooManyRequests:
		return classThrottling
	default:
		return classTransient
	}
}

func classifyBedrock(err error) errorClass {
	var validation *brtypes.ValidationException
	if errors.As(err, &validation) {
		return classValidation
	}
	var denied *brtypes.AccessDeniedException
	if errors.As(err, &denied) {
		return classPermission
	}
	var throttled *brtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return classThrottling
	}
	var quota *brtypes.ServiceQuotaExceededException
	if errors.As(err, &quota) {
		return classThrottling
	}
	var unavailable *brtypes.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return classTransient
	}
	var internal *brtypes.InternalServerException
	if errors.As(err, &internal) {
		return classTransient
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusBadRequest:
			return classValidation
		case http.StatusUnauthorized, http.StatusForbidden:
			return classPermission
		case http.StatusTooManyRequests:
			return classThrottling
		}
	}
	return classTransient
}

// isRetryable is the resilience.RetryConfig predicate for model calls:
// everything except validation and permission-class errors is worth a
// same-tier retry (throttling backs off and frequently succeeds on the
// next attempt; transient errors are exactly what retry exists for).
func isRetryable(dialect Dialect) func(error) bool {
	return func(err error) bool {
		switch classify(dialect, err) {
		case classValidation, classPermission:
			return false
		default:
			return true
		}
	}
}
