// Package errors defines the categorized error taxonomy shared by the services and the API.
package errors

import (
	"fmt"
	"net/http"

	"github.com/sats-staker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents errors the user can fix (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents failures of the contract read/write layer
	CategoryProvider ErrorCategory = "provider"
	// CategoryCache represents snapshot store errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents invalid arguments
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes
const (
	CodeDataUnavailable     = "DATA_UNAVAILABLE"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInsufficientStake   = "INSUFFICIENT_STAKE"
	CodeNoRewardsAvailable  = "NO_REWARDS_AVAILABLE"
	CodeActionRejected      = "ACTION_REJECTED"
	CodeMinPeriodNotElapsed = "MIN_PERIOD_NOT_ELAPSED"
	CodeActionInProgress    = "ACTION_IN_PROGRESS"
	CodeNotFound            = "NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeCacheError          = "CACHE_ERROR"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// Sentinels for errors.Is. They match any CategorizedError with the same code.
var (
	ErrDataUnavailable     = &CategorizedError{Code: CodeDataUnavailable}
	ErrInvalidArgument     = &CategorizedError{Code: CodeInvalidArgument}
	ErrInsufficientBalance = &CategorizedError{Code: CodeInsufficientBalance}
	ErrInsufficientStake   = &CategorizedError{Code: CodeInsufficientStake}
	ErrNoRewardsAvailable  = &CategorizedError{Code: CodeNoRewardsAvailable}
	ErrActionRejected      = &CategorizedError{Code: CodeActionRejected}
	ErrMinPeriodNotElapsed = &CategorizedError{Code: CodeMinPeriodNotElapsed}
	ErrActionInProgress    = &CategorizedError{Code: CodeActionInProgress}
	ErrNotFound            = &CategorizedError{Code: CodeNotFound}
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches another CategorizedError by code
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Read side

// NewDataUnavailableError reports that a refresh could not produce a consistent snapshot.
// The previous snapshot, when there is one, stays on display.
func NewDataUnavailableError(address string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeDataUnavailable,
		Message:    "staking data is unavailable, data may be outdated",
		Cause:      cause,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidArgumentError creates an invalid argument error
func NewInvalidArgumentError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidArgument,
		Message:    fmt.Sprintf("invalid argument '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// Action validation

// NewInsufficientBalanceError creates an insufficient wallet balance error
func NewInsufficientBalanceError(requested, available types.Amount) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientBalance,
		Message:    "You don't have enough sBTC balance. Convert your BTC to sBTC first.",
		Details: map[string]interface{}{
			"requested": requested,
			"available": available,
		},
	}
}

// NewInsufficientStakeError creates an error for unstaking more than is staked
func NewInsufficientStakeError(requested, staked types.Amount) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientStake,
		Message:    "The amount exceeds your staked sBTC.",
		Details: map[string]interface{}{
			"requested": requested,
			"staked":    staked,
		},
	}
}

// NewNoRewardsAvailableError creates an error for claiming with nothing accrued
func NewNoRewardsAvailableError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeNoRewardsAvailable,
		Message:    "There are no rewards available to claim yet.",
	}
}

// NewActionInProgressError rejects a submission while another action is outstanding
func NewActionInProgressError(address string, pendingID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeActionInProgress,
		Message:    "another action is still being processed",
		Details: map[string]interface{}{
			"address":  address,
			"actionId": pendingID,
		},
	}
}

// Write side

// NewActionRejectedError wraps a failed or cancelled contract write
func NewActionRejectedError(action types.ActionKind, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeActionRejected,
		Message:    rejectedMessage(action),
		Cause:      cause,
		Details: map[string]interface{}{
			"action": action,
		},
	}
}

// NewMinPeriodNotElapsedError is the unstake rejection for a stake that is still locked
func NewMinPeriodNotElapsedError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusConflict,
		Code:       CodeMinPeriodNotElapsed,
		Message:    "Minimum staking period not yet reached. Please try again later.",
		Cause:      cause,
		Details: map[string]interface{}{
			"action": types.ActionUnstake,
		},
	}
}

func rejectedMessage(action types.ActionKind) string {
	switch action {
	case types.ActionStake:
		return "There was an error while staking. Please try again."
	case types.ActionUnstake:
		return "There was an error while unstaking. Please try again."
	case types.ActionClaim:
		return "There was an error while claiming rewards. Please try again."
	default:
		return "The transaction was rejected. Please try again."
	}
}

// General

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// NewCacheError creates a snapshot store error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeCacheError,
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeServiceUnavailable,
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if As(err, &catErr) {
		return catErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryCache:
		return catErr.Code != CodeActionRejected
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
