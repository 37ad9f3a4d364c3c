// Package errors defines the categorized error type shared by the simulation core,
// the data collaborators and the HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryInput covers malformed or insufficient price data
	CategoryInput ErrorCategory = "input"
	// CategoryConfiguration covers invalid run parameters
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryNumeric covers numerical degeneracies surfaced by the engine
	CategoryNumeric ErrorCategory = "numeric"
	// CategoryCancelled covers runs aborted by their caller
	CategoryCancelled ErrorCategory = "cancelled"
	// CategoryProvider covers market data provider failures
	CategoryProvider ErrorCategory = "provider"
	// CategoryStorage covers run history and cache failures
	CategoryStorage ErrorCategory = "storage"
	// CategoryNotFound covers lookups of unknown runs
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit covers throttled requests
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem covers everything else
	CategorySystem ErrorCategory = "system"
)

// Error codes
const (
	CodeInsufficientData    = "INSUFFICIENT_DATA"
	CodeInvalidPrice        = "INVALID_PRICE"
	CodeAssetMismatch       = "ASSET_MISMATCH"
	CodeDuplicateAsset      = "DUPLICATE_ASSET"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeDegenerateSample    = "DEGENERATE_SAMPLE"
	CodeZeroRisk            = "ZERO_RISK"
	CodeEmptyResultSet      = "EMPTY_RESULT_SET"
	CodeSimulationCancelled = "SIMULATION_CANCELLED"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeStorageError        = "STORAGE_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternalError       = "INTERNAL_ERROR"
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

// Input Errors

// NewInsufficientDataError reports a price history too short to derive a covariance.
func NewInsufficientDataError(assets, periods int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientData,
		Message: fmt.Sprintf(
			"need at least 1 asset and 2 return periods, got %d assets and %d periods", assets, periods),
		Details: map[string]interface{}{
			"assets":  assets,
			"periods": periods,
		},
	}
}

// NewInvalidPriceError reports a non-finite or non-positive price observation.
func NewInvalidPriceError(asset string, index int, price float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInvalidPrice,
		Message:    fmt.Sprintf("invalid price %v for %s at index %d", price, asset, index),
		Details: map[string]interface{}{
			"asset": asset,
			"index": index,
		},
	}
}

// NewAssetMismatchError reports price series that are not aligned with the asset list.
func NewAssetMismatchError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeAssetMismatch,
		Message:    message,
	}
}

// NewDuplicateAssetError reports an asset identifier that appears twice.
func NewDuplicateAssetError(asset string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeDuplicateAsset,
		Message:    fmt.Sprintf("duplicate asset identifier: %s", asset),
		Details: map[string]interface{}{
			"asset": asset,
		},
	}
}

// Configuration Errors

// NewInvalidConfigError creates an invalid parameter error
func NewInvalidConfigError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidConfig,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// Numeric Errors

// NewDegenerateSampleError reports a weight draw whose raw components summed to zero.
func NewDegenerateSampleError(attempts int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNumeric,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDegenerateSample,
		Message:    fmt.Sprintf("weight sample summed to zero after %d attempts", attempts),
		Details: map[string]interface{}{
			"attempts": attempts,
		},
	}
}

// NewZeroRiskError reports a result set in which no draw has a finite Sharpe ratio.
func NewZeroRiskError(draws int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNumeric,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeZeroRisk,
		Message:    fmt.Sprintf("none of %d draws has a finite sharpe ratio (zero portfolio risk)", draws),
		Details: map[string]interface{}{
			"draws": draws,
		},
	}
}

// NewEmptyResultSetError reports selection over no draws.
func NewEmptyResultSetError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNumeric,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeEmptyResultSet,
		Message:    "cannot select optimal portfolios from an empty result set",
	}
}

// NewCancelledError reports a simulation aborted before completion.
func NewCancelledError(completed, total int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCancelled,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeSimulationCancelled,
		Message:    fmt.Sprintf("simulation cancelled after %d of %d draws", completed, total),
		Cause:      cause,
		Details: map[string]interface{}{
			"completed": completed,
			"total":     total,
		},
	}
}

// Collaborator Errors

// NewProviderError creates a data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeProviderError,
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewStorageError creates a storage error
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeStorageError,
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

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
func NewRateLimitError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
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

// Categorize finds the categorized error in err's chain, or wraps err as internal.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Code == code
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error was caused by the caller's input or configuration
func IsUserError(err error) bool {
	return IsCategory(err, CategoryInput) || IsCategory(err, CategoryConfiguration)
}
