// Package errors provides the structured error taxonomy for tiercache. Tier
// failures and empty-tier victim selections are wrapped by EngineError, the
// only error type surfaced to cache callers.
package errors

import (
	stderr "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code for tiercache operations.
type ErrorCode string

const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Tier Errors
	ErrCodeTierIO      ErrorCode = "TIER_IO"
	ErrCodeTierCorrupt ErrorCode = "TIER_CORRUPT"
	ErrCodeTierFull    ErrorCode = "TIER_FULL"
	ErrCodeTierEmpty   ErrorCode = "TIER_EMPTY"

	// Backing Store Errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// State Errors
	ErrCodeCacheClosed ErrorCode = "CACHE_CLOSED"

	// Internal
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryTier          ErrorCategory = "tier"
	CategoryStore         ErrorCategory = "store"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "TIER_"):
		return CategoryTier
	case strings.HasPrefix(codeStr, "STORE_"):
		return CategoryStore
	case strings.HasPrefix(codeStr, "CACHE_"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error code is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeStoreUnavailable: true,
		ErrCodeTierIO:           true,
	}
	return retryableCodes[code]
}

// ConfigError reports an invalid or unreadable configuration.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewConfigError creates a configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// WithCause sets the underlying cause.
func (e *ConfigError) WithCause(cause error) *ConfigError {
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is matches another ConfigError by code.
func (e *ConfigError) Is(target error) bool {
	if t, ok := target.(*ConfigError); ok {
		return e.Code == t.Code
	}
	return false
}

// TierError reports that a tier backend failed to complete an operation.
type TierError struct {
	Code      ErrorCode
	Tier      int
	ID        int64
	HasID     bool
	Op        string
	Retryable bool
	Cause     error
}

// NewTierError creates a tier error for the tier at index.
func NewTierError(code ErrorCode, tier int, op string) *TierError {
	return &TierError{
		Code:      code,
		Tier:      tier,
		Op:        op,
		Retryable: IsRetryableByDefault(code),
	}
}

// WithID records the item identity involved in the failure.
func (e *TierError) WithID(id int64) *TierError {
	e.ID = id
	e.HasID = true
	return e
}

// WithCause sets the underlying cause.
func (e *TierError) WithCause(cause error) *TierError {
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *TierError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[tier %d:%s] %s", e.Tier, e.Op, e.Code)
	if e.HasID {
		fmt.Fprintf(&b, " id=%d", e.ID)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TierError) Unwrap() error {
	return e.Cause
}

// Is matches another TierError by code.
func (e *TierError) Is(target error) bool {
	if t, ok := target.(*TierError); ok {
		return e.Code == t.Code
	}
	return false
}

// EmptyTierError reports a victim selection on a tier holding no entries.
// It signals a broken caller invariant rather than a recoverable condition.
type EmptyTierError struct {
	Tier int
}

// Error implements the error interface.
func (e *EmptyTierError) Error() string {
	return fmt.Sprintf("[tier %d] %s: no victim in empty tier", e.Tier, ErrCodeTierEmpty)
}

// Is matches any EmptyTierError.
func (e *EmptyTierError) Is(target error) bool {
	_, ok := target.(*EmptyTierError)
	return ok
}

// EngineError wraps a tier failure with the logical cache operation and item
// identity. Tier is the index of the tier that failed, or -1 when unknown.
type EngineError struct {
	Op    string
	ID    int64
	Tier  int
	Code  ErrorCode
	Cause error
}

// NewEngineError builds an EngineError from a cause, lifting the tier index
// and code out of the cause chain when present.
func NewEngineError(op string, id int64, cause error) *EngineError {
	e := &EngineError{Op: op, ID: id, Tier: -1, Code: ErrCodeInternalError, Cause: cause}

	var tierErr *TierError
	var emptyErr *EmptyTierError
	switch {
	case stderr.As(cause, &tierErr):
		e.Tier = tierErr.Tier
		e.Code = tierErr.Code
	case stderr.As(cause, &emptyErr):
		e.Tier = emptyErr.Tier
		e.Code = ErrCodeTierEmpty
	}
	return e
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Tier >= 0 {
		return fmt.Sprintf("[cache:%s] %s id=%d tier=%d: %v", e.Op, e.Code, e.ID, e.Tier, e.Cause)
	}
	return fmt.Sprintf("[cache:%s] %s id=%d: %v", e.Op, e.Code, e.ID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches another EngineError by code.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf returns the first error code found in err's chain, or the empty
// code when none is present.
func CodeOf(err error) ErrorCode {
	var engineErr *EngineError
	if stderr.As(err, &engineErr) {
		return engineErr.Code
	}
	var tierErr *TierError
	if stderr.As(err, &tierErr) {
		return tierErr.Code
	}
	var emptyErr *EmptyTierError
	if stderr.As(err, &emptyErr) {
		return ErrCodeTierEmpty
	}
	var configErr *ConfigError
	if stderr.As(err, &configErr) {
		return configErr.Code
	}
	return ""
}

// IsRetryable reports whether err carries a retryable TierError.
func IsRetryable(err error) bool {
	var tierErr *TierError
	if stderr.As(err, &tierErr) {
		return tierErr.Retryable
	}
	return false
}
