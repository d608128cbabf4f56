package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Input errors
const (
	// ErrCodeInvalidInput indicates a configuration value or parameter is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidFormat indicates a field has an invalid format.
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// Data errors
const (
	// ErrCodeInconsistentRow indicates a row lacks a column the query needs.
	ErrCodeInconsistentRow ErrorCode = "INCONSISTENT_ROW"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Source errors (retryable)
const (
	// ErrCodeSourceUnavailable indicates the row source could not be read.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeBusy indicates every query slot is taken.
	ErrCodeBusy ErrorCode = "BUSY"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeSourceUnavailable: true,
	ErrCodeTimeout:           true,
	ErrCodeBusy:              true,
	ErrCodeInternal:          false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
