// Package errors provides the structured error type shared by rowquery packages.
//
// An AppError carries a machine-readable ErrorCode, a human-readable message,
// the HTTP status the server package responds with, and retryable detection.
// Sentinel causes stay reachable through Unwrap, so callers can match with
// the standard library:
//
//	if stderrors.Is(err, query.ErrInconsistentRow) { ... }
package errors
