// Package resilience guards the HTTP query path.
//
//   - Retry reopens a row source while it fails with a retryable AppError
//     (SOURCE_UNAVAILABLE), with exponential backoff and jitter.
//   - Bulkhead caps how many queries run at once. A sort materializes every
//     row of its input, so concurrent queries bound peak memory.
package resilience
