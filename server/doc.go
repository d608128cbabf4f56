// Package server exposes row queries over HTTP.
//
// A Server mounts a Gin engine on a net/http ServeMux wrapped in h2c, so
// plain HTTP/1.1 and cleartext HTTP/2 clients share one port. Middleware
// from server/middleware (recovery, request id, request logging) wraps the
// mux rather than the Gin engine.
//
// # Endpoints
//
//   - GET /rows: run a query against a fresh source, see RowsHandler
//   - GET /health: component health from observability.HealthChecker values
//   - GET /info: build information from the version package
package server
