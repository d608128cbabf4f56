package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
)

// RequestLogger logs every request with method, path, status and duration
// and records it on metrics. Health checks are not logged but are counted.
func RequestLogger(log *logger.Logger, metrics *observability.QueryMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			duration := time.Since(start)

			metrics.RecordRequest(r.Context(), r.Method, routeLabel(r.URL.Path, sw.status), sw.status, duration)
			if isHealthEndpoint(r.URL.Path) {
				return
			}

			fields := map[string]interface{}{
				"method":             r.Method,
				"path":               r.URL.Path,
				logger.FieldStatus:   sw.status,
				logger.FieldDuration: duration.Milliseconds(),
			}
			if q := r.URL.RawQuery; q != "" {
				fields["query"] = q
			}
			logByStatus(log.WithContext(r.Context()), fields, sw.status)
		})
	}
}

// routeLabel keeps metric cardinality bounded: unknown paths share a label.
func routeLabel(path string, status int) string {
	if status == http.StatusNotFound && !isKnownRoute(path) {
		return "unmatched"
	}
	return path
}

func isKnownRoute(path string) bool {
	switch path {
	case "/rows", "/health", "/info":
		return true
	}
	return false
}

func isHealthEndpoint(path string) bool {
	return path == "/health"
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
