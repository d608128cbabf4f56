package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
	"github.com/kbukum/rowquery/resilience"
)

// retryLoader reopens the source while it fails with a retryable error.
func retryLoader(load Loader, attempts int, log *logger.Logger) Loader {
	if attempts <= 1 {
		return load
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	return func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
		retry := cfg
		retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			log.WithContext(ctx).Warn("retrying row source", map[string]interface{}{
				"attempt":         attempt,
				"backoff_ms":      backoff.Milliseconds(),
				logger.FieldError: err.Error(),
			})
		}
		return resilience.Retry(ctx, retry, load)
	}
}

// limitConcurrency runs h inside bulkhead slots. Requests that find no
// slot within the queue timeout answer 503 BUSY.
func limitConcurrency(bh *resilience.Bulkhead, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := bh.Execute(c.Request.Context(), func(context.Context) error {
			h(c)
			return nil
		})
		if err != nil {
			RespondWithError(c, apperrors.Busy("query").WithCause(err))
		}
	}
}
