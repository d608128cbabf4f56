package query

import (
	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
)

const serviceName = "rowquery"

// Option configures how a query runs.
type Option func(*settings)

type settings struct {
	compare Comparator
	log     *logger.Logger
	metrics *observability.QueryMetrics
}

func newSettings(opts []Option) *settings {
	s := &settings{
		compare: CompareValues,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithComparator replaces CompareValues for sort keys.
func WithComparator(c Comparator) Option {
	return func(s *settings) {
		if c != nil {
			s.compare = c
		}
	}
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l.WithComponent("query")
		}
	}
}

// WithMetrics records executions and sort statistics on m.
func WithMetrics(m *observability.QueryMetrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}
