package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/transform"

	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
)

// CSV reads one query.Row per record. It implements pipeline.Iterator and
// can be consumed once.
type CSV struct {
	reader *csv.Reader
	closer io.Closer
	name   string
	line   int
	done   bool
}

// NewCSV wraps r. The caller keeps ownership of r.
func NewCSV(r io.Reader, opts ...CSVOption) (*CSV, error) {
	return newCSV(r, nil, "reader", opts)
}

// OpenCSV opens the file at path. Close closes the file.
func OpenCSV(path string, opts ...CSVOption) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("file", path).WithCause(err)
		}
		return nil, apperrors.SourceUnavailable("csv", err).WithDetail("path", path)
	}
	c, err := newCSV(f, f, path, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

func newCSV(r io.Reader, closer io.Closer, name string, opts []CSVOption) (*CSV, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if o.encoding != nil {
		r = transform.NewReader(r, o.encoding.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.Comma = o.delimiter
	cr.Comment = o.comment
	cr.LazyQuotes = o.lazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	return &CSV{reader: cr, closer: closer, name: name}, nil
}

// Next returns the next record. ctx is checked before every read.
func (c *CSV) Next(ctx context.Context) (query.Row, bool, error) {
	if c.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	record, err := c.reader.Read()
	if errors.Is(err, io.EOF) {
		c.done = true
		return nil, false, nil
	}
	if err != nil {
		return nil, false, c.readError(err)
	}
	c.line++
	return query.StringRow(record), true, nil
}

// readError reports malformed records as INVALID_FORMAT and anything else
// as a retryable SOURCE_UNAVAILABLE.
func (c *CSV) readError(err error) error {
	record := c.line + 1
	cause := fmt.Errorf("reading %s record %d: %w", c.name, record, err)
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return apperrors.InvalidFormat(c.name, "CSV").WithDetail("record", record).WithCause(cause)
	}
	return apperrors.SourceUnavailable("csv", cause).WithDetail("record", record)
}

// Close releases the underlying file, if any. It is safe to call twice.
func (c *CSV) Close() error {
	c.done = true
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

// Pipeline returns a single-use pipeline over c.
func (c *CSV) Pipeline() *pipeline.Pipeline[query.Row] {
	return pipeline.From[query.Row](c)
}

// Records returns how many records have been read so far.
func (c *CSV) Records() int { return c.line }

// FileLoader returns a loader that opens path afresh on every call, so each
// pipeline it returns reads the file from the start.
func FileLoader(path string, opts ...CSVOption) func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
	return func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := OpenCSV(path, opts...)
		if err != nil {
			return nil, err
		}
		return c.Pipeline(), nil
	}
}

// FileHealth reports whether path can be opened for reading.
func FileHealth(path string) observability.HealthChecker {
	return observability.CheckerFunc(func(_ context.Context) observability.Health {
		h := observability.Health{Name: "csv", Details: map[string]string{"path": path}}
		f, err := os.Open(path)
		if err != nil {
			h.Status = observability.HealthStatusDown
			h.Message = err.Error()
			return h
		}
		_ = f.Close()
		h.Status = observability.HealthStatusUp
		return h
	})
}
