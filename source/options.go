package source

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	apperrors "github.com/kbukum/rowquery/errors"
)

// CSVOption configures a CSV source.
type CSVOption func(*csvOptions) error

type csvOptions struct {
	delimiter  rune
	comment    rune
	lazyQuotes bool
	encoding   encoding.Encoding
}

func defaultCSVOptions() csvOptions {
	return csvOptions{delimiter: ','}
}

// CheckOptions reports the error NewCSV would return for opts without
// reading anything.
func CheckOptions(opts ...CSVOption) error {
	_, err := resolveOptions(opts)
	return err
}

func resolveOptions(opts []CSVOption) (csvOptions, error) {
	o := defaultCSVOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, apperrors.InvalidInput("csv", err.Error()).WithCause(err)
		}
	}
	if o.comment != 0 && o.comment == o.delimiter {
		err := fmt.Errorf("comment %q equals the delimiter", o.comment)
		return o, apperrors.InvalidInput("csv", err.Error()).WithCause(err)
	}
	return o, nil
}

// WithDelimiter sets the field delimiter. The default is ','.
func WithDelimiter(r rune) CSVOption {
	return func(o *csvOptions) error {
		if r == 0 || r == '"' || r == '\r' || r == '\n' {
			return fmt.Errorf("invalid delimiter %q", r)
		}
		o.delimiter = r
		return nil
	}
}

// WithComment skips lines starting with r.
func WithComment(r rune) CSVOption {
	return func(o *csvOptions) error {
		o.comment = r
		return nil
	}
}

// WithLazyQuotes tolerates quotes in unquoted fields and bare quotes in quoted fields.
func WithLazyQuotes() CSVOption {
	return func(o *csvOptions) error {
		o.lazyQuotes = true
		return nil
	}
}

// WithEncoding decodes input in the named character set (e.g. "iso-8859-15",
// "windows-1252") to UTF-8. Names follow the WHATWG encoding labels.
func WithEncoding(name string) CSVOption {
	return func(o *csvOptions) error {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return fmt.Errorf("unknown encoding %q: %w", name, err)
		}
		o.encoding = enc
		return nil
	}
}
