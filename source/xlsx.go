package source

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
)

// Format names how a source's bytes decode into rows.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat infers the format from the extension of name. Anything other
// than .xlsx or .xlsm is read as CSV.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// XLSX streams one query.Row per worksheet row. Trailing empty cells are
// dropped, so rows may differ in length just like ragged CSV records.
type XLSX struct {
	file *excelize.File
	rows *excelize.Rows
	name string
	line int
	done bool
}

// OpenXLSX opens sheet of the workbook at path. An empty sheet selects the
// first one.
func OpenXLSX(path, sheet string) (*XLSX, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("file", path).WithCause(err)
		}
		return nil, workbookError(path, err)
	}
	return newXLSX(f, path, sheet)
}

// NewXLSX reads a workbook from r. Workbooks are zip archives, so r is read
// to the end before the first row is returned.
func NewXLSX(r io.Reader, sheet string) (*XLSX, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, workbookError("reader", err)
	}
	return newXLSX(f, "reader", sheet)
}

// workbookError reports bytes that are not a zip archive as INVALID_FORMAT.
func workbookError(name string, err error) error {
	if errors.Is(err, zip.ErrFormat) {
		return apperrors.InvalidFormat("xlsx", "an Office Open XML workbook").WithCause(err).WithDetail("path", name)
	}
	return apperrors.SourceUnavailable("xlsx", err).WithDetail("path", name)
}

func newXLSX(f *excelize.File, name, sheet string) (*XLSX, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, apperrors.NotFound("sheet", "").WithDetail("path", name)
	}
	if sheet == "" {
		sheet = sheets[0]
	}
	if !slices.Contains(sheets, sheet) {
		_ = f.Close()
		return nil, apperrors.NotFound("sheet", sheet).WithDetails(map[string]any{"path": name, "sheets": sheets})
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, apperrors.SourceUnavailable("xlsx", err).WithDetail("path", name)
	}
	return &XLSX{file: f, rows: rows, name: name + "#" + sheet}, nil
}

// Next returns the next worksheet row. ctx is checked before every read.
func (x *XLSX) Next(ctx context.Context) (query.Row, bool, error) {
	if x.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if !x.rows.Next() {
		x.done = true
		if err := x.rows.Error(); err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", x.name, err)
		}
		return nil, false, nil
	}
	cols, err := x.rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s row %d: %w", x.name, x.line+1, err)
	}
	x.line++
	return query.StringRow(cols), true, nil
}

// Close releases the row reader and the workbook. It is safe to call twice.
func (x *XLSX) Close() error {
	x.done = true
	if x.file == nil {
		return nil
	}
	err := errors.Join(x.rows.Close(), x.file.Close())
	x.file = nil
	return err
}

// Pipeline returns a single-use pipeline over x.
func (x *XLSX) Pipeline() *pipeline.Pipeline[query.Row] {
	return pipeline.From[query.Row](x)
}

// Records returns how many rows have been read so far.
func (x *XLSX) Records() int { return x.line }

// XLSXLoader returns a loader that reopens the workbook on every call.
func XLSXLoader(path, sheet string) func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
	return func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, err := OpenXLSX(path, sheet)
		if err != nil {
			return nil, err
		}
		return x.Pipeline(), nil
	}
}
