package query

import (
	"errors"

	apperrors "github.com/kbukum/rowquery/errors"
)

var (
	// ErrInvalidArgument is the cause of every configuration error.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInconsistentRow is the cause of a sort aborted by a row that lacks a sort column.
	ErrInconsistentRow = errors.New("inconsistent row")
)

func invalidArgument(field string, value any, reason string) error {
	return apperrors.InvalidArgument(field, value, reason).WithCause(ErrInvalidArgument)
}

func inconsistentRow(rowIndex, column int) error {
	return apperrors.InconsistentRow(rowIndex, column).WithCause(ErrInconsistentRow)
}

// inconsistentColumn extracts the column of an InconsistentRow error.
func inconsistentColumn(err error) (int, bool) {
	if !errors.Is(err, ErrInconsistentRow) {
		return 0, false
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return 0, false
	}
	col, ok := appErr.Details["column"].(int)
	return col, ok
}
