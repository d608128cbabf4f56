package query

import (
	"errors"
	"testing"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"asc", Ascending, false},
		{"ASC", Ascending, false},
		{" desc ", Descending, false},
		{"DESC", Descending, false},
		{"up", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDirection(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("ParseDirection(%q) = %v, %v", tc.in, got, err)
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in      string
		want    SortCriterion
		wantErr bool
	}{
		{"0:asc", SortCriterion{0, Ascending}, false},
		{"2:desc", SortCriterion{2, Descending}, false},
		{"3", SortCriterion{3, Ascending}, false},
		{" 1 : DESC ", SortCriterion{1, Descending}, false},
		{"-1:asc", SortCriterion{}, true},
		{"x:asc", SortCriterion{}, true},
		{"0:sideways", SortCriterion{}, true},
		{"", SortCriterion{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSort(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("ParseSort(%q) = %v, %v", tc.in, got, err)
			}
		})
	}
}

func TestSortCriterion_String(t *testing.T) {
	if got := (SortCriterion{Column: 2, Direction: Descending}).String(); got != "2:desc" {
		t.Errorf("expected 2:desc, got %s", got)
	}
	if got := Direction(9).String(); got != "Direction(9)" {
		t.Errorf("unexpected %s", got)
	}
}

func TestStringRow(t *testing.T) {
	row := StringRow([]string{"a", "", "c"})
	if len(row) != 3 || row[0] != "a" || row[1] != "" {
		t.Errorf("unexpected row %v", row)
	}
	if got := (Row{"x", nil, 3}).Strings(); got[0] != "x" || got[1] != "" || got[2] != "3" {
		t.Errorf("unexpected strings %v", got)
	}
}

func TestPredicates(t *testing.T) {
	row := Row{"john", "doe", 30}
	tests := []struct {
		name  string
		p     Predicate
		index int
		want  bool
	}{
		{"skip header drops index 0", SkipHeader(), 0, false},
		{"skip header keeps index 1", SkipHeader(), 1, true},
		{"has column", HasColumn(2), 0, true},
		{"missing column", HasColumn(3), 0, false},
		{"negative column", HasColumn(-1), 0, false},
		{"column equals", ColumnEquals(1, "doe"), 0, true},
		{"column equals numeric", ColumnEquals(2, "30"), 0, true},
		{"column differs", ColumnEquals(0, "jane"), 0, false},
		{"column equals missing", ColumnEquals(5, "x"), 0, false},
		{"all", All(HasColumn(0), ColumnEquals(1, "doe")), 0, true},
		{"all short circuits", All(HasColumn(9), ColumnEquals(1, "doe")), 0, false},
		{"all empty", All(), 0, true},
		{"not", Not(HasColumn(9)), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p(row, tc.index); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
