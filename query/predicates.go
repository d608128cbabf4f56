package query

// SkipHeader drops the first row of the original input.
func SkipHeader() Predicate {
	return func(_ Row, index int) bool { return index > 0 }
}

// HasColumn keeps rows that have a value at column.
func HasColumn(column int) Predicate {
	return func(row Row, _ int) bool {
		return column >= 0 && column < len(row)
	}
}

// ColumnEquals keeps rows whose value at column compares equal to value
// under CompareValues. Rows without the column are dropped.
func ColumnEquals(column int, value any) Predicate {
	return func(row Row, _ int) bool {
		if column < 0 || column >= len(row) {
			return false
		}
		return CompareValues(row[column], value) == 0
	}
}

// All combines predicates by logical AND, short-circuiting in order.
func All(preds ...Predicate) Predicate {
	return func(row Row, index int) bool {
		for _, p := range preds {
			if p != nil && !p(row, index) {
				return false
			}
		}
		return true
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(row Row, index int) bool { return !p(row, index) }
}
