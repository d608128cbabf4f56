// Package query filters, sorts and paginates a sequence of rows.
//
// A Query accumulates configuration and is consumed by Execute:
//
//	q := query.New()
//	q.AddFilter(query.SkipHeader())
//	if _, err := q.AddSort(0, query.Ascending); err != nil {
//		return err
//	}
//	q.MustLimit(10)
//	rows, err := pipeline.Collect(ctx, q.Execute(src))
//
// Stages always run in the order filter, sort, window, map. Filtering and
// windowing are lazy. Sorting materializes every row that survives the
// filters, so it holds O(n) rows in memory at once.
//
// Build snapshots the configuration into an immutable Spec that can be run
// any number of times with Run or RunMap and shared between goroutines.
package query
