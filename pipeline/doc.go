// Package pipeline provides composable, pull-based sequence operators.
//
// Pipelines are lazy: no work happens until values are pulled via Collect,
// Drain, ForEach or Iter. Each stage pulls from the previous stage on demand,
// so a consumer that stops early (or a Take that is satisfied) stops all
// upstream work.
//
// # Operators
//
//   - Map: transform each value
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value (logging, metrics)
//   - Enumerate / Values: attach and strip source positions
//   - Skip / Take / Slice: offset and limit windows
//
// # Usage
//
//	src := pipeline.FromSlice([]int{1, 2, 3, 4, 5})
//	tagged := pipeline.Enumerate(src)
//	odd := pipeline.Filter(tagged, func(v pipeline.Indexed[int]) bool { return v.Index%2 == 0 })
//	page := pipeline.Slice(pipeline.Values(odd), 1, 2)
//	results, _ := pipeline.Collect(ctx, page) // [3 5]
package pipeline
