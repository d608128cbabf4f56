package pipeline

import "context"

// Indexed pairs a value with its position in the pipeline it was enumerated from.
type Indexed[T any] struct {
	Index int
	Value T
}

// Enumerate tags each value with its 0-based position in p.
// Downstream filters keep the tag, so positions always refer to the source.
func Enumerate[T any](p *Pipeline[T]) *Pipeline[Indexed[T]] {
	return &Pipeline[Indexed[T]]{
		create: func(ctx context.Context) Iterator[Indexed[T]] {
			return &enumerateIter[T]{source: p.create(ctx)}
		},
	}
}

// Values strips the positions added by Enumerate.
func Values[T any](p *Pipeline[Indexed[T]]) *Pipeline[T] {
	return Map(p, func(_ context.Context, in Indexed[T]) (T, error) {
		return in.Value, nil
	})
}

// Map transforms each value using fn.
func Map[I, O any](p *Pipeline[I], fn func(context.Context, I) (O, error)) *Pipeline[O] {
	return &Pipeline[O]{
		create: func(ctx context.Context) Iterator[O] {
			return &mapIter[I, O]{source: p.create(ctx), fn: fn}
		},
	}
}

// Filter keeps only values that satisfy the predicate.
func Filter[T any](p *Pipeline[T], fn func(T) bool) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &filterIter[T]{source: p.create(ctx), fn: fn}
		},
	}
}

// Tap calls fn as a side-effect for each value, then passes the value through unchanged.
// Use for logging, metrics, or counting.
func Tap[T any](p *Pipeline[T], fn func(context.Context, T) error) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &tapIter[T]{source: p.create(ctx), fn: fn}
		},
	}
}

// --- Iterator implementations ---

type enumerateIter[T any] struct {
	source Iterator[T]
	next   int
}

func (it *enumerateIter[T]) Next(ctx context.Context) (result Indexed[T], ok bool, err error) {
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return Indexed[T]{}, false, err
	}
	result = Indexed[T]{Index: it.next, Value: val}
	it.next++
	return result, true, nil
}

func (it *enumerateIter[T]) Close() error { return it.source.Close() }

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (result O, ok bool, err error) {
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		var zero O
		return zero, false, err
	}
	out, err := it.fn(ctx, val)
	if err != nil {
		var zero O
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }

type filterIter[T any] struct {
	source Iterator[T]
	fn     func(T) bool
}

func (it *filterIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for {
		val, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return val, false, err
		}
		if it.fn(val) {
			return val, true, nil
		}
	}
}

func (it *filterIter[T]) Close() error { return it.source.Close() }

type tapIter[T any] struct {
	source Iterator[T]
	fn     func(context.Context, T) error
}

func (it *tapIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return val, ok, err
	}
	if err := it.fn(ctx, val); err != nil {
		var zero T
		return zero, false, err
	}
	return val, true, nil
}

func (it *tapIter[T]) Close() error { return it.source.Close() }
