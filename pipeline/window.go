package pipeline

import "context"

// Skip discards the first n values and yields the rest.
// n <= 0 passes every value through.
func Skip[T any](p *Pipeline[T], n int) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &skipIter[T]{source: p.create(ctx), remaining: n}
		},
	}
}

// Take yields at most n values. Once n values have been produced the source
// is no longer pulled, so upstream work stops with the consumer.
// n <= 0 yields nothing.
func Take[T any](p *Pipeline[T], n int) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &takeIter[T]{source: p.create(ctx), remaining: n}
		},
	}
}

// Slice yields the values in [offset, offset+limit). A negative limit
// means no upper bound.
func Slice[T any](p *Pipeline[T], offset, limit int) *Pipeline[T] {
	out := p
	if offset > 0 {
		out = Skip(out, offset)
	}
	if limit >= 0 {
		out = Take(out, limit)
	}
	return out
}

type skipIter[T any] struct {
	source    Iterator[T]
	remaining int
}

func (it *skipIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for it.remaining > 0 {
		_, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			var zero T
			return zero, false, err
		}
		it.remaining--
	}
	return it.source.Next(ctx)
}

func (it *skipIter[T]) Close() error { return it.source.Close() }

type takeIter[T any] struct {
	source    Iterator[T]
	remaining int
}

func (it *takeIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	if it.remaining <= 0 {
		var zero T
		return zero, false, nil
	}
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return val, false, err
	}
	it.remaining--
	return val, true, nil
}

func (it *takeIter[T]) Close() error { return it.source.Close() }
