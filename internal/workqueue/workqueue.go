// Package workqueue runs a batch of homogeneous tasks with a fixed
// concurrency budget. It knows nothing about jobs or audit sections;
// callers wrap their work function so that failures are captured inside
// the result value instead of aborting the batch.
package workqueue

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidLimit = errors.New("workqueue: concurrency limit must be >= 1")

// Run executes fn once per input with at most limit invocations in
// flight. results[i] always corresponds to inputs[i] regardless of
// completion order. A limit larger than len(inputs) degenerates to full
// parallelism; an empty input slice returns immediately.
//
// fn receives the input and its position index. It has no error return:
// the caller converts failures into the result type, so one failing
// task never cancels its siblings.
func Run[T, R any](ctx context.Context, inputs []T, limit int, fn func(ctx context.Context, input T, index int) R) ([]R, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	g := &errgroup.Group{}
	g.SetLimit(limit)

	for i, input := range inputs {
		g.Go(func() error {
			results[i] = fn(ctx, input, i)
			return nil
		})
	}

	// fn never returns an error, so Wait only synchronizes completion.
	_ = g.Wait()
	return results, nil
}
