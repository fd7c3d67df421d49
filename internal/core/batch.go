package core

// batch.go is the batch host: a fixed work list of operations executed
// sequentially, bracketed by a start step and a single finished callback.
//
// A batch moves through three states:
//
//	start -> processing -> finished
//	start -> finished            (start step failed)
//
// Transitions are validated; anything else is a programming error.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// BatchState is the lifecycle state of a batch.
type BatchState string

const (
	StateStart      BatchState = "start"
	StateProcessing BatchState = "processing"
	StateFinished   BatchState = "finished"
)

// ErrBatchCancelled is reported when the batch context ends mid-run.
var ErrBatchCancelled = errors.New("batch cancelled")

// Transition moves *s from from to to, or returns an error leaving *s unchanged.
func (s *BatchState) Transition(from, to BatchState) error {
	if *s != from {
		return fmt.Errorf("invalid batch transition: expected %s, got %s", from, *s)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed batch transition: %s -> %s", from, to)
	}
	*s = to
	return nil
}

func isAllowedTransition(from, to BatchState) bool {
	switch from {
	case StateStart:
		return to == StateProcessing || to == StateFinished
	case StateProcessing:
		return to == StateFinished
	default:
		return false
	}
}

// Operation is one unit of batch work.
type Operation struct {
	Label string
	Run   func(ctx context.Context) error
}

// BatchOutcome summarises a finished batch.
type BatchOutcome struct {
	Success   bool
	Total     int
	Processed int
	Err       error
}

// Batch describes the work of a run.
type Batch struct {
	Title string

	// Start prepares the destination and returns the fixed work list.
	Start func(ctx context.Context) ([]Operation, error)

	// Complete runs after the last operation, e.g. to flush buffered rows.
	// Optional.
	Complete func(ctx context.Context) error

	// Progress is called after each operation. Optional.
	Progress func(processed, total int)

	// Finished is called exactly once with the outcome. Optional.
	Finished func(ctx context.Context, outcome BatchOutcome)
}

// RunBatch executes b to completion and returns its outcome.
//
// Operations run in order on the calling goroutine. The first error, or the
// end of ctx, abandons the remaining operations. There are no retries and no
// rollback of work already done. A panic in the start step, an operation or
// the complete step fails the batch like an error would.
func RunBatch(ctx context.Context, b Batch) BatchOutcome {
	state := StateStart
	var outcome BatchOutcome

	finish := func(err error) BatchOutcome {
		if terr := state.Transition(state, StateFinished); terr != nil {
			err = errors.Join(err, terr)
		}
		outcome.Err = err
		outcome.Success = err == nil
		if b.Finished != nil {
			b.Finished(ctx, outcome)
		}
		return outcome
	}

	if b.Start == nil {
		return finish(fmt.Errorf("%s: no start step", b.Title))
	}
	var ops []Operation
	err := recovered(func() (err error) {
		ops, err = b.Start(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return finish(fmt.Errorf("%w: %w", ErrBatchCancelled, err))
		}
		return finish(err)
	}
	outcome.Total = len(ops)

	if err := state.Transition(StateStart, StateProcessing); err != nil {
		return finish(err)
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			return finish(fmt.Errorf("%w: %w", ErrBatchCancelled, ctx.Err()))
		}
		if err := recovered(func() error { return op.Run(ctx) }); err != nil {
			if ctx.Err() != nil {
				return finish(fmt.Errorf("%w: %s: %w", ErrBatchCancelled, op.Label, err))
			}
			return finish(fmt.Errorf("%s: %w", op.Label, err))
		}
		outcome.Processed++
		if b.Progress != nil {
			b.Progress(outcome.Processed, outcome.Total)
		}
	}

	if b.Complete != nil {
		if err := recovered(func() error { return b.Complete(ctx) }); err != nil {
			return finish(err)
		}
	}

	return finish(nil)
}

// recovered calls fn and turns a panic into an error.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in batch", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}
