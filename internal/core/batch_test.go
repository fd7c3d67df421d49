package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBatchStateTransition(t *testing.T) {
	tests := []struct {
		from, to BatchState
		wantErr  bool
	}{
		{StateStart, StateProcessing, false},
		{StateStart, StateFinished, false},
		{StateProcessing, StateFinished, false},
		{StateProcessing, StateStart, true},
		{StateFinished, StateProcessing, true},
		{StateFinished, StateStart, true},
	}

	for _, tt := range tests {
		state := tt.from
		err := state.Transition(tt.from, tt.to)
		if (err != nil) != tt.wantErr {
			t.Errorf("Transition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
		}
		if err == nil && state != tt.to {
			t.Errorf("state after Transition(%s, %s) = %s", tt.from, tt.to, state)
		}
		if err != nil && state != tt.from {
			t.Errorf("failed Transition changed state to %s", state)
		}
	}
}

func TestBatchStateTransition_WrongFrom(t *testing.T) {
	state := StateProcessing
	if err := state.Transition(StateStart, StateProcessing); err == nil {
		t.Error("Transition from a state other than the current one should fail")
	}
}

// recordingBatch builds a batch whose operations append their label to log.
func recordingBatch(labels []string, failAt string, log *[]string) Batch {
	return Batch{
		Title: "test",
		Start: func(context.Context) ([]Operation, error) {
			ops := make([]Operation, len(labels))
			for i, l := range labels {
				ops[i] = Operation{Label: l, Run: func(context.Context) error {
					if l == failAt {
						return errors.New("boom")
					}
					*log = append(*log, l)
					return nil
				}}
			}
			return ops, nil
		},
	}
}

func TestRunBatch_RunsInOrder(t *testing.T) {
	var log []string
	var progress []int
	var finished int

	b := recordingBatch([]string{"a", "b", "c"}, "", &log)
	b.Progress = func(processed, total int) {
		if total != 3 {
			t.Errorf("Progress total = %d, want 3", total)
		}
		progress = append(progress, processed)
	}
	b.Finished = func(_ context.Context, o BatchOutcome) { finished++ }

	outcome := RunBatch(context.Background(), b)

	if !outcome.Success || outcome.Err != nil {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, log); diff != "" {
		t.Errorf("operation order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if finished != 1 {
		t.Errorf("Finished called %d times, want 1", finished)
	}
}

func TestRunBatch_StopsAtFirstError(t *testing.T) {
	var log []string
	var got BatchOutcome
	var finished int

	b := recordingBatch([]string{"a", "b", "c"}, "b", &log)
	b.Finished = func(_ context.Context, o BatchOutcome) {
		finished++
		got = o
	}

	outcome := RunBatch(context.Background(), b)

	if outcome.Success {
		t.Fatal("Success = true, want false")
	}
	if outcome.Processed != 1 || outcome.Total != 3 {
		t.Errorf("Processed/Total = %d/%d, want 1/3", outcome.Processed, outcome.Total)
	}
	if diff := cmp.Diff([]string{"a"}, log); diff != "" {
		t.Errorf("operations run mismatch (-want +got):\n%s", diff)
	}
	if outcome.Err == nil || outcome.Err.Error() != "b: boom" {
		t.Errorf("Err = %v, want %q", outcome.Err, "b: boom")
	}
	if finished != 1 || got.Success {
		t.Errorf("Finished calls = %d, outcome = %+v", finished, got)
	}
}

func TestRunBatch_StartFailure(t *testing.T) {
	startErr := errors.New("query failed")
	var finished int
	completed := false

	outcome := RunBatch(context.Background(), Batch{
		Start:    func(context.Context) ([]Operation, error) { return nil, startErr },
		Complete: func(context.Context) error { completed = true; return nil },
		Finished: func(context.Context, BatchOutcome) { finished++ },
	})

	if outcome.Success {
		t.Fatal("Success = true, want false")
	}
	if !errors.Is(outcome.Err, startErr) {
		t.Errorf("Err = %v, want %v", outcome.Err, startErr)
	}
	if completed {
		t.Error("Complete should not run after a failed start")
	}
	if finished != 1 {
		t.Errorf("Finished called %d times, want 1", finished)
	}
}

func TestRunBatch_NoStep(t *testing.T) {
	outcome := RunBatch(context.Background(), Batch{Title: "empty"})
	if outcome.Success {
		t.Error("batch without a start step should fail")
	}
}

func TestRunBatch_EmptyWorkList(t *testing.T) {
	completed := false
	outcome := RunBatch(context.Background(), Batch{
		Start:    func(context.Context) ([]Operation, error) { return nil, nil },
		Complete: func(context.Context) error { completed = true; return nil },
	})
	if !outcome.Success {
		t.Errorf("empty work list should succeed, got %v", outcome.Err)
	}
	if !completed {
		t.Error("Complete should run for an empty work list")
	}
}

func TestRunBatch_CompleteFailure(t *testing.T) {
	flushErr := errors.New("flush failed")
	outcome := RunBatch(context.Background(), Batch{
		Start:    func(context.Context) ([]Operation, error) { return nil, nil },
		Complete: func(context.Context) error { return flushErr },
	})
	if outcome.Success || !errors.Is(outcome.Err, flushErr) {
		t.Errorf("outcome = %+v, want failure wrapping %v", outcome, flushErr)
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var log []string

	outcome := RunBatch(ctx, Batch{
		Start: func(context.Context) ([]Operation, error) {
			return []Operation{
				{Label: "a", Run: func(context.Context) error {
					log = append(log, "a")
					cancel()
					return nil
				}},
				{Label: "b", Run: func(context.Context) error {
					log = append(log, "b")
					return nil
				}},
			}, nil
		},
	})

	if outcome.Success {
		t.Fatal("Success = true, want false")
	}
	if !errors.Is(outcome.Err, ErrBatchCancelled) {
		t.Errorf("Err = %v, want ErrBatchCancelled", outcome.Err)
	}
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", outcome.Err)
	}
	if diff := cmp.Diff([]string{"a"}, log); diff != "" {
		t.Errorf("operations run mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBatch_OperationObservesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	outcome := RunBatch(ctx, Batch{
		Start: func(context.Context) ([]Operation, error) {
			return []Operation{{Label: "slow", Run: func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return ctx.Err()
			}}}, nil
		},
	})

	if !errors.Is(outcome.Err, ErrBatchCancelled) {
		t.Errorf("Err = %v, want ErrBatchCancelled", outcome.Err)
	}
}

func TestRunBatch_OperationPanic(t *testing.T) {
	var (
		finished int
		got      BatchOutcome
	)

	outcome := RunBatch(context.Background(), Batch{
		Start: func(context.Context) ([]Operation, error) {
			return []Operation{
				{Label: "ok", Run: func(context.Context) error { return nil }},
				{Label: "bad", Run: func(context.Context) error { panic("boom") }},
			}, nil
		},
		Finished: func(_ context.Context, o BatchOutcome) {
			finished++
			got = o
		},
	})

	if finished != 1 {
		t.Fatalf("Finished called %d times, want 1", finished)
	}
	if outcome.Success || got.Success {
		t.Fatal("Success = true, want false")
	}
	if want := "bad: internal error: boom"; outcome.Err == nil || outcome.Err.Error() != want {
		t.Errorf("Err = %v, want %q", outcome.Err, want)
	}
	if outcome.Processed != 1 {
		t.Errorf("Processed = %d, want 1", outcome.Processed)
	}
}

func TestRunBatch_StartPanic(t *testing.T) {
	var finished int
	outcome := RunBatch(context.Background(), Batch{
		Start:    func(context.Context) ([]Operation, error) { panic("nil pool") },
		Finished: func(context.Context, BatchOutcome) { finished++ },
	})
	if outcome.Success || finished != 1 {
		t.Errorf("outcome = %+v, Finished calls = %d", outcome, finished)
	}
}

func TestRunBatch_CancelledDuringStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	outcome := RunBatch(ctx, Batch{
		Start: func(ctx context.Context) ([]Operation, error) {
			cancel()
			<-ctx.Done()
			return nil, fmt.Errorf("query item nodes: %w", ctx.Err())
		},
	})

	if !errors.Is(outcome.Err, ErrBatchCancelled) {
		t.Errorf("Err = %v, want ErrBatchCancelled", outcome.Err)
	}
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", outcome.Err)
	}
}
