package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/logging"
	"github.com/JonMunkholm/simplestruct/internal/resolver"
)

// rootType returns the content type whose nodes drive def's runs.
func (s *Service) rootType(def ReportDefinition) string {
	if s.cfg.Flatten.RootType != "" {
		return s.cfg.Flatten.RootType
	}
	return def.RootType
}

// processRun executes one report rebuild as a batch:
//
//	start:      truncate the table, enumerate root nodes (the fixed work list)
//	processing: one operation per root, flattening it into rows
//	finished:   exactly one success or failure notification
func (s *Service) processRun(ctx context.Context, run *activeRun, def ReportDefinition) {
	startTime := time.Now()
	key := def.Info.Key
	rootType := s.rootType(def)
	log := logging.WithFields(ctx, "run_id", run.ID, "table", key)

	res := s.Resolver()
	w := newRowWriter(s.sink, def, s.cfg.Flatten.BatchSize)
	var produced int64

	s.metrics.runStarted()
	requester := RequesterFrom(ctx)
	log.Info("run started",
		"root_type", rootType,
		"ip", requester.IP,
		"user_agent", requester.UserAgent,
	)

	batch := Batch{
		Title: def.Info.Label,
		Start: func(ctx context.Context) ([]Operation, error) {
			if err := s.truncate(ctx, def); err != nil {
				return nil, err
			}
			roots, err := res.NodesByType(ctx, rootType)
			if err != nil {
				return nil, err
			}

			ops := make([]Operation, len(roots))
			for i, root := range roots {
				ops[i] = rootOperation(res, def, rootType, root, func(ctx context.Context, row Row) error {
					if err := w.Write(ctx, row); err != nil {
						return err
					}
					produced++
					return nil
				})
			}

			run.update(func(p *RunProgress) {
				p.Phase = PhaseProcessing
				p.TotalRoots = len(ops)
			})
			return ops, nil
		},
		Complete: w.Flush,
		Progress: func(processed, total int) {
			s.metrics.rootProcessed(key)
			run.update(func(p *RunProgress) {
				p.Processed = processed
				p.Rows = produced
			})
		},
		Finished: func(ctx context.Context, outcome BatchOutcome) {
			result := &RunResult{
				RunID:       run.ID,
				TableKey:    key,
				Success:     outcome.Success,
				TotalRoots:  outcome.Total,
				Processed:   outcome.Processed,
				Rows:        w.Written(),
				StartedAt:   startTime,
				Duration:    time.Since(startTime),
				RequestedBy: requester.IP,
			}

			phase := PhaseComplete
			msg := Message{
				Type:     MessageStatus,
				Text:     fmt.Sprintf("%s rebuilt: %d rows from %d %s nodes.", def.Info.Label, result.Rows, result.Processed, rootType),
				TableKey: key,
				RunID:    run.ID,
			}
			if !outcome.Success {
				result.Error = outcome.Err.Error()
				phase = PhaseFailed
				if errors.Is(outcome.Err, ErrBatchCancelled) {
					phase = PhaseCancelled
				}
				msg.Type = MessageError
				msg.Text = fmt.Sprintf("%s finished with an error. %s", def.Info.Label, FormatUserError(outcome.Err))
				log.Error("run failed",
					"error", outcome.Err,
					"processed", outcome.Processed,
					"total", outcome.Total,
				)
			} else {
				log.Info("run complete",
					"roots", outcome.Processed,
					"rows", result.Rows,
					"duration_ms", result.Duration.Milliseconds(),
				)
			}

			s.notifier.Notify(ctx, msg)
			s.metrics.runFinished(key, outcome.Success, result.Rows, result.Duration)
			s.recordHistory(*result)
			run.finish(result, phase)
		},
	}

	RunBatch(ctx, batch)
	s.cleanup(run.ID, resultRetention)
}

// rootOperation builds the batch operation that flattens one root.
func rootOperation(res *resolver.Resolver, def ReportDefinition, rootType string, root *entity.Entity, emit func(context.Context, Row) error) Operation {
	return Operation{
		Label: fmt.Sprintf("%s %d", rootType, root.ID),
		Run: func(ctx context.Context) error {
			rows, err := def.BuildRows(ctx, res, root)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := emit(ctx, row); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
