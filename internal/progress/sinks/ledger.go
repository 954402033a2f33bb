package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/voter-enrichment/internal/progress"
	"github.com/JakeFAU/voter-enrichment/internal/store"
)

// LedgerSink records run start and completion in a store.RunRepository.
type LedgerSink struct {
	repo store.RunRepository
}

// NewLedgerSink constructs a LedgerSink for repo.
func NewLedgerSink(repo store.RunRepository) *LedgerSink {
	return &LedgerSink{repo: repo}
}

// Consume persists run lifecycle events and ignores the rest.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunUUID(), evt.Batch, evt.TS, evt.Counts.Total); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			status := store.RunSuccess
			var note *string
			if evt.Stage == progress.StageRunError {
				status = store.RunError
				if evt.Note != "" {
					n := evt.Note
					note = &n
				}
			}
			counts := store.RunCounts{
				Total:    evt.Counts.Total,
				Success:  evt.Counts.Success,
				NotFound: evt.Counts.NotFound,
				Failure:  evt.Counts.Failure,
			}
			if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, counts, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
