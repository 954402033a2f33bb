package sinks

import (
	"context"

	"github.com/JakeFAU/voter-enrichment/internal/metrics"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
)

// PrometheusSink feeds progress events into the run's collectors.
type PrometheusSink struct {
	m *metrics.Metrics
}

// NewPrometheusSink wraps m.
func NewPrometheusSink(m *metrics.Metrics) *PrometheusSink {
	return &PrometheusSink{m: m}
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionOpen:
			s.m.SessionOpened()
		case progress.StageSessionClose:
			s.m.SessionClosed()
		case progress.StageSessionError:
			s.m.SessionFailed()
		case progress.StageAttemptDone:
			s.m.ObserveAttempt(string(evt.Outcome), evt.FailedStage, evt.Dur)
			if evt.PersistFailed {
				s.m.ObservePersistFailure()
			}
			s.m.SetPending(evt.Counts.Pending())
		case progress.StageRunStart:
			s.m.SetPending(evt.Counts.Pending())
		case progress.StageRunDone:
			s.m.ObserveRun("success")
		case progress.StageRunError:
			s.m.ObserveRun("error")
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
