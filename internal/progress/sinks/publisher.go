package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
)

// OutcomeMessage is the payload published for every finished attempt.
type OutcomeMessage struct {
	RunID       string    `json:"run_id"`
	Batch       string    `json:"batch,omitempty"`
	Record      string    `json:"record"`
	Outcome     string    `json:"outcome"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Persisted   bool      `json:"persisted"`
	DurationMS  int64     `json:"duration_ms"`
	At          time.Time `json:"at"`
}

// PublisherSink publishes attempt outcomes to a topic so downstream systems
// can react without polling the backlog.
type PublisherSink struct {
	pub   enrich.Publisher
	topic string
}

// NewPublisherSink publishes to topic through pub.
func NewPublisherSink(pub enrich.Publisher, topic string) *PublisherSink {
	return &PublisherSink{pub: pub, topic: topic}
}

// Consume publishes every ATTEMPT_DONE event in batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageAttemptDone {
			continue
		}
		msg := OutcomeMessage{
			RunID:       uuid.UUID(evt.RunID).String(),
			Batch:       evt.Batch,
			Record:      evt.Record,
			Outcome:     string(evt.Outcome),
			FailedStage: evt.FailedStage,
			Persisted:   evt.Outcome != enrich.OutcomeFailure && !evt.PersistFailed,
			DurationMS:  evt.Dur.Milliseconds(),
			At:          evt.TS,
		}
		if _, err := s.pub.Publish(ctx, s.topic, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish outcome: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the publisher.
func (s *PublisherSink) Close(context.Context) error {
	if err := s.pub.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
