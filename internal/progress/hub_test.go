package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func attemptEvent(runID uuid.UUID, worker int) Event {
	return Event{
		RunID:   runID,
		TS:      time.Now(),
		Stage:   StageAttemptDone,
		Worker:  worker,
		Outcome: enrich.OutcomeSuccess,
	}
}

func TestHubDeliversInOrderOnClose(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{FlushInterval: time.Hour, MaxBatch: 1000}, sink)
	runID := uuid.New()
	for i := 0; i < 10; i++ {
		hub.Emit(attemptEvent(runID, i))
	}
	require.NoError(t, hub.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, 10)
	for i, evt := range got {
		require.Equal(t, i, evt.Worker)
	}
	require.True(t, sink.closed)

	hub.Emit(attemptEvent(runID, 99))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 10)
}

func TestHubFlushesOnInterval(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{FlushInterval: 10 * time.Millisecond}, sink)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	hub.Emit(attemptEvent(uuid.New(), 0))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{}, sink)
	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(Event{RunID: uuid.New(), TS: time.Now(), Stage: StageAttemptDone, Outcome: "maybe"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.snapshot())
}

func TestMaskID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "*******8909", MaskID("12345678909"))
	require.Equal(t, "123", MaskID("123"))
}
