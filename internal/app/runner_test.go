package app

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/progress"
)

type mockBacklog struct {
	mock.Mock
}

func (m *mockBacklog) PendingRecords(ctx context.Context, batchID string) ([]enrich.BacklogRecord, error) {
	args := m.Called(ctx, batchID)
	recs, _ := args.Get(0).([]enrich.BacklogRecord)
	return recs, args.Error(1)
}

type fakeStore struct {
	mu      sync.Mutex
	results map[string]*enrich.Result
}

func newFakeStore() *fakeStore { return &fakeStore{results: map[string]*enrich.Result{}} }

func (s *fakeStore) Upsert(_ context.Context, id string, r *enrich.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = r
	return nil
}

func (s *fakeStore) snapshot() map[string]*enrich.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*enrich.Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

type nopPage struct{}

func (nopPage) Navigate(context.Context, string) error         { return nil }
func (nopPage) WaitVisible(context.Context, string) error      { return nil }
func (nopPage) Click(context.Context, string) error            { return nil }
func (nopPage) SendKeys(context.Context, string, string) error { return nil }
func (nopPage) Value(context.Context, string) (string, error)  { return "", nil }
func (nopPage) HTML(context.Context) (string, error)           { return "", nil }
func (nopPage) Screenshot(context.Context) ([]byte, error)     { return nil, nil }
func (nopPage) Close() error                                   { return nil }

type fakeSession struct{ closed *sync.WaitGroup }

func (fakeSession) Identity() enrich.Identity                    { return enrich.Identity{} }
func (fakeSession) NewPage(context.Context) (enrich.Page, error) { return nopPage{}, nil }
func (s fakeSession) Close() error                               { s.closed.Done(); return nil }

type fakeOpener struct {
	mu     sync.Mutex
	opened int
	closed sync.WaitGroup
}

func (o *fakeOpener) Open(context.Context, enrich.Identity) (enrich.Session, error) {
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
	o.closed.Add(1)
	return fakeSession{closed: &o.closed}, nil
}

type staticIdentities struct{}

func (staticIdentities) Next() enrich.Identity { return enrich.Identity{UserAgent: "test"} }

// scriptedInteractor answers per identifier.
type scriptedInteractor struct {
	outcomes map[string]enrich.Outcome
}

func (s scriptedInteractor) Attempt(_ context.Context, _ enrich.Page, rec enrich.NormalizedRecord) enrich.Outcome {
	if o, ok := s.outcomes[rec.ID]; ok {
		return o
	}
	return enrich.TechnicalFailure("navigate", errors.New("unexpected record"))
}

type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewRunID() (uuid.UUID, error) { return f.id, nil }

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

func strPtr(s string) *string { return &s }

func backlogFixture() []enrich.BacklogRecord {
	return []enrich.BacklogRecord{
		{ID: "111.222.333-44", BirthDate: "1980-02-03", MotherName: "Maria José"},
		{ID: "55566677788", BirthDate: "3/4/1990", MotherName: "ana"},
		{ID: "99988877766", BirthDate: "1975-12-31", MotherName: "Joana"},
		{ID: "00011122233", BirthDate: "31.12.1975", MotherName: "Malformada"},
	}
}

func newTestRunner(t *testing.T, backlog *mockBacklog, store *fakeStore, opener *fakeOpener, emitter *recordingEmitter, cfg RunConfig) *Runner {
	t.Helper()
	r, err := NewRunner(Deps{
		Backlog:    backlog,
		Store:      store,
		Opener:     opener,
		Identities: staticIdentities{},
		Interactor: scriptedInteractor{outcomes: map[string]enrich.Outcome{
			"11122233344": enrich.Success(enrich.Result{Local: strPtr("ESCOLA"), Zona: strPtr("001")}),
			"55566677788": enrich.NotFound("Pessoa não encontrada"),
			"99988877766": enrich.TechnicalFailure("submit", errors.New("timeout")),
		}},
		Clock:   fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		IDs:     fixedIDs{id: uuid.MustParse("0190f1e4-0000-7000-8000-000000000001")},
		Emitter: emitter,
	}, cfg, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRunnerRunEndToEnd(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	backlog.On("PendingRecords", mock.Anything, "batch-1").Return(backlogFixture(), nil).Once()
	store := newFakeStore()
	opener := &fakeOpener{}
	emitter := &recordingEmitter{}
	r := newTestRunner(t, backlog, store, opener, emitter, RunConfig{BatchID: "batch-1", Concurrency: 2})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	backlog.AssertExpectations(t)

	require.Equal(t, progress.Snapshot{Total: 4, Success: 1, NotFound: 1, Failure: 2}, sum.Counts)
	require.Equal(t, 1, sum.Malformed)
	require.Equal(t, 2, sum.Dispatch.Workers)
	require.Equal(t, sum.Counts, r.Snapshot())

	results := store.snapshot()
	require.Len(t, results, 2)
	require.Equal(t, "ESCOLA", *results["111.222.333-44"].Local)
	require.Equal(t, &enrich.Result{}, results["55566677788"])

	opener.closed.Wait()
	require.Equal(t, 2, opener.opened)

	stages := emitter.stages()
	require.Equal(t, progress.StageRunStart, stages[0])
	require.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	attempts := 0
	for _, s := range stages {
		if s == progress.StageAttemptDone {
			attempts++
		}
	}
	require.Equal(t, 3, attempts)
}

type recordingInteractor struct {
	mu      sync.Mutex
	seen    []enrich.NormalizedRecord
	outcome enrich.Outcome
}

func (r *recordingInteractor) Attempt(_ context.Context, _ enrich.Page, rec enrich.NormalizedRecord) enrich.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, rec)
	return r.outcome
}

func TestRunnerUnknownVoterIsPersistedAsNotFound(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	backlog.On("PendingRecords", mock.Anything, "batch-9").Return([]enrich.BacklogRecord{
		{ID: "123.456.789-00", BirthDate: "1990-05-21", MotherName: "joão da silva"},
	}, nil).Once()
	store := newFakeStore()
	interactor := &recordingInteractor{outcome: enrich.NotFound("Pessoa não encontrada no sistema do TRE")}
	r, err := NewRunner(Deps{
		Backlog:    backlog,
		Store:      store,
		Opener:     &fakeOpener{},
		Identities: staticIdentities{},
		Interactor: interactor,
		IDs:        fixedIDs{id: uuid.New()},
	}, RunConfig{BatchID: "batch-9", Concurrency: 1}, nil)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.Snapshot{Total: 1, NotFound: 1}, sum.Counts)
	require.Equal(t, []enrich.NormalizedRecord{
		{ID: "12345678900", BirthDate: "21/05/1990", MotherName: "JOAO DA SILVA"},
	}, interactor.seen)
	require.Equal(t, map[string]*enrich.Result{"123.456.789-00": {}}, store.snapshot())
}

func TestRunnerDryRun(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	backlog.On("PendingRecords", mock.Anything, "batch-1").Return(backlogFixture(), nil)
	store := newFakeStore()
	opener := &fakeOpener{}
	emitter := &recordingEmitter{}
	r := newTestRunner(t, backlog, store, opener, emitter, RunConfig{BatchID: "batch-1", Concurrency: 2, DryRun: true})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, sum.DryRun)
	require.Equal(t, 1, sum.Malformed)
	require.Zero(t, opener.opened)
	require.Empty(t, store.snapshot())
	require.Empty(t, emitter.stages())

	var buf bytes.Buffer
	PrintSummary(&buf, sum)
	require.Contains(t, buf.String(), "3 queued, 1 malformed")
}

func TestRunnerPreflightFailureAborts(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	r, err := NewRunner(Deps{
		Backlog: backlog,
		IDs:     fixedIDs{id: uuid.New()},
		Probe:   func(context.Context) error { return errors.New("503") },
	}, RunConfig{BatchID: "b", DryRun: true}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.ErrorContains(t, err, "preflight")
	backlog.AssertNotCalled(t, "PendingRecords", mock.Anything, mock.Anything)
}

func TestRunnerBacklogError(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	backlog.On("PendingRecords", mock.Anything, "b").Return(nil, errors.New("db down"))
	emitter := &recordingEmitter{}
	r := newTestRunner(t, backlog, newFakeStore(), &fakeOpener{}, emitter, RunConfig{BatchID: "b", Concurrency: 1})

	_, err := r.Run(context.Background())
	require.ErrorContains(t, err, "load backlog")
	require.Empty(t, emitter.stages())
}

func TestRunnerCanceled(t *testing.T) {
	t.Parallel()

	backlog := &mockBacklog{}
	backlog.On("PendingRecords", mock.Anything, "b").Return(backlogFixture(), nil)
	emitter := &recordingEmitter{}
	r := newTestRunner(t, backlog, newFakeStore(), &fakeOpener{}, emitter, RunConfig{BatchID: "b", Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(1), sum.Counts.Failure)
	stages := emitter.stages()
	require.Equal(t, progress.StageRunError, stages[len(stages)-1])
}

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(Deps{}, RunConfig{BatchID: "b"}, nil)
	require.Error(t, err)
	_, err = NewRunner(Deps{Backlog: &mockBacklog{}}, RunConfig{}, nil)
	require.Error(t, err)
	_, err = NewRunner(Deps{Backlog: &mockBacklog{}}, RunConfig{BatchID: "b"}, nil)
	require.ErrorContains(t, err, "required")
}
