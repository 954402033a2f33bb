package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// Snapshot is a point-in-time view of the run counters.
type Snapshot struct {
	Total    int64 `json:"total"`
	Success  int64 `json:"success"`
	NotFound int64 `json:"not_found"`
	Failure  int64 `json:"failure"`
}

// Processed is the number of finished attempts.
func (s Snapshot) Processed() int64 {
	return s.Success + s.NotFound + s.Failure
}

// Pending is the number of records not yet attempted.
func (s Snapshot) Pending() int64 {
	return s.Total - s.Processed()
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// Line renders the one-line progress summary.
func (s Snapshot) Line() string {
	return fmt.Sprintf("processed %d/%d | success %d (%.1f%%) | not found %d (%.1f%%) | failure %d (%.1f%%) | pending %d (%.1f%%)",
		s.Processed(), s.Total,
		s.Success, pct(s.Success, s.Total),
		s.NotFound, pct(s.NotFound, s.Total),
		s.Failure, pct(s.Failure, s.Total),
		s.Pending(), pct(s.Pending(), s.Total),
	)
}

// Tracker holds the run counters. Each Record call performs exactly one
// atomic increment, so Processed always equals the sum of the buckets.
type Tracker struct {
	total    int64
	success  atomic.Int64
	notFound atomic.Int64
	failure  atomic.Int64
}

// NewTracker creates a Tracker for a backlog of total records.
func NewTracker(total int) *Tracker {
	return &Tracker{total: int64(total)}
}

// Record counts one finished attempt and returns the resulting snapshot.
func (t *Tracker) Record(kind enrich.OutcomeKind) Snapshot {
	switch kind {
	case enrich.OutcomeSuccess:
		t.success.Add(1)
	case enrich.OutcomeNotFound:
		t.notFound.Add(1)
	default:
		t.failure.Add(1)
	}
	return t.Snapshot()
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Total:    t.total,
		Success:  t.success.Load(),
		NotFound: t.notFound.Load(),
		Failure:  t.failure.Load(),
	}
}

// LineReporter rewrites the progress line on a terminal-style writer.
type LineReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLineReporter writes progress lines to out.
func NewLineReporter(out io.Writer) *LineReporter {
	return &LineReporter{out: out}
}

// Report overwrites the current line with s.
func (r *LineReporter) Report(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "\r%s", s.Line())
}

// Finish terminates the progress line.
func (r *LineReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out)
}
