package enrich

import (
	"context"
	"io"
	"time"
)

// Page is a single browser tab owned by one attempt.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, keys string) error
	Value(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Session is an isolated browser instance presenting one Identity.
type Session interface {
	Identity() Identity
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// SessionOpener starts sessions. Failures wrap ErrSessionInit.
type SessionOpener interface {
	Open(ctx context.Context, identity Identity) (Session, error)
}

// IdentitySource yields a fresh client identity per session.
type IdentitySource interface {
	Next() Identity
}

// Interactor drives the remote form for one record on one page.
type Interactor interface {
	Attempt(ctx context.Context, page Page, rec NormalizedRecord) Outcome
}

// BacklogReader loads the records that still need enrichment.
type BacklogReader interface {
	PendingRecords(ctx context.Context, batchID string) ([]BacklogRecord, error)
}

// ResultStore writes an outcome back to the backlog. A nil result is stored
// as all-null fields with biometry false.
type ResultStore interface {
	Upsert(ctx context.Context, id string, result *Result) error
}

// Queue hands out work items at most once each.
type Queue interface {
	PopOrEmpty() (QueueItem, bool)
	Len() int
}

// Pacer delays a worker between consecutive records.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// BlobStore persists binary artifacts such as failure screenshots.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Publisher sends a message to a topic and returns its server id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}
