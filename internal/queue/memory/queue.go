// Package memory provides the in-process work queue shared by a run's workers.
package memory

import (
	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// Queue is a fixed, pre-filled queue. Items are handed out in insertion
// order and each at most once.
type Queue struct {
	ch chan enrich.QueueItem
}

// NewQueue builds a queue holding items. The queue is sealed on creation.
func NewQueue(items []enrich.QueueItem) *Queue {
	ch := make(chan enrich.QueueItem, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return &Queue{ch: ch}
}

// PopOrEmpty removes and returns the head item, or reports false once the
// queue is drained. It never blocks.
func (q *Queue) PopOrEmpty() (enrich.QueueItem, bool) {
	item, ok := <-q.ch
	return item, ok
}

// Len returns the number of items not yet popped.
func (q *Queue) Len() int {
	return len(q.ch)
}
