package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

func items(n int) []enrich.QueueItem {
	out := make([]enrich.QueueItem, n)
	for i := range out {
		out[i] = enrich.QueueItem{Seq: i}
	}
	return out
}

func TestQueuePopsInOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(items(3))
	require.Equal(t, 3, q.Len())
	for want := 0; want < 3; want++ {
		got, ok := q.PopOrEmpty()
		require.True(t, ok)
		require.Equal(t, want, got.Seq)
	}
	_, ok := q.PopOrEmpty()
	require.False(t, ok)
	require.Zero(t, q.Len())
}

func TestQueueEmpty(t *testing.T) {
	t.Parallel()

	q := NewQueue(nil)
	_, ok := q.PopOrEmpty()
	require.False(t, ok)
}

func TestQueueConcurrentPopsAreExclusive(t *testing.T) {
	t.Parallel()

	const n = 1000
	q := NewQueue(items(n))

	var (
		mu   sync.Mutex
		seen = make(map[int]int, n)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.PopOrEmpty()
				if !ok {
					return
				}
				mu.Lock()
				seen[item.Seq]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for seq, count := range seen {
		require.Equal(t, 1, count, "item %d popped more than once", seq)
	}
}
