package random

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeededSequenceIsReproducible(t *testing.T) {
	t.Parallel()

	a, b := New(7), New(7)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}

func TestBetween(t *testing.T) {
	t.Parallel()

	src := New(1)
	for i := 0; i < 200; i++ {
		d := Between(src, 10*time.Millisecond, 20*time.Millisecond)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.LessOrEqual(t, d, 20*time.Millisecond)
	}
	require.Equal(t, 5*time.Millisecond, Between(src, 5*time.Millisecond, time.Millisecond))
}

func TestLockedConcurrentUse(t *testing.T) {
	t.Parallel()

	src := NewFromTime()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = src.Float64()
				_ = src.IntN(10)
			}
		}()
	}
	wg.Wait()
}
