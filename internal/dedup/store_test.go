package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_MarkOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seen, err := s.HasProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := s.MarkProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkProcessed(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, again)

	seen, _ = s.HasProcessed(ctx, "c1")
	assert.True(t, seen)

	other, _ := s.HasProcessed(ctx, "c2")
	assert.False(t, other)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentMark(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkProcessed(ctx, "conv"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
