package execlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_BeginAndGet(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Begin(Entry{RequestID: "r1", Kind: "recipe", Items: []string{"tomato"}}))

	got, ok := s.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "recipe", got.Kind)
	assert.False(t, got.StartedAt.IsZero())
}

func TestStore_BeginRequiresID(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Begin(Entry{}))
}

func TestStore_BeginRejectsDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Begin(Entry{RequestID: "r1"}))
	assert.Error(t, s.Begin(Entry{RequestID: "r1"}))
}

func TestStore_NeverExceedsCapacity(t *testing.T) {
	s := NewStore(WithCapacity(3))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Begin(Entry{RequestID: fmt.Sprintf("r%d", i)}))
		assert.LessOrEqual(t, s.Len(), 3)
	}

	// Oldest entries were evicted first.
	_, ok := s.Get("r0")
	assert.False(t, ok)
	_, ok = s.Get("r9")
	assert.True(t, ok)
}

func TestStore_FinalizeExactlyOnce(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Begin(Entry{RequestID: "r1"}))

	err := s.Finalize("r1", func(e *Entry) {
		e.Success = true
		e.TotalMs = 120
	})
	require.NoError(t, err)

	got, _ := s.Get("r1")
	assert.True(t, got.Success)
	assert.Equal(t, int64(120), got.TotalMs)
	assert.False(t, got.CompletedAt.IsZero())

	// Second finalize is rejected and leaves the entry untouched.
	err = s.Finalize("r1", func(e *Entry) { e.Success = false })
	assert.Error(t, err)
	got, _ = s.Get("r1")
	assert.True(t, got.Success)
}

func TestStore_FinalizeUnknown(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Finalize("missing", func(*Entry) {}))
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Begin(Entry{RequestID: fmt.Sprintf("r%d", i)}))
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "r2", list[0].RequestID)
	assert.Equal(t, "r0", list[2].RequestID)
}

func TestStore_FinalizeHook(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	s := NewStore(WithFinalizeHook(func(e Entry) {
		mu.Lock()
		seen = append(seen, e.RequestID)
		mu.Unlock()
	}))

	require.NoError(t, s.Begin(Entry{RequestID: "r1"}))
	require.NoError(t, s.Finalize("r1", func(e *Entry) { e.Success = true }))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"r1"}, seen)
}

func TestStore_ConcurrentBegin(t *testing.T) {
	s := NewStore(WithCapacity(50))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Begin(Entry{RequestID: fmt.Sprintf("r%d", n)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
