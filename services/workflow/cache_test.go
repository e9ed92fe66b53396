package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workflow-runner/models"
)

func newWorkflow(name string) *models.Workflow {
	return models.NewWorkflow(uuid.New(), name, []string{"clean-text", "summarize"})
}

func TestCache_GetSet(t *testing.T) {
	cache := NewCache(10, time.Minute)
	wf := newWorkflow("Digest")

	assert.Nil(t, cache.Get(wf.ID))

	cache.Set(wf)
	got := cache.Get(wf.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Digest", got.Name)

	// Returned copies do not alias the cached entry
	got.Steps[0] = "changed"
	assert.Equal(t, "clean-text", cache.Get(wf.ID).Steps[0])

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}

func TestCache_TTLExpiration(t *testing.T) {
	cache := NewCache(10, 20*time.Millisecond)
	wf := newWorkflow("Digest")
	cache.Set(wf)

	time.Sleep(40 * time.Millisecond)

	assert.Nil(t, cache.Get(wf.ID))
	assert.Zero(t, cache.Stats().Size)
}

func TestCache_LRUEviction(t *testing.T) {
	cache := NewCache(2, time.Minute)
	a, b, c := newWorkflow("a"), newWorkflow("b"), newWorkflow("c")

	cache.Set(a)
	cache.Set(b)
	cache.Get(a.ID) // a is now most recently used
	cache.Set(c)

	assert.NotNil(t, cache.Get(a.ID))
	assert.Nil(t, cache.Get(b.ID))
	assert.NotNil(t, cache.Get(c.ID))
	assert.Equal(t, 2, cache.Stats().Size)
}

func TestCache_UpdateAndInvalidate(t *testing.T) {
	cache := NewCache(10, time.Minute)
	wf := newWorkflow("before")
	cache.Set(wf)

	wf.Name = "after"
	cache.Set(wf)
	assert.Equal(t, "after", cache.Get(wf.ID).Name)
	assert.Equal(t, 1, cache.Stats().Size)

	cache.Invalidate(wf.ID)
	assert.Nil(t, cache.Get(wf.ID))
}

func TestCache_CleanupExpired(t *testing.T) {
	cache := NewCache(10, 20*time.Millisecond)
	cache.Set(newWorkflow("a"))
	cache.Set(newWorkflow("b"))

	time.Sleep(40 * time.Millisecond)
	cache.Set(newWorkflow("fresh"))

	assert.Equal(t, 2, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCache_RunCleanupStopsOnCancel(t *testing.T) {
	cache := NewCache(10, time.Millisecond)
	cache.Set(newWorkflow("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.RunCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(50, time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wf := newWorkflow("w")
			for j := 0; j < 50; j++ {
				cache.Set(wf)
				cache.Get(wf.ID)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 50)
}
