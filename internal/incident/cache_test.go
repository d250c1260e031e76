package incident

import (
	"context"
	"testing"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitWatchers(t *testing.T, c *Cache) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		c.watchers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("context watcher still running")
	}
}

func TestObserveCancelStopsContextWatcher(t *testing.T) {
	c := NewCache(newMemoryRepository(), loggy.NewNoopLogger())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	ch, cancel, err := c.Observe(ctx)
	require.NoError(t, err)
	<-ch

	cancel()
	cancel()
	waitWatchers(t, c)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestObserveClosesWhenContextEnds(t *testing.T) {
	c := NewCache(newMemoryRepository(), loggy.NewNoopLogger())

	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, err := c.Observe(ctx)
	require.NoError(t, err)
	defer cancel()
	<-ch

	stop()
	waitWatchers(t, c)

	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, c.Upsert(context.Background(), syncedIncident(1, "Goteras", fixedNow)))
}
