package incident

import (
	"context"
	"sync"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
)

// Cache is a Repository that pushes the full incident list to observers after
// every write. The snapshot is delivered before the write call returns.
type Cache struct {
	Repository

	logger *loggy.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan []*CachedIncident

	// watchers tracks the goroutines tying observers to their context
	watchers sync.WaitGroup
}

// NewCache wraps repo with live updates
func NewCache(repo Repository, logger *loggy.Logger) *Cache {
	return &Cache{
		Repository: repo,
		logger:     logger,
		subs:       make(map[int]chan []*CachedIncident),
	}
}

// Observe returns a channel that immediately holds the current contents and
// receives a new snapshot after every write. Each channel keeps only the
// latest snapshot. It is closed by the returned func or when ctx ends.
func (c *Cache) Observe(ctx context.Context) (<-chan []*CachedIncident, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, err := c.Repository.GetAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	id := c.nextID
	c.nextID++

	ch := make(chan []*CachedIncident, 1)
	ch <- snapshot
	c.subs[id] = ch

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}

	if done := ctx.Done(); done != nil {
		c.watchers.Add(1)
		go func() {
			defer c.watchers.Done()
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}

	return ch, cancel, nil
}

// Upsert writes through to the repository and notifies observers
func (c *Cache) Upsert(ctx context.Context, inc *CachedIncident) error {
	if err := c.Repository.Upsert(ctx, inc); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// UpsertMany writes through to the repository and notifies observers
func (c *Cache) UpsertMany(ctx context.Context, incs []*CachedIncident) error {
	if err := c.Repository.UpsertMany(ctx, incs); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// UpdateSyncStatus writes through to the repository and notifies observers
func (c *Cache) UpdateSyncStatus(ctx context.Context, id int64, status SyncStatus) error {
	if err := c.Repository.UpdateSyncStatus(ctx, id, status); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// DeleteByID writes through to the repository and notifies observers
func (c *Cache) DeleteByID(ctx context.Context, id int64) error {
	if err := c.Repository.DeleteByID(ctx, id); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// DeleteAll writes through to the repository and notifies observers
func (c *Cache) DeleteAll(ctx context.Context) error {
	if err := c.Repository.DeleteAll(ctx); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// ReplaceAll writes through to the repository and notifies observers
func (c *Cache) ReplaceAll(ctx context.Context, incs []*CachedIncident) error {
	if err := c.Repository.ReplaceAll(ctx, incs); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// publish sends a fresh snapshot to every observer, replacing any snapshot
// the observer has not read yet
func (c *Cache) publish(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) == 0 {
		return
	}

	snapshot, err := c.Repository.GetAll(ctx)
	if err != nil {
		// The write already succeeded; observers catch up on the next one
		c.logger.Warn("Failed to read incidents for observers", "error", err)
		return
	}

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
