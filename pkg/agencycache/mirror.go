package agencycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/log"
)

// pollInterval bounds how long the mirror can lag a write that landed
// without a matching watch notification reaching this process (e.g.
// right after Start, before the first watch subscription existed).
const pollInterval = 2 * time.Second

// Cache mirrors the Target, Plan and Current subtrees of the agency
// tree in memory.
type Cache struct {
	client agency.Client
	logger zerolog.Logger

	mu      sync.RWMutex
	target  map[string]json.RawMessage
	plan    map[string]json.RawMessage
	current map[string]json.RawMessage
	index   uint64

	waiters *waiterSet

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Cache backed by client. Call Start to begin mirroring.
func New(client agency.Client) *Cache {
	return &Cache{
		client:  client,
		logger:  log.WithComponent("agencycache"),
		target:  make(map[string]json.RawMessage),
		plan:    make(map[string]json.RawMessage),
		current: make(map[string]json.RawMessage),
		waiters: newWaiterSet(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start performs an initial full read and launches the background
// refresh loop. Start must be called once before Get/GetPrefix return
// meaningful data.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return err
	}
	go c.run()
	return nil
}

// Stop halts the refresh loop.
func (c *Cache) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Cache) run() {
	defer close(c.doneCh)

	ctx := context.Background()
	targetCh, cancelTarget := c.client.Watch(ctx, "Target")
	defer cancelTarget()
	planCh, cancelPlan := c.client.Watch(ctx, "Plan")
	defer cancelPlan()
	currentCh, cancelCurrent := c.client.Watch(ctx, "Current")
	defer cancelCurrent()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-targetCh:
			c.refreshAndLog(ctx)
		case <-planCh:
			c.refreshAndLog(ctx)
		case <-currentCh:
			c.refreshAndLog(ctx)
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *Cache) refreshAndLog(ctx context.Context) {
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("agency cache refresh failed")
	}
}

func (c *Cache) refresh(ctx context.Context) error {
	target, idx1, err := c.client.Read(ctx, "Target")
	if err != nil {
		return err
	}
	plan, idx2, err := c.client.Read(ctx, "Plan")
	if err != nil {
		return err
	}
	current, idx3, err := c.client.Read(ctx, "Current")
	if err != nil {
		return err
	}

	idx := maxUint64(idx1, idx2, idx3)

	c.mu.Lock()
	c.target = target
	c.plan = plan
	c.current = current
	c.index = idx
	c.mu.Unlock()

	c.waiters.notify(idx)
	return nil
}

// Index returns the agency index this mirror is current as of.
func (c *Cache) Index() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// Get returns the value at the given full path from whichever tree it
// falls under, and whether it was found.
func (c *Cache) Get(path string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := lookupTree(path, c.target, c.plan, c.current)
	return v, ok
}

// GetPrefix returns every entry whose path has the given prefix.
func (c *Cache) GetPrefix(prefix string) map[string]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]json.RawMessage)
	for _, tree := range [3]map[string]json.RawMessage{c.target, c.plan, c.current} {
		for k, v := range tree {
			if hasPathPrefix(k, prefix) {
				out[k] = v
			}
		}
	}
	return out
}

func lookupTree(path string, trees ...map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, tree := range trees {
		if v, ok := tree[path]; ok {
			return v, true
		}
	}
	return nil, false
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/"
}

func maxUint64(vs ...uint64) uint64 {
	var m uint64
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

// WaitForIndex blocks until the mirror has observed at least idx, the
// context is canceled, or timeout elapses.
func (c *Cache) WaitForIndex(ctx context.Context, idx uint64, timeout time.Duration) error {
	if c.Index() >= idx {
		return nil
	}
	return c.waiters.wait(ctx, idx, timeout)
}
