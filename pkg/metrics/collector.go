package metrics

import (
	"time"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/coordinator"
	"github.com/chronosdb/shardcoord/pkg/health"
)

// Collector periodically samples the agency node and its cache to refresh
// the package's gauges.
type Collector struct {
	node   *agency.Node
	cache  *agencycache.Cache
	health *health.View
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(node *agency.Node, cache *agencycache.Cache) *Collector {
	return &Collector{
		node:   node,
		cache:  cache,
		health: health.NewView(health.DefaultConfig()),
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15s.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRaftMetrics()
	c.collectGroupMetrics()
}

func (c *Collector) collectRaftMetrics() {
	if c.node.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftAppliedIndex.Set(float64(c.node.AppliedIndex()))
}

func (c *Collector) collectGroupMetrics() {
	counts := make(map[string]int)
	converged := make(map[string]int)
	clusterHealth := coordinator.BuildHealth(c.cache, c.health)

	for _, key := range coordinator.ListGroups(c.cache) {
		counts[string(key.Database())]++

		state, err := coordinator.BuildGroupState(c.cache, key.Database(), key.GroupID(), clusterHealth)
		if err != nil {
			continue
		}
		if state.Plan != nil && state.Plan.ConvergedVersion >= state.Target.Version {
			converged[string(key.Database())]++
		}
	}

	for db, n := range counts {
		CollectionGroupsTotal.WithLabelValues(db).Set(float64(n))
	}
	for db, n := range converged {
		ConvergedGroupsTotal.WithLabelValues(db).Set(float64(n))
	}
}
