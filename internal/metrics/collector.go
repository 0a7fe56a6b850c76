package metrics

import (
	"context"
	"time"

	"github.com/cuemby/itemstored/internal/store"
)

// Collector periodically scans store cardinalities into gauges.
type Collector struct {
	store  *store.Store
	stopCh chan struct{}
}

// NewCollector returns a Collector that polls st.
func NewCollector(st *store.Store) *Collector {
	return &Collector{store: st, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds.
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.store.Stats(ctx)
	if err != nil {
		return
	}
	ItemsTotal.Set(float64(stats.Items))
	CollectionsTotal.Set(float64(stats.Collections))
}
