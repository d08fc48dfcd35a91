package metrics

import "time"

// Source is polled periodically to resync gauge metrics against ground
// truth, correcting any drift the inline Inc/Dec calls scattered through
// pkg/chain, pkg/dht, pkg/validation, pkg/nucleus and pkg/network might
// accumulate (a dropped Dec on an error path, a crash mid-update).
// *conductor.Conductor satisfies this without pkg/metrics importing
// pkg/conductor, which already imports pkg/metrics for its own counters.
type Source interface {
	ActiveInstances() int
	InactiveInstances() int
	HeldAspects() int
	GossipPeers() int
}

// Collector periodically resyncs gauge metrics from a Source.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector returns a Collector that resyncs metrics from source on
// every tick, starting once Start is called.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins the resync ticker in its own goroutine.
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

// Stop halts the resync ticker.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ConductorInstancesTotal.WithLabelValues("active").Set(float64(c.source.ActiveInstances()))
	ConductorInstancesTotal.WithLabelValues("inactive").Set(float64(c.source.InactiveInstances()))
	DHTHeldAspectsTotal.Set(float64(c.source.HeldAspects()))
	NetworkGossipPeersGauge.Set(float64(c.source.GossipPeers()))
}
