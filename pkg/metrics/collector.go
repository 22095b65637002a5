package metrics

import (
	"time"

	"github.com/cuemby/appevent/pkg/log"
	"github.com/rs/zerolog"
)

// Source reports the current sizes behind the gauges
type Source interface {
	CountEvents() (int, error)
	WatcherCount() int
	ProcessorCount() int
}

// Collector periodically refreshes gauges from a Source
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewCollector creates a new metrics collector. A non-positive interval
// defaults to 15 seconds.
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("metrics"),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	// Storage health belongs to the engine; a failed count is only logged.
	n, err := c.source.CountEvents()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to count stored events")
	} else {
		StoredEvents.Set(float64(n))
	}

	WatchersTotal.Set(float64(c.source.WatcherCount()))
	ProcessorsTotal.Set(float64(c.source.ProcessorCount()))
}
