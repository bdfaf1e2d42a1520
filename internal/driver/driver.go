// Package driver runs the engine's periodic managers: heartbeat sweep,
// item expiry, player-count broadcast.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pixil98/go-log"
)

// Manager is a unit of periodic work.
type Manager interface {
	Tick(context.Context) error
}

// Entry pairs a manager with its own tick interval.
type Entry struct {
	Name     string
	Interval time.Duration
	Manager  Manager
}

// WorldDriver ticks each manager on its own cadence. A tick error is
// logged and the cadence continues; periodic maintenance failing once
// must not take the server down.
type WorldDriver struct {
	entries []Entry
}

func NewWorldDriver(entries []Entry) *WorldDriver {
	return &WorldDriver{entries: entries}
}

func (d *WorldDriver) Start(ctx context.Context) error {
	logger := log.GetLogger(ctx)

	var wg sync.WaitGroup
	for _, e := range d.entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			ticker := time.NewTicker(e.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := e.Manager.Tick(ctx); err != nil {
						logger.Warnf("ticking %s: %s", e.Name, err)
					}
				}
			}
		}(e)
	}
	wg.Wait()
	return nil
}
