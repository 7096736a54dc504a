// Package poller runs a single fixed-interval status check for an operation handle.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firerestore-dev/firerestore/internal/metrics"
)

// DefaultInterval is the delay between status checks
const DefaultInterval = 3 * time.Second

// Tick checks the operation identified by handle and reports whether polling should stop
type Tick func(ctx context.Context, handle string) (stop bool)

// Poller owns at most one running task. Starting a new task cancels the previous one.
type Poller struct {
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	handle string
	cancel context.CancelFunc
	gen    uint64
}

// New creates a poller; a non-positive interval uses DefaultInterval
func New(interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Interval returns the delay between ticks
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins polling handle. The first tick fires after one interval.
func (p *Poller) Start(handle string, tick Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p.gen++
	p.handle = handle
	p.cancel = cancel

	go p.run(ctx, p.gen, handle, tick)
}

// Stop cancels the running task, if any. An in-flight tick is not interrupted
// but its result no longer schedules further ticks.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Handle returns the handle being polled, or "" when idle
func (p *Poller) Handle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Active reports whether a task is running
func (p *Poller) Active() bool {
	return p.Handle() != ""
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.logger.Debug().Str("handle", p.handle).Msg("Polling cancelled")
	}
	p.cancel = nil
	p.handle = ""
}

func (p *Poller) run(ctx context.Context, gen uint64, handle string, tick Tick) {
	metrics.PollerStarted()
	defer metrics.PollerStopped()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug().
		Str("handle", handle).
		Dur("interval", p.interval).
		Msg("Polling started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		if tick(ctx, handle) {
			p.finish(gen, handle)
			return
		}
	}
}

// finish clears the task if it is still the current one
func (p *Poller) finish(gen uint64, handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = nil
	p.handle = ""
	p.logger.Debug().Str("handle", handle).Msg("Polling finished")
}
