// Package poll runs periodic refreshes tied to the lifetime of a screen.
package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"winery/internal/log"
)

var active atomic.Int64

// Active is the number of pollers currently running in the process.
func Active() int64 { return active.Load() }

// Poller calls a function every interval until it is stopped or the context
// it was started with ends. There is no way to restart a stopped poller.
type Poller struct {
	interval time.Duration
	fn       func(context.Context) error
	logger   *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	ticks  atomic.Int64
}

// Start launches a poller bound to ctx. Errors from fn are logged and do not
// stop the poller.
func Start(ctx context.Context, interval time.Duration, fn func(context.Context) error, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		interval: interval,
		fn:       fn,
		logger:   logger.WithComponent(log.ComponentPoll),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	active.Add(1)
	go p.run(ctx)
	return p
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer active.Add(-1)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.DebugContext(ctx, "Poller started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.DebugContext(ctx, "Poller stopped", "ticks", p.ticks.Load())
			return
		case <-ticker.C:
			p.ticks.Add(1)
			if err := p.fn(ctx); err != nil && ctx.Err() == nil {
				p.logger.WarnContext(ctx, "Poll failed", log.FieldError, err)
			}
		}
	}
}

// Stop cancels the poller and waits for its goroutine to exit. It is safe to
// call more than once.
func (p *Poller) Stop() {
	p.once.Do(p.cancel)
	<-p.done
}

// Done is closed once the poller has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

// Ticks counts how many times the function has been called.
func (p *Poller) Ticks() int64 { return p.ticks.Load() }
