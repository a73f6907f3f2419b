package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CountdownSink receives remaining-time samples at a 1-second cadence.
// display is "mm:ss", or empty when the countdown was cleared.
type CountdownSink func(remaining time.Duration, display string)

// CountdownProjector converts an absolute deadline into a live remaining-time
// display. At most one projection runs at any time: Set stops and drains the
// previous ticker before starting a new one, so rapid successive deadline
// updates can never stack timers.
type CountdownProjector struct {
	clock clockwork.Clock
	sink  CountdownSink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCountdownProjector builds a projector that reports samples to sink.
func NewCountdownProjector(clock clockwork.Clock, sink CountdownSink) *CountdownProjector {
	return &CountdownProjector{clock: clock, sink: sink}
}

// Set replaces any running projection with one against deadline. A deadline
// already in the past projects a single zero sample and starts no timer.
func (p *CountdownProjector) Set(deadline time.Time) {
	p.mu.Lock()
	p.stopLocked()

	remaining := deadline.Sub(p.clock.Now())
	if remaining <= 0 {
		p.mu.Unlock()
		p.emit(0)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.emit(remaining)
	go p.run(ctx, deadline, done)
}

// Clear stops any running projection and reports the empty display.
func (p *CountdownProjector) Clear() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()

	p.sink(0, "")
}

// Stop stops any running projection without emitting.
func (p *CountdownProjector) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
}

// stopLocked cancels the running projection and waits for its goroutine to
// exit, guaranteeing the single-timer invariant. Caller holds p.mu.
func (p *CountdownProjector) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *CountdownProjector) run(ctx context.Context, deadline time.Time, done chan struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			remaining := deadline.Sub(p.clock.Now())
			if remaining <= 0 {
				p.emit(0)
				return
			}
			p.emit(remaining)
		}
	}
}

func (p *CountdownProjector) emit(remaining time.Duration) {
	p.sink(remaining, formatRemaining(remaining))
}

// formatRemaining renders a duration as mm:ss, clamped at zero.
func formatRemaining(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
