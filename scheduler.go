package mediagrid

import (
	"context"
	"io"
	"time"
)

// Scheduler fires a callback once after a delay. The render loop uses it to
// schedule its next tick.
type Scheduler interface {
	// AfterFunc calls f in its own goroutine after d. The returned stop
	// function cancels the call and reports whether it did so before f ran.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// ClockScheduler schedules callbacks on runtime timers, which keep firing
// regardless of process foreground state.
type ClockScheduler struct{}

func (ClockScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// pacer hands out read slots at a fixed period for pull-based tracks.
// It is not safe for concurrent use.
type pacer struct {
	period time.Duration
	// skipLate drops missed slots when the reader falls more than a period
	// behind. Otherwise missed slots are released immediately.
	skipLate bool

	next    time.Time
	started time.Time
}

// wait blocks until the next slot and returns its offset from the first
// slot. It returns io.EOF once closed is closed.
func (p *pacer) wait(ctx context.Context, closed <-chan struct{}) (time.Duration, error) {
	now := time.Now()
	if p.next.IsZero() {
		p.started = now
		p.next = now
	}
	if wait := p.next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-closed:
			timer.Stop()
			return 0, io.EOF
		case <-timer.C:
		}
	} else if p.skipLate && -wait > p.period {
		p.next = now.Add(-(-wait % p.period))
	}
	ts := p.next.Sub(p.started)
	p.next = p.next.Add(p.period)
	return ts, nil
}
