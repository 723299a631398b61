// Package reconcile periodically re-probes the daemon so state changes that
// happen outside the controller (crashes, launchd restarts, manual kills)
// are noticed and reported to listeners.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober answers whether the daemon is live right now
type Prober interface {
	IsRunning(ctx context.Context) bool
}

// Loop keeps the last observed liveness and fires listeners on edges only
type Loop struct {
	Probe    Prober
	Interval time.Duration
	Logger   *slog.Logger

	mu        sync.Mutex
	last      bool
	listeners []func(running bool)

	nudge chan struct{}
}

// New primes the last-known state with one probe call so the first tick
// only fires when something actually changed since construction.
func New(ctx context.Context, probe Prober, interval time.Duration) *Loop {
	return &Loop{
		Probe:    probe,
		Interval: interval,
		last:     probe.IsRunning(ctx),
		nudge:    make(chan struct{}, 1),
	}
}

// OnStateChanged registers fn. Listeners run synchronously on the ticking
// goroutine in registration order.
func (l *Loop) OnStateChanged(fn func(running bool)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Last returns the most recently observed liveness
func (l *Loop) Last() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Tick probes once and notifies listeners if the state flipped.
// It reports whether a notification fired.
func (l *Loop) Tick(ctx context.Context) bool {
	running := l.Probe.IsRunning(ctx)

	l.mu.Lock()
	if running == l.last {
		l.mu.Unlock()
		return false
	}
	l.last = running
	listeners := make([]func(bool), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	l.logger().Info("Daemon liveness changed", "running", running)
	for _, fn := range listeners {
		fn(running)
	}
	return true
}

// Nudge requests an extra tick as soon as Run gets to it.
// Nudges arriving while one is already pending are coalesced.
func (l *Loop) Nudge() {
	if l.nudge == nil {
		return
	}
	select {
	case l.nudge <- struct{}{}:
	default:
	}
}

// Nudged delivers pending nudges to callers that drive Tick from their own select loop
func (l *Loop) Nudged() <-chan struct{} {
	return l.nudge
}

// Run ticks every Interval until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger().Debug("Reconciliation loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			l.logger().Debug("Reconciliation loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		case <-l.nudge:
			l.Tick(ctx)
		}
	}
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
