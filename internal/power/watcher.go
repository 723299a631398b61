// Package power re-checks the daemon as soon as the machine resumes from
// sleep, instead of waiting for the next poll.
package power

import (
	"log/slog"
	"sync"
)

// Nudger is asked for an immediate reconciliation tick
type Nudger interface {
	Nudge()
}

// Watcher turns system sleep and wake notifications into nudges.
// It never suppresses ticks: polling continues as usual across sleep.
type Watcher struct {
	Target Nudger
	Logger *slog.Logger

	mu     sync.Mutex
	asleep bool
	wakes  int
}

func NewWatcher(target Nudger, logger *slog.Logger) *Watcher {
	return &Watcher{Target: target, Logger: logger}
}

// Asleep reports whether a sleep notification arrived without a wake yet
func (w *Watcher) Asleep() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.asleep
}

// Wakes counts resumes seen since the watcher was created
func (w *Watcher) Wakes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}

func (w *Watcher) sleep() {
	w.mu.Lock()
	w.asleep = true
	w.mu.Unlock()

	w.logger().Debug("System going to sleep")
}

// wake nudges even without a preceding sleep notification; an extra probe is harmless
func (w *Watcher) wake() {
	w.mu.Lock()
	w.asleep = false
	w.wakes++
	w.mu.Unlock()

	w.logger().Info("System resumed, re-checking daemon")
	if w.Target != nil {
		w.Target.Nudge()
	}
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
