package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// scriptedProbe replays a fixed sequence of observations, repeating the last one
type scriptedProbe struct {
	mu    sync.Mutex
	seq   []bool
	calls int
}

func (p *scriptedProbe) IsRunning(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.seq) {
		i = len(p.seq) - 1
	}
	p.calls++
	return p.seq[i]
}

func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestNew_PrimesStateWithoutNotifying(t *testing.T) {
	probe := &scriptedProbe{seq: []bool{true}}
	loop := New(context.Background(), probe, time.Second)

	if !loop.Last() {
		t.Fatal("Last() = false after priming with a live daemon")
	}
	if probe.Calls() != 1 {
		t.Errorf("probe called %d times during New, want 1", probe.Calls())
	}

	fired := 0
	loop.OnStateChanged(func(bool) { fired++ })
	loop.Tick(context.Background())
	if fired != 0 {
		t.Errorf("listener fired %d times for an unchanged state", fired)
	}
}

func TestTick_EdgeTriggered(t *testing.T) {
	// First value primes the loop, the rest are ticks
	probe := &scriptedProbe{seq: []bool{false, false, true, true, false}}
	loop := New(context.Background(), probe, time.Second)

	var got []bool
	loop.OnStateChanged(func(running bool) { got = append(got, running) })

	var fired []bool
	for i := 0; i < 4; i++ {
		fired = append(fired, loop.Tick(context.Background()))
	}

	wantFired := []bool{false, true, false, true}
	for i := range wantFired {
		if fired[i] != wantFired[i] {
			t.Errorf("tick %d fired = %v, want %v", i, fired[i], wantFired[i])
		}
	}

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("notifications = %v, want [true false]", got)
	}
	if loop.Last() {
		t.Error("Last() = true, want false")
	}
}

func TestTick_ListenersRunInRegistrationOrder(t *testing.T) {
	probe := &scriptedProbe{seq: []bool{false, true}}
	loop := New(context.Background(), probe, time.Second)

	var order []string
	loop.OnStateChanged(func(bool) { order = append(order, "first") })
	loop.OnStateChanged(func(bool) { order = append(order, "second") })
	loop.OnStateChanged(func(bool) { order = append(order, "third") })

	loop.Tick(context.Background())

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	probe := &scriptedProbe{seq: []bool{false}}
	loop := New(context.Background(), probe, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for probe.Calls() < 3 {
		select {
		case <-deadline:
			t.Fatal("loop did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_NudgeTriggersImmediateTick(t *testing.T) {
	probe := &scriptedProbe{seq: []bool{false, true}}
	loop := New(context.Background(), probe, time.Hour)

	changed := make(chan bool, 1)
	loop.OnStateChanged(func(running bool) { changed <- running })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Nudge()

	select {
	case running := <-changed:
		if !running {
			t.Error("notification running = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nudge did not trigger a tick")
	}
}

type countingNudger struct {
	ch chan struct{}
}

func (n *countingNudger) Nudge() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func TestDescriptorWatcher_NudgesOnCreateAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "LaunchAgents")
	plist := filepath.Join(dir, "com.lapsus.rust.plist")
	nudger := &countingNudger{ch: make(chan struct{}, 1)}

	w, err := WatchDescriptor(context.Background(), plist, nudger, nil)
	if err != nil {
		t.Fatalf("WatchDescriptor() error = %v", err)
	}
	defer w.Close()

	waitNudge := func(what string) {
		t.Helper()
		select {
		case <-nudger.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("no nudge after %s", what)
		}
	}

	if err := os.WriteFile(plist, []byte("<plist/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitNudge("create")

	if err := os.Remove(plist); err != nil {
		t.Fatal(err)
	}
	waitNudge("remove")
}

func TestDescriptorWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	plist := filepath.Join(dir, "com.lapsus.rust.plist")
	nudger := &countingNudger{ch: make(chan struct{}, 1)}

	w, err := WatchDescriptor(context.Background(), plist, nudger, nil)
	if err != nil {
		t.Fatalf("WatchDescriptor() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.plist"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-nudger.ch:
		t.Fatal("unrelated file nudged the loop")
	case <-time.After(200 * time.Millisecond):
	}
}
