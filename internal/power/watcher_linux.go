package power

import (
	"context"
	"os"

	"github.com/godbus/dbus/v5"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// Start follows logind's PrepareForSleep signal on the system bus until ctx
// is done. Without a system bus the watcher stays idle.
func (w *Watcher) Start(ctx context.Context) {
	conn, err := dbus.SystemBus()
	if err != nil {
		if os.Getenv("DBUS_SYSTEM_BUS_ADDRESS") == "" {
			w.logger().Debug("No system bus, wake detection disabled")
		} else {
			w.logger().Warn("Failed to connect to system bus", "error", err)
		}
		return
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		w.logger().Warn("Failed to subscribe to logind sleep signals", "error", err)
		return
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	w.logger().Debug("Wake detection started", "source", "logind")

	go func() {
		defer conn.RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				w.handleSignal(sig)
			}
		}
	}()
}

// handleSignal maps PrepareForSleep(true) to sleep and PrepareForSleep(false) to wake
func (w *Watcher) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) == 0 {
		return
	}
	entering, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if entering {
		w.sleep()
	} else {
		w.wake()
	}
}
