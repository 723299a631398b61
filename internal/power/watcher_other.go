//go:build (darwin && !cgo) || (!darwin && !linux)

package power

import "context"

// Start does nothing where the platform offers no wake notifications.
// The regular poll still notices changes after resume.
func (w *Watcher) Start(ctx context.Context) {
	w.logger().Debug("Wake detection unavailable on this platform")
}
