package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// Nudger receives a request for an immediate reconciliation tick
type Nudger interface {
	Nudge()
}

// DescriptorWatcher nudges the loop when the launchd descriptor file is
// created, removed or renamed. The parent directory is watched because
// the file itself may not exist yet and editors replace it atomically.
type DescriptorWatcher struct {
	Path   string
	Target Nudger
	Logger *slog.Logger

	sctx    *stopper.Context
	watcher *fsnotify.Watcher
}

// WatchDescriptor starts watching path's directory. The directory is created
// if missing so a later install of the descriptor is still observed.
func WatchDescriptor(ctx context.Context, path string, target Nudger, logger *slog.Logger) (*DescriptorWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create descriptor directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &DescriptorWatcher{
		Path:    path,
		Target:  target,
		Logger:  logger,
		sctx:    stopper.WithContext(ctx),
		watcher: watcher,
	}
	w.sctx.Defer(func() {
		_ = watcher.Close()
	})
	w.sctx.Go(w.run)

	logger.Debug("Watching service descriptor", "path", path)
	return w, nil
}

func (w *DescriptorWatcher) run(sctx *stopper.Context) error {
	name := filepath.Base(w.Path)
	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.Logger.Debug("Service descriptor changed", "event", event.Op.String(), "file", event.Name)
			w.Target.Nudge()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("Descriptor watcher error", "error", err)
		}
	}
	return nil
}

// Close stops the watcher goroutine and releases the fsnotify handle
func (w *DescriptorWatcher) Close() error {
	w.sctx.Stop(100 * time.Millisecond)
	return w.sctx.Wait()
}
