package watchdog

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loykin/keepbusy/internal/journal"
	"github.com/loykin/keepbusy/internal/metrics"
)

// Watcher reports descriptor changes made outside the tool. It watches
// the descriptor's directory because editors and atomic renames replace
// the file inode; watching the path itself would go quiet after the
// first swap. Diagnose-only: drift is journaled, never reverted.
//
// The watcher cannot tell the CLI's own apply (a rename into the
// descriptor path from another process) from an out-of-band edit, so a
// re-apply also journals a drift event. That false positive is
// accepted: applies are rare, operator-initiated, and the adjacent
// applied event in the journal makes the pairing obvious; suppressing
// it would need the watcher to re-render the persisted plan and
// compare content on every event.
type Watcher struct {
	w      *fsnotify.Watcher
	path   string
	logger *slog.Logger
	jrn    journal.Sink
}

// TryWatch starts watching asynchronously and logs instead of failing
// when the directory cannot be watched; the watchdog's check loop does
// not depend on it.
func TryWatch(ctx context.Context, descriptorPath string, logger *slog.Logger, jrn journal.Sink) *Watcher {
	w := &Watcher{path: descriptorPath, logger: logger, jrn: jrn}
	go func() {
		if err := w.init(); err != nil {
			logger.Warn("not watching descriptor", "path", descriptorPath, "error", err)
			return
		}
		w.watch(ctx)
	}()
	return w
}

// NewWatcher is the synchronous variant: it fails when the directory
// cannot be watched.
func NewWatcher(ctx context.Context, descriptorPath string, logger *slog.Logger, jrn journal.Sink) (*Watcher, error) {
	w := &Watcher{path: descriptorPath, logger: logger, jrn: jrn}
	if err := w.init(); err != nil {
		return nil, err
	}
	go w.watch(ctx)
	return w, nil
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer func() { _ = w.w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn("descriptor watch error", "error", err)
		case evt, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if !evt.Op.Has(fsnotify.Write) && !evt.Op.Has(fsnotify.Create) &&
				!evt.Op.Has(fsnotify.Remove) && !evt.Op.Has(fsnotify.Rename) {
				continue
			}
			w.drift(ctx, evt.Op.String())
		}
	}
}

func (w *Watcher) drift(ctx context.Context, op string) {
	metrics.IncDescriptorDrift()
	w.logger.Warn("descriptor changed on disk", "path", w.path, "op", op)
	if err := w.jrn.Send(ctx, journal.Event{
		Type:       journal.EventDescriptorDrift,
		OccurredAt: time.Now().UTC(),
		Detail:     op + " " + w.path,
	}); err != nil {
		w.logger.Warn("journal send failed", "error", err)
	}
}
