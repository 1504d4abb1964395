package device

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns device-node churn under /dev into poll nudges so hotplug is
// noticed ahead of the next timer tick. It is an optional accelerator; when
// inotify is unavailable the appliance falls back to pure polling.
type Watcher struct {
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	sndDir string
	nudges chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches devDir and sndDir for node creation and removal.
func NewWatcher(devDir, sndDir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating inotify watcher: %w", err)
	}
	if err := fsw.Add(devDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", devDir, err)
	}
	// The sound directory only appears once the first card is attached;
	// the event loop retries when it shows up.
	if err := fsw.Add(sndDir); err != nil {
		logger.Debug("sound device directory not watchable yet", "path", sndDir, "error", err)
	}
	return &Watcher{
		logger: logger,
		fsw:    fsw,
		sndDir: sndDir,
		nudges: make(chan struct{}, 1),
	}, nil
}

// Nudges delivers a signal whenever an immediate sweep is worthwhile.
// Signals coalesce; a slow consumer sees at most one pending nudge.
func (w *Watcher) Nudges() <-chan struct{} {
	return w.nudges
}

// Start begins translating filesystem events into nudges.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop terminates the event loop and releases the inotify watch.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fsw.Close()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) && ev.Name == w.sndDir {
				if err := w.fsw.Add(w.sndDir); err != nil {
					w.logger.Debug("sound device directory not watchable yet", "path", w.sndDir, "error", err)
				}
			}
			select {
			case w.nudges <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("device watcher error", "error", err)
		}
	}
}

// relevant filters for capture node churn: video nodes, PCM nodes, and the
// sound directory itself. Chmod is included because nodes become readable
// only after udev applies permissions.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Chmod) {
		return false
	}
	if ev.Name == w.sndDir {
		return true
	}
	base := filepath.Base(ev.Name)
	return strings.HasPrefix(base, "video") || strings.HasPrefix(base, "pcm")
}
