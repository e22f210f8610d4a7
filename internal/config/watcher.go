package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// UpdateFunc receives the engine-relevant subset of a changed config file.
type UpdateFunc func(EngineUpdate)

// Watcher reloads the configuration file on change and forwards the engine
// delta to a callback. Editors often replace files atomically, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onUpdate UpdateFunc
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	last    EngineConfig
}

// NewWatcher creates a watcher for the given config path. The initial engine
// configuration seeds change detection.
func NewWatcher(path string, initial EngineConfig, onUpdate UpdateFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		logger:   logger.With("component", "config-watcher"),
		onUpdate: onUpdate,
		debounce: 250 * time.Millisecond,
		last:     initial,
	}
}

// Start begins watching until the context is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop(watchCtx, fw)
	return nil
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if fw != nil {
		_ = fw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload skipped", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	delta := Diff(w.last, cfg.Engine)
	if !delta.Empty() {
		w.last = cfg.Engine
	}
	onUpdate := w.onUpdate
	w.mu.Unlock()

	if delta.Empty() {
		return
	}
	w.logger.Info("config change detected", "path", w.path)
	if onUpdate != nil {
		onUpdate(delta)
	}
}
