package kmc

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch runs discovery once and then again whenever module files are
// created or changed below the scanned directories. Changes are debounced.
// Each run's stats are sent on the returned channel, which is closed when
// ctx is cancelled.
func (d *Discovery) Watch(ctx context.Context, basePath string, extraDirs ...string) (<-chan DiscoveryStats, error) {
	base, err := resolveBasePath(basePath)
	if err != nil {
		return nil, NewDiscoveryError(ErrMsgWatchFailed, basePath)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewModuleLoadError(base, err)
	}

	dirs := d.directories(base, extraDirs)
	for _, dir := range dirs {
		if err := addWatchesRecursive(fsw, dir); err != nil {
			_ = fsw.Close()
			return nil, NewModuleLoadError(dir, err)
		}
	}

	w := &discoveryWatcher{
		discovery: d,
		watcher:   fsw,
		base:      base,
		extraDirs: extraDirs,
		pending:   make(map[string]fsnotify.Op),
		out:       make(chan DiscoveryStats, watchEventBuffer),
	}

	initial := d.DiscoverAll(ctx, base, extraDirs...)
	w.out <- initial

	d.logger.Info(LogMsgWatchStarted,
		zap.String(LogFieldBasePath, base),
		zap.Strings(LogFieldDirectory, dirs),
		zap.Duration(LogFieldDuration, d.debounce),
	)

	go w.run(ctx)
	return w.out, nil
}

type discoveryWatcher struct {
	discovery *Discovery
	watcher   *fsnotify.Watcher
	base      string
	extraDirs []string

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	out chan DiscoveryStats
}

func addWatchesRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && hiddenOrMarker(entry.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func hiddenOrMarker(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func (w *discoveryWatcher) run(ctx context.Context) {
	defer close(w.out)
	defer w.watcher.Close()

	ticker := time.NewTicker(w.discovery.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.discovery.logger.Error(LogMsgWatchFailed, zap.Error(err))

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *discoveryWatcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if !hiddenOrMarker(filepath.Base(event.Name)) {
			if err := addWatchesRecursive(w.watcher, event.Name); err != nil {
				w.discovery.logger.Error(LogMsgWatchFailed, zap.String(LogFieldPath, event.Name), zap.Error(err))
			}
			// Files may already exist in a directory that was moved in.
			w.markPending(event.Name, event.Op)
		}
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.discovery.watchable(event.Name) {
		return
	}
	w.markPending(event.Name, event.Op)
}

func (w *discoveryWatcher) markPending(path string, op fsnotify.Op) {
	w.pendingMu.Lock()
	w.pending[path] = op
	w.pendingMu.Unlock()
}

func (w *discoveryWatcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := mapKeys(w.pending)
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for _, path := range paths {
		// A rewritten module is loaded again.
		w.discovery.forget(path)
	}
	w.discovery.logger.Info(LogMsgWatchRediscover, zap.Int(LogFieldChanged, len(paths)))

	stats := w.discovery.DiscoverAll(ctx, w.base, w.extraDirs...)
	select {
	case w.out <- stats:
	case <-ctx.Done():
	}
}
