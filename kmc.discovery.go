package kmc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DirectoryStats counts what one scanned directory contributed.
type DirectoryStats struct {
	Modules  int `json:"modules" yaml:"modules"`
	Handlers int `json:"handlers" yaml:"handlers"`
	Plugins  int `json:"plugins" yaml:"plugins"`
}

// DiscoveryStats summarizes one DiscoverAll call. Counts cover only what
// was newly registered by that call.
type DiscoveryStats struct {
	Handlers    int                       `json:"handlers" yaml:"handlers"`
	Plugins     int                       `json:"plugins" yaml:"plugins"`
	Directories map[string]DirectoryStats `json:"directories" yaml:"directories"`
	Failed      []string                  `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Discovery finds extension modules in directories and registers what they
// contribute. Each module file is loaded at most once until ClearCache.
type Discovery struct {
	registry *Registry
	logger   *zap.Logger
	tracer   trace.Tracer
	loaders  map[string]ModuleLoader
	debounce time.Duration

	mu        sync.Mutex
	processed map[string]struct{}
}

// DiscoveryOption configures a Discovery.
type DiscoveryOption func(*Discovery)

// WithDiscoveryLogger sets the discovery logger.
func WithDiscoveryLogger(logger *zap.Logger) DiscoveryOption {
	return func(d *Discovery) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDiscoveryTracer sets the tracer used for discovery spans.
func WithDiscoveryTracer(tracer trace.Tracer) DiscoveryOption {
	return func(d *Discovery) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithModuleLoader adds a loader, replacing any loader for the same extensions.
func WithModuleLoader(loader ModuleLoader) DiscoveryOption {
	return func(d *Discovery) {
		for _, ext := range loader.Extensions() {
			d.loaders[strings.ToLower(ext)] = loader
		}
	}
}

// WithWatchDebounce sets how long Watch waits for further changes.
func WithWatchDebounce(delay time.Duration) DiscoveryOption {
	return func(d *Discovery) {
		if delay > 0 {
			d.debounce = delay
		}
	}
}

// NewDiscovery creates a Discovery that registers into registry.
// A nil registry means Default().
func NewDiscovery(registry *Registry, opts ...DiscoveryOption) *Discovery {
	if registry == nil {
		registry = Default()
	}
	d := &Discovery{
		registry:  registry,
		logger:    zap.NewNop(),
		tracer:    defaultTracer(),
		loaders:   make(map[string]ModuleLoader),
		debounce:  DefaultWatchDebounce,
		processed: make(map[string]struct{}),
	}
	WithModuleLoader(ManifestLoader{})(d)
	WithModuleLoader(GoPluginLoader{})(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry discovered extensions are added to.
func (d *Discovery) Registry() *Registry {
	return d.registry
}

// DiscoverAll scans the standard extension directories under basePath and
// every extra directory. An empty basePath means the working directory.
// Relative extra directories are taken relative to basePath. Module load
// failures are logged and listed in Failed; they never abort the scan.
func (d *Discovery) DiscoverAll(ctx context.Context, basePath string, extraDirs ...string) DiscoveryStats {
	stats := DiscoveryStats{Directories: make(map[string]DirectoryStats)}

	base, err := resolveBasePath(basePath)
	if err != nil {
		d.logger.Error(LogMsgDiscoveryDirFailed, zap.String(LogFieldBasePath, basePath), zap.Error(err))
		return stats
	}

	ctx, span := d.tracer.Start(ctx, SpanNameDiscover, trace.WithAttributes(
		attribute.String(AttrKeyBasePath, base),
	))
	defer span.End()

	d.logger.Info(LogMsgDiscoveryStart, zap.String(LogFieldBasePath, base))

	for _, dir := range d.directories(base, extraDirs) {
		if ctx.Err() != nil {
			break
		}
		ds, failed := d.scanDirectory(ctx, dir)
		stats.Directories[dir] = ds
		stats.Handlers += ds.Handlers
		stats.Plugins += ds.Plugins
		stats.Failed = append(stats.Failed, failed...)
	}

	d.logger.Info(LogMsgDiscoveryDone,
		zap.String(LogFieldBasePath, base),
		zap.Int(LogFieldHandlers, stats.Handlers),
		zap.Int(LogFieldPlugins, stats.Plugins),
		zap.Int(LogFieldFailed, len(stats.Failed)),
	)
	return stats
}

func resolveBasePath(basePath string) (string, error) {
	if basePath == "" {
		return os.Getwd()
	}
	return filepath.Abs(basePath)
}

// directories returns the existing directories to scan, de-duplicated.
func (d *Discovery) directories(base string, extraDirs []string) []string {
	var dirs []string
	seen := make(map[string]struct{})
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, name := range StandardExtensionDirs {
		dir := filepath.Join(base, name)
		if !isDir(dir) {
			d.logger.Debug(LogMsgDiscoveryDirMissing, zap.String(LogFieldDirectory, dir))
			continue
		}
		add(dir)
	}
	for _, extra := range extraDirs {
		dir := extra
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		dir = filepath.Clean(dir)
		if !isDir(dir) {
			d.logger.Warn(LogMsgDiscoveryExtraMissing, zap.String(LogFieldDirectory, dir))
			continue
		}
		add(dir)
	}
	return dirs
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (d *Discovery) scanDirectory(ctx context.Context, dir string) (DirectoryStats, []string) {
	var ds DirectoryStats
	var failed []string

	files, err := d.moduleFiles(dir)
	if err != nil {
		d.logger.Error(LogMsgDiscoveryDirFailed, zap.String(LogFieldDirectory, dir), zap.Error(err))
		return ds, []string{dir}
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if !d.markProcessed(path) {
			d.logger.Debug(LogMsgModuleSkipped, zap.String(LogFieldPath, path))
			continue
		}
		set, err := d.load(path)
		if err != nil {
			d.logger.Error(LogMsgModuleLoadFailed, zap.String(LogFieldPath, path), zap.Error(err))
			failed = append(failed, path)
			continue
		}
		ds.Modules++
		handlers, plugins := d.apply(set, path)
		ds.Handlers += handlers
		ds.Plugins += plugins
		d.logger.Debug(LogMsgModuleLoaded,
			zap.String(LogFieldPath, path),
			zap.Int(LogFieldHandlers, handlers),
			zap.Int(LogFieldPlugins, plugins),
		)
	}

	d.logger.Debug(LogMsgDiscoveryDirScanned,
		zap.String(LogFieldDirectory, dir),
		zap.Int(LogFieldHandlers, ds.Handlers),
		zap.Int(LogFieldPlugins, ds.Plugins),
	)
	return ds, failed
}

// moduleFiles returns the absolute paths of loadable module files under dir
// in lexical order, skipping package markers and hidden entries.
func (d *Discovery) moduleFiles(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]struct{})
	var files []string

	for ext := range d.loaders {
		matches, err := doublestar.Glob(fsys, "**/*"+ext, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, rel := range matches {
			if excludedModule(rel) {
				continue
			}
			if _, ok := seen[rel]; ok {
				continue
			}
			seen[rel] = struct{}{}
			files = append(files, filepath.Join(dir, filepath.FromSlash(rel)))
		}
	}
	sort.Strings(files)
	return files, nil
}

func excludedModule(rel string) bool {
	for _, pattern := range []string{DiscoveryExcludeMarker, DiscoveryExcludeHidden, DiscoveryExcludeHiddenDir} {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// markProcessed records path and reports whether it was new.
func (d *Discovery) markProcessed(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.processed[path]; ok {
		return false
	}
	d.processed[path] = struct{}{}
	return true
}

// forget drops path from the processed set so the next scan reloads it.
func (d *Discovery) forget(path string) {
	d.mu.Lock()
	delete(d.processed, path)
	d.mu.Unlock()
}

// Processed returns the module paths loaded so far, sorted.
func (d *Discovery) Processed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := mapKeys(d.processed)
	sort.Strings(paths)
	return paths
}

// ClearCache forgets every processed module so the next scan loads them again.
func (d *Discovery) ClearCache() {
	d.mu.Lock()
	d.processed = make(map[string]struct{})
	d.mu.Unlock()
	d.logger.Info(LogMsgCacheCleared)
}

// LoadModule loads a single module file and registers its contents,
// bypassing the processed-module cache.
func (d *Discovery) LoadModule(path string) (handlers, plugins int, err error) {
	set, err := d.load(path)
	if err != nil {
		return 0, 0, err
	}
	handlers, plugins = d.apply(set, path)
	return handlers, plugins, nil
}

func (d *Discovery) load(path string) (set ExtensionSet, err error) {
	loader, ok := d.loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ExtensionSet{}, NewDiscoveryError(ErrMsgModuleNoLoader, path)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = NewModuleLoadError(path, fmt.Errorf("%s: %v", ErrMsgModulePanicked, rec))
		}
	}()
	return loader.Load(path)
}

// apply registers the set. Handlers that fail validation are logged and
// skipped; plugins go through RegisterPlugin.
func (d *Discovery) apply(set ExtensionSet, path string) (handlers, plugins int) {
	for _, reg := range set.Handlers {
		if err := d.registry.Register(reg.Family, reg.Key, reg.Handler); err != nil {
			d.logger.Warn(LogMsgHandlerRejected,
				zap.String(LogFieldPath, path),
				zap.String(LogFieldFamily, string(reg.Family)),
				zap.String(LogFieldKey, reg.Key),
				zap.Error(err),
			)
			continue
		}
		handlers++
	}
	for _, p := range set.Plugins {
		if d.registry.RegisterPlugin(p) {
			plugins++
		}
	}
	return handlers, plugins
}

// watchable reports whether a path has a registered module extension.
func (d *Discovery) watchable(path string) bool {
	_, ok := d.loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return false
	}
	base := filepath.Base(path)
	return !strings.HasPrefix(base, "_") && !strings.HasPrefix(base, ".")
}
