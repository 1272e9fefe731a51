package kmc

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds handlers for the three families and the registered plugins.
// Handler keys are independent per family. Later registrations for the same
// family and key replace earlier ones.
// It is safe for concurrent use.
type Registry struct {
	context    map[string]ContextHandler
	metadata   map[string]MetadataHandler
	generative map[string]GenerativeHandler
	plugins    []Plugin
	mu         sync.RWMutex
	logger     *zap.Logger
}

var defaultRegistry = NewRegistry(nil)

// Default returns the process-wide registry used by engines created
// without WithRegistry.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgRegistryCreated)
	return &Registry{
		context:    make(map[string]ContextHandler),
		metadata:   make(map[string]MetadataHandler),
		generative: make(map[string]GenerativeHandler),
		logger:     logger,
	}
}

// SetLogger replaces the registry logger. A nil logger disables logging.
func (r *Registry) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// RegisterContext registers h for [[key:...]] variables.
func (r *Registry) RegisterContext(key string, h ContextHandler) error {
	if h == nil {
		return NewRegistryError(ErrMsgNilHandler, FamilyContext, key)
	}
	return r.Register(FamilyContext, key, h)
}

// RegisterMetadata registers h for [{key:...}] variables.
func (r *Registry) RegisterMetadata(key string, h MetadataHandler) error {
	if h == nil {
		return NewRegistryError(ErrMsgNilHandler, FamilyMetadata, key)
	}
	return r.Register(FamilyMetadata, key, h)
}

// RegisterGenerative registers h for {{category:subtype...}} variables.
// key must be "category:subtype".
func (r *Registry) RegisterGenerative(key string, h GenerativeHandler) error {
	if h == nil {
		return NewRegistryError(ErrMsgNilHandler, FamilyGenerative, key)
	}
	return r.Register(FamilyGenerative, key, h)
}

// Register adds h under family and key. h must implement the family's
// handler interface. An existing handler is replaced with a warning.
func (r *Registry) Register(family Family, key string, h any) error {
	if err := checkHandler(family, key, h); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var replaced bool
	switch family {
	case FamilyContext:
		_, replaced = r.context[key]
		r.context[key] = h.(ContextHandler)
	case FamilyMetadata:
		_, replaced = r.metadata[key]
		r.metadata[key] = h.(MetadataHandler)
	case FamilyGenerative:
		_, replaced = r.generative[key]
		r.generative[key] = h.(GenerativeHandler)
	}

	if replaced {
		r.logger.Warn(LogMsgHandlerOverwritten,
			zap.String(LogFieldFamily, string(family)),
			zap.String(LogFieldKey, key),
		)
		return nil
	}
	r.logger.Debug(LogMsgHandlerRegistered,
		zap.String(LogFieldFamily, string(family)),
		zap.String(LogFieldKey, key),
	)
	return nil
}

// RegisterAll registers every entry, stopping at the first error.
func (r *Registry) RegisterAll(regs []HandlerRegistration) error {
	for _, reg := range regs {
		if err := r.Register(reg.Family, reg.Key, reg.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Context returns the context handler registered under key.
func (r *Registry) Context(key string) (ContextHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.context[key]
	return h, ok
}

// Metadata returns the metadata handler registered under key.
func (r *Registry) Metadata(key string) (MetadataHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.metadata[key]
	return h, ok
}

// Generative returns the generative handler registered under key.
func (r *Registry) Generative(key string) (GenerativeHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.generative[key]
	return h, ok
}

// Has reports whether a handler is registered for family and key.
func (r *Registry) Has(family Family, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ok bool
	switch family {
	case FamilyContext:
		_, ok = r.context[key]
	case FamilyMetadata:
		_, ok = r.metadata[key]
	case FamilyGenerative:
		_, ok = r.generative[key]
	}
	return ok
}

// Keys returns the registered keys of a family in sorted order.
func (r *Registry) Keys(family Family) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	switch family {
	case FamilyContext:
		keys = mapKeys(r.context)
	case FamilyMetadata:
		keys = mapKeys(r.metadata)
	case FamilyGenerative:
		keys = mapKeys(r.generative)
	}
	sort.Strings(keys)
	return keys
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Count returns the number of handlers registered for a family.
func (r *Registry) Count(family Family) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch family {
	case FamilyContext:
		return len(r.context)
	case FamilyMetadata:
		return len(r.metadata)
	case FamilyGenerative:
		return len(r.generative)
	}
	return 0
}

// HandlerCount returns the number of handlers across all families.
func (r *Registry) HandlerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.context) + len(r.metadata) + len(r.generative)
}

// RegisterPlugin initializes p against the registry and records it.
// A plugin whose name is already registered is skipped without being
// initialized again. Returns false when p was skipped or its Initialize
// failed or panicked.
func (r *Registry) RegisterPlugin(p Plugin) bool {
	if p == nil {
		r.logger.Warn(ErrMsgNilPlugin)
		return false
	}
	name := p.Name()

	if _, exists := r.Plugin(name); exists {
		r.logger.Warn(LogMsgPluginDuplicate, zap.String(LogFieldPlugin, name))
		return false
	}

	if err := initializePlugin(p, r); err != nil {
		r.logger.Error(LogMsgPluginInitFailed,
			zap.String(LogFieldPlugin, name),
			zap.Error(err),
		)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plugins {
		if existing.Name() == name {
			r.logger.Warn(LogMsgPluginDuplicate, zap.String(LogFieldPlugin, name))
			return false
		}
	}
	r.plugins = append(r.plugins, p)
	r.logger.Info(LogMsgPluginRegistered,
		zap.String(LogFieldPlugin, name),
		zap.String(LogFieldVersion, p.Version()),
	)
	return true
}

func initializePlugin(p Plugin, r *Registry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: %v", ErrMsgHandlerPanicked, rec)
		}
	}()
	return p.Initialize(r)
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Plugin returns the registered plugin with the given name.
func (r *Registry) Plugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// PluginCount returns the number of registered plugins.
func (r *Registry) PluginCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ClearHandlers removes every handler of every family.
func (r *Registry) ClearHandlers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.context = make(map[string]ContextHandler)
	r.metadata = make(map[string]MetadataHandler)
	r.generative = make(map[string]GenerativeHandler)
	r.logger.Info(LogMsgHandlersCleared)
}

// ClearPlugins shuts down and removes every plugin. Shutdown failures are
// logged and otherwise ignored.
func (r *Registry) ClearPlugins() {
	r.mu.Lock()
	plugins := r.plugins
	r.plugins = nil
	logger := r.logger
	r.mu.Unlock()

	for _, p := range plugins {
		if err := shutdownPlugin(p); err != nil {
			logger.Error(LogMsgPluginShutdownFailed,
				zap.String(LogFieldPlugin, p.Name()),
				zap.Error(err),
			)
		}
	}
	logger.Info(LogMsgPluginsCleared)
}

func shutdownPlugin(p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: %v", ErrMsgHandlerPanicked, rec)
		}
	}()
	return p.Shutdown()
}

// ClearAll removes plugins and handlers.
func (r *Registry) ClearAll() {
	r.ClearPlugins()
	r.ClearHandlers()
	r.logger.Info(LogMsgRegistryCleared)
}
