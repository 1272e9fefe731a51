package kmc

import (
	"maps"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// PluginManager loads plugins into a registry and keeps their options.
type PluginManager struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	configs map[string]map[string]any
}

// NewPluginManager creates a manager for registry. A nil registry means Default().
func NewPluginManager(registry *Registry, logger *zap.Logger) *PluginManager {
	if registry == nil {
		registry = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PluginManager{
		registry: registry,
		logger:   logger,
		configs:  make(map[string]map[string]any),
	}
}

// Load builds a plugin with factory, registers it and records options under
// the plugin name. Returns false if the factory fails or the registry
// rejects the plugin.
func (m *PluginManager) Load(factory PluginFactory, options map[string]any) bool {
	if factory == nil {
		m.logger.Error(LogMsgPluginInitFailed, zap.String(LogFieldReason, ErrMsgNilFactory))
		return false
	}
	if options == nil {
		options = make(map[string]any)
	}
	p, err := factory(options)
	if err != nil {
		m.logger.Error(LogMsgPluginInitFailed, zap.Error(err))
		return false
	}
	if p == nil {
		m.logger.Error(LogMsgPluginInitFailed, zap.String(LogFieldReason, ErrMsgNilPlugin))
		return false
	}
	if !m.registry.RegisterPlugin(p) {
		return false
	}

	m.mu.Lock()
	m.configs[p.Name()] = maps.Clone(options)
	m.mu.Unlock()
	return true
}

// LoadNamed loads a plugin through a catalog factory.
func (m *PluginManager) LoadNamed(factory string, options map[string]any) bool {
	f, ok := LookupPluginFactory(factory)
	if !ok {
		m.logger.Error(LogMsgPluginFactoryUnknown, zap.String(LogFieldName, factory))
		return false
	}
	return m.Load(f, options)
}

// Config returns a copy of the options recorded for a plugin, or an empty map.
func (m *PluginManager) Config(name string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[name]
	if !ok {
		return map[string]any{}
	}
	return maps.Clone(c)
}

// UpdateConfig merges options into the recorded options of a plugin.
// Unknown plugins get a new entry and a warning. If the plugin accepts
// configuration updates it is notified with the merged result.
func (m *PluginManager) UpdateConfig(name string, options map[string]any) bool {
	m.mu.Lock()
	c, ok := m.configs[name]
	if !ok {
		m.logger.Warn(LogMsgPluginConfigUnknown, zap.String(LogFieldPlugin, name))
		c = make(map[string]any)
		m.configs[name] = c
	}
	maps.Copy(c, options)
	merged := maps.Clone(c)
	m.mu.Unlock()

	if p, found := m.registry.Plugin(name); found {
		if u, ok := p.(interface{ UpdateConfig(map[string]any) error }); ok {
			if err := u.UpdateConfig(merged); err != nil {
				m.logger.Error(LogMsgPluginInitFailed, zap.String(LogFieldPlugin, name), zap.Error(err))
				return false
			}
		}
	}
	m.logger.Debug(LogMsgPluginConfigUpdated, zap.String(LogFieldPlugin, name))
	return true
}

// Instance returns the registered plugin with the given name.
func (m *PluginManager) Instance(name string) (Plugin, bool) {
	return m.registry.Plugin(name)
}

// Loaded returns the names of plugins loaded through the manager, sorted.
func (m *PluginManager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := mapKeys(m.configs)
	sort.Strings(names)
	return names
}

// Shutdown shuts down every plugin in the registry and forgets all options.
func (m *PluginManager) Shutdown() {
	m.registry.ClearPlugins()
	m.mu.Lock()
	m.configs = make(map[string]map[string]any)
	m.mu.Unlock()
}
