package kmc

import (
	"sort"
	"sync"
)

// ExtensionSet is what an extension module contributes: handlers to
// register and plugins to initialize.
type ExtensionSet struct {
	Handlers []HandlerRegistration
	Plugins  []Plugin
}

// Empty reports whether the set contributes nothing.
func (s ExtensionSet) Empty() bool {
	return len(s.Handlers) == 0 && len(s.Plugins) == 0
}

// HandlerFactory builds a handler for key from manifest configuration.
// The returned value must implement the interface of the family it is
// registered under.
type HandlerFactory func(key string, config map[string]any) (any, error)

// Extension catalog. Factories are compiled into the binary and referenced
// by name from manifest modules.
var (
	catalogMu        sync.RWMutex
	handlerFactories = make(map[string]HandlerFactory)
	pluginFactories  = make(map[string]PluginFactory)
)

// RegisterHandlerFactory adds a named handler factory to the catalog.
// This is typically called from an init() function.
// Panics if the factory is nil or the name is already taken.
func RegisterHandlerFactory(name string, factory HandlerFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if factory == nil {
		panic(ErrMsgNilFactory)
	}
	if _, exists := handlerFactories[name]; exists {
		panic(ErrMsgFactoryAlreadyRegistered + ": " + name)
	}
	handlerFactories[name] = factory
}

// RegisterPluginFactory adds a named plugin factory to the catalog.
// Panics if the factory is nil or the name is already taken.
func RegisterPluginFactory(name string, factory PluginFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if factory == nil {
		panic(ErrMsgNilFactory)
	}
	if _, exists := pluginFactories[name]; exists {
		panic(ErrMsgFactoryAlreadyRegistered + ": " + name)
	}
	pluginFactories[name] = factory
}

// LookupHandlerFactory returns the handler factory registered under name.
func LookupHandlerFactory(name string) (HandlerFactory, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	f, ok := handlerFactories[name]
	return f, ok
}

// LookupPluginFactory returns the plugin factory registered under name.
func LookupPluginFactory(name string) (PluginFactory, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	f, ok := pluginFactories[name]
	return f, ok
}

// HandlerFactories returns the names of all catalog handler factories.
func HandlerFactories() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := mapKeys(handlerFactories)
	sort.Strings(names)
	return names
}

// PluginFactories returns the names of all catalog plugin factories.
func PluginFactories() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := mapKeys(pluginFactories)
	sort.Strings(names)
	return names
}

// NewHandler builds a handler through the named catalog factory.
func NewHandler(factory, key string, config map[string]any) (any, error) {
	f, ok := LookupHandlerFactory(factory)
	if !ok {
		return nil, NewFactoryNotFoundError(ErrMsgHandlerFactoryAbsent, factory)
	}
	return f(key, config)
}

// NewPlugin builds a plugin through the named catalog factory.
func NewPlugin(factory string, options map[string]any) (Plugin, error) {
	f, ok := LookupPluginFactory(factory)
	if !ok {
		return nil, NewFactoryNotFoundError(ErrMsgPluginFactoryAbsent, factory)
	}
	return f(options)
}
