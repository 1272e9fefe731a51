package kmc

import (
	"maps"
)

// Plugin bundles handlers and other setup behind a single named unit.
// Initialize receives the registry the plugin is being added to and is
// expected to register its handlers there.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Initialize(r *Registry) error
	Shutdown() error
}

// PluginFactory builds a plugin from configuration options.
type PluginFactory func(options map[string]any) (Plugin, error)

// PluginInfo is a snapshot of plugin metadata.
type PluginInfo struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description" yaml:"description"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Registered  bool           `json:"registered" yaml:"registered"`
}

// pluginConfigSecretKey is never copied into PluginInfo.
const pluginConfigSecretKey = "credentials"

// BasePlugin provides the descriptive half of Plugin. Embed it and add
// an Initialize method.
type BasePlugin struct {
	PluginName        string
	PluginVersion     string
	PluginDescription string
	Config            map[string]any
}

// NewBasePlugin returns a BasePlugin with defaults applied to empty fields.
func NewBasePlugin(name, version, description string, config map[string]any) BasePlugin {
	if config == nil {
		config = make(map[string]any)
	}
	return BasePlugin{
		PluginName:        name,
		PluginVersion:     version,
		PluginDescription: description,
		Config:            config,
	}
}

func (b *BasePlugin) Name() string { return b.PluginName }

// Version returns the configured version or DefaultPluginVersion.
func (b *BasePlugin) Version() string {
	if b.PluginVersion == "" {
		return DefaultPluginVersion
	}
	return b.PluginVersion
}

// Description returns the configured description or DefaultPluginDescription.
func (b *BasePlugin) Description() string {
	if b.PluginDescription == "" {
		return DefaultPluginDescription
	}
	return b.PluginDescription
}

// Shutdown does nothing.
func (b *BasePlugin) Shutdown() error { return nil }

// String returns "name vversion".
func (b *BasePlugin) String() string {
	return b.Name() + " v" + b.Version()
}

// Info describes p. Registered reports whether r holds a plugin with
// the same name; r may be nil.
func Info(p Plugin, r *Registry) PluginInfo {
	info := PluginInfo{
		Name:        p.Name(),
		Version:     p.Version(),
		Description: p.Description(),
	}
	if c, ok := p.(interface{ Options() map[string]any }); ok {
		info.Config = redactConfig(c.Options())
	}
	if r != nil {
		_, info.Registered = r.Plugin(p.Name())
	}
	return info
}

// Options returns the plugin configuration.
func (b *BasePlugin) Options() map[string]any { return b.Config }

// UpdateConfig merges options into the plugin configuration.
func (b *BasePlugin) UpdateConfig(options map[string]any) error {
	if b.Config == nil {
		b.Config = make(map[string]any)
	}
	maps.Copy(b.Config, options)
	return nil
}

func redactConfig(config map[string]any) map[string]any {
	if len(config) == 0 {
		return nil
	}
	out := maps.Clone(config)
	delete(out, pluginConfigSecretKey)
	return out
}
