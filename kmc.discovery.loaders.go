package kmc

import (
	"os"
	"path/filepath"
	"plugin"

	"gopkg.in/yaml.v3"
)

// ModuleLoader turns one extension module file into an ExtensionSet.
type ModuleLoader interface {
	// Extensions lists the lower-case file extensions the loader accepts.
	Extensions() []string
	// Load reads the module at path.
	Load(path string) (ExtensionSet, error)
}

// Manifest is the on-disk form of a declarative extension module.
// YAML and JSON encodings are both accepted.
//
//	name: project_data
//	handlers:
//	  - family: context
//	    key: project
//	    values: {nombre: Demo}
//	  - family: generative
//	    key: ai:echo
//	    factory: echo
//	plugins:
//	  - factory: audit
//	    options: {level: debug}
type Manifest struct {
	Name     string            `yaml:"name" json:"name"`
	Handlers []ManifestHandler `yaml:"handlers" json:"handlers"`
	Plugins  []ManifestPlugin  `yaml:"plugins" json:"plugins"`
}

// ManifestHandler declares one handler. Either Factory or Values must be
// set; Values alone produces a static lookup handler.
type ManifestHandler struct {
	Family  string            `yaml:"family" json:"family"`
	Key     string            `yaml:"key" json:"key"`
	Factory string            `yaml:"factory,omitempty" json:"factory,omitempty"`
	Config  map[string]any    `yaml:"config,omitempty" json:"config,omitempty"`
	Values  map[string]string `yaml:"values,omitempty" json:"values,omitempty"`
}

// ManifestPlugin declares one plugin built by a catalog factory.
type ManifestPlugin struct {
	Factory string         `yaml:"factory" json:"factory"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// ManifestLoader loads .yaml, .yml and .json manifest modules.
type ManifestLoader struct{}

// Extensions implements ModuleLoader.
func (ManifestLoader) Extensions() []string {
	return []string{ModuleExtYAML, ModuleExtYML, ModuleExtJSON}
}

// Load implements ModuleLoader.
func (ManifestLoader) Load(path string) (ExtensionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExtensionSet{}, NewModuleLoadError(path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ExtensionSet{}, NewModuleLoadError(path, err)
	}
	return m.Build(filepath.Dir(path))
}

// Build resolves the manifest against the extension catalog. Relative
// "path" config values are taken relative to dir.
func (m *Manifest) Build(dir string) (ExtensionSet, error) {
	var set ExtensionSet
	for _, mh := range m.Handlers {
		family, err := ParseFamily(mh.Family)
		if err != nil {
			return ExtensionSet{}, err
		}
		h, err := mh.build(dir)
		if err != nil {
			return ExtensionSet{}, err
		}
		set.Handlers = append(set.Handlers, HandlerRegistration{Family: family, Key: mh.Key, Handler: h})
	}
	for _, mp := range m.Plugins {
		p, err := NewPlugin(mp.Factory, mp.Options)
		if err != nil {
			return ExtensionSet{}, err
		}
		set.Plugins = append(set.Plugins, p)
	}
	return set, nil
}

func (mh ManifestHandler) build(dir string) (any, error) {
	if mh.Factory == "" {
		if mh.Values == nil {
			return nil, NewDiscoveryError(ErrMsgManifestNoHandler, mh.Key)
		}
		return NewStaticHandler(mh.Key, mh.Values), nil
	}

	config := make(map[string]any, len(mh.Config)+1)
	for k, v := range mh.Config {
		config[k] = v
	}
	if p, ok := config[ConfigKeyPath].(string); ok && p != "" && !filepath.IsAbs(p) {
		config[ConfigKeyPath] = filepath.Join(dir, p)
	}
	if mh.Values != nil {
		if _, set := config[ConfigKeyValues]; !set {
			values := make(map[string]any, len(mh.Values))
			for k, v := range mh.Values {
				values[k] = v
			}
			config[ConfigKeyValues] = values
		}
	}
	return NewHandler(mh.Factory, mh.Key, config)
}

// GoPluginLoader loads compiled Go plugins (.so) that export
// KMCExtension of type func() ExtensionSet.
type GoPluginLoader struct{}

// Extensions implements ModuleLoader.
func (GoPluginLoader) Extensions() []string {
	return []string{ModuleExtGoPlugin}
}

// Load implements ModuleLoader.
func (GoPluginLoader) Load(path string) (ExtensionSet, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return ExtensionSet{}, NewModuleLoadError(path, err)
	}
	sym, err := p.Lookup(GoPluginSymbol)
	if err != nil {
		return ExtensionSet{}, NewDiscoveryError(ErrMsgPluginSymbolMissing, path)
	}
	switch entry := sym.(type) {
	case func() ExtensionSet:
		return entry(), nil
	case *func() ExtensionSet:
		return (*entry)(), nil
	default:
		return ExtensionSet{}, NewDiscoveryError(ErrMsgPluginSymbolType, path)
	}
}
