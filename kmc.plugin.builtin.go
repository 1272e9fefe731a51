package kmc

import (
	"slices"
)

func init() {
	RegisterPluginFactory(PluginFactoryStatic, newStaticPluginFromOptions)
}

// StaticPlugin registers static lookup handlers when initialized.
// Manifests declare it with factory "static":
//
//	plugins:
//	  - factory: static
//	    options:
//	      name: project_data
//	      context:
//	        project: {nombre: Demo}
//	      metadata:
//	        doc: {version: "1.0"}
type StaticPlugin struct {
	BasePlugin
	Context  map[string]map[string]string
	Metadata map[string]map[string]string
}

// Initialize registers one StaticHandler per configured type.
func (p *StaticPlugin) Initialize(r *Registry) error {
	for _, fam := range []struct {
		family Family
		values map[string]map[string]string
	}{
		{FamilyContext, p.Context},
		{FamilyMetadata, p.Metadata},
	} {
		keys := mapKeys(fam.values)
		slices.Sort(keys)
		for _, key := range keys {
			if err := r.Register(fam.family, key, NewStaticHandler(key, fam.values[key])); err != nil {
				return err
			}
		}
	}
	return nil
}

func newStaticPluginFromOptions(options map[string]any) (Plugin, error) {
	name, err := configString(options, PluginOptionName, true)
	if err != nil {
		return nil, err
	}
	version, err := configString(options, PluginOptionVersion, false)
	if err != nil {
		return nil, err
	}
	description, err := configString(options, PluginOptionDescription, false)
	if err != nil {
		return nil, err
	}
	contextValues, err := nestedValues(options, PluginOptionContext)
	if err != nil {
		return nil, err
	}
	metadataValues, err := nestedValues(options, PluginOptionMetadata)
	if err != nil {
		return nil, err
	}
	return &StaticPlugin{
		BasePlugin: NewBasePlugin(name, version, description, options),
		Context:    contextValues,
		Metadata:   metadataValues,
	}, nil
}

// nestedValues reads options[field] as type -> name -> value.
func nestedValues(options map[string]any, field string) (map[string]map[string]string, error) {
	raw, ok := options[field]
	if !ok || raw == nil {
		return nil, nil
	}
	types, ok := raw.(map[string]any)
	if !ok {
		return nil, NewHandlerConfigError(ErrMsgConfigValueType, field)
	}
	out := make(map[string]map[string]string, len(types))
	for typ, values := range types {
		m, ok := values.(map[string]any)
		if !ok {
			return nil, NewHandlerConfigError(ErrMsgConfigValueType, field+KeySeparator+typ)
		}
		out[typ] = stringifyValues(m)
	}
	return out, nil
}
