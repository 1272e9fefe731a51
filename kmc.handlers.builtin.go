package kmc

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

func init() {
	RegisterHandlerFactory(HandlerFactoryStatic, newStaticHandlerFromConfig)
	RegisterHandlerFactory(HandlerFactoryFile, newDataFileHandlerFromConfig)
	RegisterHandlerFactory(HandlerFactoryEnv, newEnvHandlerFromConfig)
	RegisterHandlerFactory(HandlerFactoryEcho, newPromptEchoHandlerFromConfig)
}

// fallbackValue is returned by lookup handlers for names they do not know.
func fallbackValue(key, name string) string {
	return fmt.Sprintf(DefaultPlaceholderFormat, key+KeySeparator+name)
}

// StaticHandler serves a fixed set of values for one type. Unknown names
// resolve to "<type:name>". It implements both ContextHandler and
// MetadataHandler.
type StaticHandler struct {
	Type   string
	Values map[string]string
}

// NewStaticHandler creates a StaticHandler for key.
func NewStaticHandler(key string, values map[string]string) *StaticHandler {
	if values == nil {
		values = make(map[string]string)
	}
	return &StaticHandler{Type: key, Values: values}
}

func (h *StaticHandler) lookup(name string) string {
	if v, ok := h.Values[name]; ok {
		return v
	}
	return fallbackValue(h.Type, name)
}

// ResolveContext returns the value for name.
func (h *StaticHandler) ResolveContext(_ context.Context, name string) (string, error) {
	return h.lookup(name), nil
}

// ResolveMetadata returns the value for name.
func (h *StaticHandler) ResolveMetadata(_ context.Context, name string) (string, error) {
	return h.lookup(name), nil
}

func newStaticHandlerFromConfig(key string, config map[string]any) (any, error) {
	raw, ok := config[ConfigKeyValues]
	if !ok {
		return NewStaticHandler(key, nil), nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewHandlerConfigError(ErrMsgConfigValueType, ConfigKeyValues)
	}
	return NewStaticHandler(key, stringifyValues(m)), nil
}

// NewDataFileHandler loads a flat YAML or JSON object from path and serves
// it like a StaticHandler.
func NewDataFileHandler(key, path string) (*StaticHandler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDataFileError(path, err)
	}
	var m map[string]any
	// JSON documents are valid YAML.
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, NewDataFileError(path, err)
	}
	return NewStaticHandler(key, stringifyValues(m)), nil
}

func newDataFileHandlerFromConfig(key string, config map[string]any) (any, error) {
	path, err := configString(config, ConfigKeyPath, true)
	if err != nil {
		return nil, err
	}
	return NewDataFileHandler(key, path)
}

// EnvHandler resolves names from environment variables. The variable read
// is Prefix followed by the upper-cased name.
type EnvHandler struct {
	Type   string
	Prefix string
}

// NewEnvHandler creates an EnvHandler for key.
func NewEnvHandler(key, prefix string) *EnvHandler {
	return &EnvHandler{Type: key, Prefix: prefix}
}

func (h *EnvHandler) lookup(name string) string {
	if v, ok := os.LookupEnv(h.Prefix + strings.ToUpper(name)); ok {
		return v
	}
	return fallbackValue(h.Type, name)
}

// ResolveContext returns the environment value for name.
func (h *EnvHandler) ResolveContext(_ context.Context, name string) (string, error) {
	return h.lookup(name), nil
}

// ResolveMetadata returns the environment value for name.
func (h *EnvHandler) ResolveMetadata(_ context.Context, name string) (string, error) {
	return h.lookup(name), nil
}

func newEnvHandlerFromConfig(key string, config map[string]any) (any, error) {
	prefix, err := configString(config, ConfigKeyPrefix, false)
	if err != nil {
		return nil, err
	}
	return NewEnvHandler(key, prefix), nil
}

// PromptEchoHandler is a generative handler that returns the resolved
// prompt. Format, when set, is a fmt pattern with one %s verb.
type PromptEchoHandler struct {
	Format string
}

// Generate returns the prompt of v.
func (h *PromptEchoHandler) Generate(_ context.Context, v *GenerativeVariable) (string, error) {
	if h.Format == "" {
		return v.Prompt, nil
	}
	return fmt.Sprintf(h.Format, v.Prompt), nil
}

func newPromptEchoHandlerFromConfig(_ string, config map[string]any) (any, error) {
	format, err := configString(config, ConfigKeyFormat, false)
	if err != nil {
		return nil, err
	}
	return &PromptEchoHandler{Format: format}, nil
}

func configString(config map[string]any, field string, required bool) (string, error) {
	raw, ok := config[field]
	if !ok || raw == nil {
		if required {
			return "", NewHandlerConfigError(ErrMsgConfigMissing, field)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", NewHandlerConfigError(ErrMsgConfigValueType, field)
	}
	if required && s == "" {
		return "", NewHandlerConfigError(ErrMsgConfigMissing, field)
	}
	return s, nil
}

func stringifyValues(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
