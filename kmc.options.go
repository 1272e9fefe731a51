package kmc

import (
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option is a functional option for configuring the Engine.
type Option func(*engineConfig)

// engineConfig holds the internal configuration for an Engine.
type engineConfig struct {
	logger            *zap.Logger
	registry          *Registry
	tracer            trace.Tracer
	freePrompts       bool
	placeholderFormat string
	discover          bool
	discoverBase      string
	discoverDirs      []string
	handlers          []HandlerRegistration
}

// defaultEngineConfig returns the default engine configuration.
func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		placeholderFormat: DefaultPlaceholderFormat,
	}
}

// WithLogger sets the logger for the engine.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithRegistry sets the shared registry consulted after the engine's own
// handlers.
// Default: Default()
func WithRegistry(registry *Registry) Option {
	return func(c *engineConfig) {
		c.registry = registry
	}
}

// WithTracer sets the tracer used for render and resolve spans.
// Default: the tracer of the global otel provider
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithFreePrompts enables substitution of generative variables that have
// an AI_PROMPT comment. Other generative variables stay literal.
// Default: false
func WithFreePrompts(enabled bool) Option {
	return func(c *engineConfig) {
		c.freePrompts = enabled
	}
}

// WithPlaceholderFormat sets the fmt pattern used for a defined metadata
// variable whose generative handler is missing. It receives "type:name".
// A format without exactly one %s verb is ignored.
// Default: "<%s>"
func WithPlaceholderFormat(format string) Option {
	return func(c *engineConfig) {
		if ValidPlaceholderFormat(format) {
			c.placeholderFormat = format
		}
	}
}

// ValidPlaceholderFormat reports whether format contains exactly one %s
// and no other verbs. %% is allowed.
func ValidPlaceholderFormat(format string) bool {
	rest := strings.ReplaceAll(format, "%%", "")
	if strings.Count(rest, "%s") != 1 {
		return false
	}
	return !strings.Contains(strings.Replace(rest, "%s", "", 1), "%")
}

// WithAutoDiscovery runs extension discovery into the engine registry
// while the engine is created.
func WithAutoDiscovery(basePath string, extraDirs ...string) Option {
	return func(c *engineConfig) {
		c.discover = true
		c.discoverBase = basePath
		c.discoverDirs = extraDirs
	}
}

// WithHandlers registers handlers on the engine itself while it is
// created. New fails if a registration is invalid.
func WithHandlers(regs ...HandlerRegistration) Option {
	return func(c *engineConfig) {
		c.handlers = append(c.handlers, regs...)
	}
}
