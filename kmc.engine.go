package kmc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine resolves KMC documents. Handlers registered on the engine take
// precedence over those in the shared registry.
// An Engine is safe for concurrent use; each render works on its own state.
type Engine struct {
	registry  *Registry
	local     *Registry
	discovery *Discovery
	config    *engineConfig
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	config := defaultEngineConfig()
	for _, opt := range opts {
		opt(config)
	}

	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := config.registry
	if registry == nil {
		registry = Default()
	}
	tracer := config.tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	e := &Engine{
		registry: registry,
		local:    NewRegistry(logger),
		config:   config,
		logger:   logger,
		tracer:   tracer,
	}
	if err := e.local.RegisterAll(config.handlers); err != nil {
		return nil, err
	}

	if config.discover {
		logger.Info(LogMsgAutoDiscovery, zap.String(LogFieldBasePath, config.discoverBase))
		e.discovery = NewDiscovery(registry,
			WithDiscoveryLogger(logger),
			WithDiscoveryTracer(tracer),
		)
		e.discovery.DiscoverAll(context.Background(), config.discoverBase, config.discoverDirs...)
	}
	return e, nil
}

// MustNew creates a new Engine and panics if there's an error.
func MustNew(opts ...Option) *Engine {
	engine, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return engine
}

// Registry returns the shared registry the engine falls back to.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Discovery returns the discovery used by WithAutoDiscovery, or nil.
func (e *Engine) Discovery() *Discovery {
	return e.discovery
}

// RegisterContext registers an engine-local context handler.
func (e *Engine) RegisterContext(key string, h ContextHandler) error {
	return e.local.RegisterContext(key, h)
}

// RegisterMetadata registers an engine-local metadata handler.
func (e *Engine) RegisterMetadata(key string, h MetadataHandler) error {
	return e.local.RegisterMetadata(key, h)
}

// RegisterGenerative registers an engine-local generative handler.
func (e *Engine) RegisterGenerative(key string, h GenerativeHandler) error {
	return e.local.RegisterGenerative(key, h)
}

func (e *Engine) contextHandler(key string) (ContextHandler, bool) {
	if h, ok := e.local.Context(key); ok {
		return h, true
	}
	return e.registry.Context(key)
}

func (e *Engine) metadataHandler(key string) (MetadataHandler, bool) {
	if h, ok := e.local.Metadata(key); ok {
		return h, true
	}
	return e.registry.Metadata(key)
}

func (e *Engine) generativeHandler(key string) (GenerativeHandler, bool) {
	if h, ok := e.local.Generative(key); ok {
		return h, true
	}
	return e.registry.Generative(key)
}

// Parse parses text into a Document and logs definitions that were
// skipped or overridden.
func (e *Engine) Parse(text string) *Document {
	doc := ParseDocument(text)
	for _, s := range doc.Skipped {
		e.logger.Debug(LogMsgDefinitionSkipped, zap.String(LogFieldReason, s.Reason))
	}
	for _, ref := range doc.Overridden {
		e.logger.Debug(LogMsgDefinitionOverridden, zap.String(LogFieldTarget, ref))
	}
	e.logger.Debug(LogMsgParseComplete,
		zap.Int(LogFieldSourceLen, len(text)),
		zap.Int(LogFieldContextual, len(doc.Contextual)),
		zap.Int(LogFieldMetadata, len(doc.Metadata)),
		zap.Int(LogFieldGenerative, len(doc.Generative)),
		zap.Int(LogFieldDefinitions, len(doc.Definitions)),
	)
	return doc
}

// Render parses and resolves text. Handler failures never fail the render;
// they appear as error tokens in the output. The only error returned is a
// cancelled or expired ctx.
func (e *Engine) Render(ctx context.Context, text string) (string, error) {
	result, err := e.RenderDocument(ctx, e.Parse(text))
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// RenderResult is the outcome of one render.
type RenderResult struct {
	// ID correlates log entries and spans of one render.
	ID       string
	Output   string
	Document *Document
	// Resolved maps variable syntax to the substituted value.
	Resolved map[string]string
	// Unresolved lists variables left literal or replaced by a placeholder
	// because no handler was registered.
	Unresolved []string
	Errors     []ResolutionError
	Duration   time.Duration
}

// ResolutionError records a handler failure within a render.
type ResolutionError struct {
	Family Family
	Key    string
	Name   string
	// Token is the text written in place of the variable.
	Token string
	Err   error
}

// Error implements the error interface.
func (r ResolutionError) Error() string {
	return r.Token + ": " + r.Err.Error()
}

// Unwrap returns the handler error.
func (r ResolutionError) Unwrap() error {
	return r.Err
}

// ErrorToken returns the in-band marker for a failed handler call.
func ErrorToken(key, name string) string {
	if name == "" {
		return ErrorTokenPrefix + KeySeparator + key
	}
	return ErrorTokenPrefix + KeySeparator + key + KeySeparator + name
}

// RenderDocument resolves a parsed document.
func (e *Engine) RenderDocument(ctx context.Context, doc *Document) (*RenderResult, error) {
	if doc == nil {
		doc = ParseDocument("")
	}
	start := time.Now()
	result := &RenderResult{
		ID:       uuid.NewString(),
		Document: doc,
		Resolved: make(map[string]string),
	}

	ctx, span := e.tracer.Start(ctx, SpanNameRender)
	span.SetAttributes(renderIDAttr(result.ID))

	logger := e.logger.With(zap.String(LogFieldRenderID, result.ID))
	logger.Debug(LogMsgRenderStart, zap.Int(LogFieldSourceLen, len(doc.Source)))

	r := &render{
		engine: e,
		doc:    doc,
		result: result,
		logger: logger,
		values: make(map[string]string),
	}
	out, err := r.run(ctx)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	result.Output = out
	result.Duration = time.Since(start)
	logger.Debug(LogMsgRenderComplete,
		zap.Duration(LogFieldDuration, result.Duration),
		zap.Int(LogFieldErrors, len(result.Errors)),
		zap.Int(LogFieldUnresolved, len(result.Unresolved)),
	)
	endSpan(span, nil)
	return result, nil
}
