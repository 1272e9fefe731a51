package kmc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// render holds the state of one RenderDocument call.
type render struct {
	engine *Engine
	doc    *Document
	result *RenderResult
	logger *zap.Logger

	// values caches handler results by variable syntax so each unique
	// variable is resolved once per render.
	values map[string]string
	// defined holds definition results by target ref.
	defined    map[string]string
	unresolved map[string]struct{}
}

// run executes the phases in order: contextual variables, definitions,
// metadata without definitions, then free prompts when enabled. Values are
// collected first and substituted into Body in a single pass, so handler
// output is never scanned for variables. Directive comments were already
// removed from Body by the parser.
func (r *render) run(ctx context.Context) (string, error) {
	r.defined = make(map[string]string)
	r.unresolved = make(map[string]struct{})
	var pairs []string
	substitute := func(syntax, value string) {
		pairs = append(pairs, syntax, value)
		r.result.Resolved[syntax] = value
	}

	for _, v := range r.doc.Contextual {
		value, ok, err := r.contextual(ctx, v)
		if err != nil {
			return "", err
		}
		if ok {
			substitute(v.Syntax(), value)
		}
	}

	for _, def := range r.doc.Definitions {
		target := def.Target.Syntax()
		if !r.doc.Uses(target) {
			continue
		}
		value, err := r.definition(ctx, def)
		if err != nil {
			return "", err
		}
		substitute(target, value)
	}

	for _, v := range r.doc.Metadata {
		if r.doc.Defines(v) {
			continue
		}
		value, ok, err := r.metadata(ctx, v)
		if err != nil {
			return "", err
		}
		if ok {
			substitute(v.Syntax(), value)
		}
	}

	if r.engine.config.freePrompts {
		for _, gv := range r.doc.Generative {
			if !gv.HasPrompt() {
				continue
			}
			value, ok, err := r.freePrompt(ctx, gv)
			if err != nil {
				return "", err
			}
			if ok {
				substitute(gv.Raw, value)
			}
		}
	}

	return replaceAll(r.doc.Body, pairs), nil
}

// replaceAll applies syntax/value pairs to text in one pass.
func replaceAll(text string, pairs []string) string {
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// contextual resolves v through the context handler for its type.
// ok is false when no handler is registered or it has no value for v.
func (r *render) contextual(ctx context.Context, v ContextualVariable) (string, bool, error) {
	syntax := v.Syntax()
	if value, ok := r.values[syntax]; ok {
		return value, true, nil
	}
	if _, ok := r.unresolved[syntax]; ok {
		return "", false, nil
	}
	h, ok := r.engine.contextHandler(v.Type)
	if !ok {
		r.markUnresolved(FamilyContext, syntax)
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, NewRenderCancelledError(err)
	}
	value, ok := r.call(ctx, FamilyContext, v.Type, v.Name, func(ctx context.Context) (string, error) {
		return h.ResolveContext(ctx, v.Name)
	})
	if !ok {
		r.markUnresolved(FamilyContext, syntax)
		return "", false, nil
	}
	r.values[syntax] = value
	return value, true, nil
}

// metadata resolves v through the metadata handler for its type.
func (r *render) metadata(ctx context.Context, v MetadataVariable) (string, bool, error) {
	syntax := v.Syntax()
	if value, ok := r.values[syntax]; ok {
		return value, true, nil
	}
	if _, ok := r.unresolved[syntax]; ok {
		return "", false, nil
	}
	h, ok := r.engine.metadataHandler(v.Type)
	if !ok {
		r.markUnresolved(FamilyMetadata, syntax)
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, NewRenderCancelledError(err)
	}
	value, ok := r.call(ctx, FamilyMetadata, v.Type, v.Name, func(ctx context.Context) (string, error) {
		return h.ResolveMetadata(ctx, v.Name)
	})
	if !ok {
		r.markUnresolved(FamilyMetadata, syntax)
		return "", false, nil
	}
	r.values[syntax] = value
	return value, true, nil
}

// definition resolves the prompt dependencies of def and calls the
// generative handler of its source. Without a handler the result is the
// placeholder for the target.
func (r *render) definition(ctx context.Context, def *Definition) (string, error) {
	ref := def.TargetRef()
	if value, ok := r.defined[ref]; ok {
		return value, nil
	}

	prompt, err := r.resolvePrompt(ctx, def.Prompt, def.Dependencies)
	if err != nil {
		return "", err
	}

	gv := def.Source.clone()
	gv.Prompt = prompt
	gv.Format = def.Format

	value, ok, err := r.generate(ctx, gv)
	if err != nil {
		return "", err
	}
	if !ok {
		r.logger.Debug(LogMsgDefinitionNoHandler,
			zap.String(LogFieldTarget, ref),
			zap.String(LogFieldKey, gv.HandlerKey()),
		)
		r.markUnresolved(FamilyGenerative, def.Target.Syntax())
		value = fmt.Sprintf(r.engine.config.placeholderFormat, ref)
	}
	r.defined[ref] = value
	return value, nil
}

// freePrompt resolves a generative variable that carries an AI_PROMPT.
func (r *render) freePrompt(ctx context.Context, gv *GenerativeVariable) (string, bool, error) {
	prompt, err := r.resolvePrompt(ctx, gv.Prompt, ScanDependencies(gv.Prompt))
	if err != nil {
		return "", false, err
	}
	v := gv.clone()
	v.Prompt = prompt
	value, ok, err := r.generate(ctx, v)
	if err == nil && !ok {
		r.markUnresolved(FamilyGenerative, gv.Raw)
	}
	return value, ok, err
}

func (r *render) generate(ctx context.Context, gv *GenerativeVariable) (string, bool, error) {
	key := gv.HandlerKey()
	h, ok := r.engine.generativeHandler(key)
	if !ok {
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, NewRenderCancelledError(err)
	}
	value, ok := r.call(ctx, FamilyGenerative, key, gv.Name, func(ctx context.Context) (string, error) {
		return h.Generate(ctx, gv)
	})
	return value, ok, nil
}

// resolvePrompt substitutes the contextual and metadata references of a
// prompt. Metadata references take values of definitions already resolved
// in this render first, then metadata handlers. References without a value
// stay literal. Generative references are not resolved.
func (r *render) resolvePrompt(ctx context.Context, prompt string, deps Dependencies) (string, error) {
	var pairs []string
	for _, ref := range deps.Context {
		typ, name, _ := strings.Cut(ref, KeySeparator)
		v := ContextualVariable{Type: typ, Name: name}
		value, ok, err := r.contextual(ctx, v)
		if err != nil {
			return "", err
		}
		if ok {
			pairs = append(pairs, v.Syntax(), value)
		}
	}

	for _, ref := range deps.Metadata {
		typ, name, _ := strings.Cut(ref, KeySeparator)
		v := MetadataVariable{Type: typ, Name: name}
		if value, ok := r.defined[ref]; ok {
			pairs = append(pairs, v.Syntax(), value)
			continue
		}
		value, ok, err := r.metadata(ctx, v)
		if err != nil {
			return "", err
		}
		if ok {
			pairs = append(pairs, v.Syntax(), value)
		}
	}
	return replaceAll(prompt, pairs), nil
}

// call invokes a handler inside a resolve span. Errors and panics are
// recorded and turned into an error token. ok is false when the handler
// reports ErrValueNotFound.
func (r *render) call(ctx context.Context, family Family, key, name string, fn func(context.Context) (string, error)) (string, bool) {
	value, err := r.invoke(ctx, family, key, name, fn)
	if err == nil {
		r.logger.Debug(LogMsgVariableResolved,
			zap.String(LogFieldFamily, string(family)),
			zap.String(LogFieldKey, key),
			zap.String(LogFieldName, name),
		)
		return value, true
	}
	if errors.Is(err, ErrValueNotFound) {
		return "", false
	}

	token := ErrorToken(key, name)
	r.result.Errors = append(r.result.Errors, ResolutionError{
		Family: family,
		Key:    key,
		Name:   name,
		Token:  token,
		Err:    err,
	})
	r.logger.Error(LogMsgHandlerFailed,
		zap.String(LogFieldFamily, string(family)),
		zap.String(LogFieldKey, key),
		zap.String(LogFieldName, name),
		zap.Error(err),
	)
	return token, true
}

func (r *render) invoke(ctx context.Context, family Family, key, name string, fn func(context.Context) (string, error)) (value string, err error) {
	ctx, span := startResolveSpan(ctx, r.engine.tracer, family, key, name)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(LogMsgHandlerPanicked,
				zap.String(LogFieldKey, key),
				zap.String(LogFieldName, name),
				zap.Any(LogFieldPanic, rec),
			)
			value = ""
			err = NewHandlerPanicError(family, key, name, rec)
		}
		endSpan(span, err)
	}()

	value, err = fn(ctx)
	if err != nil {
		return "", NewHandlerError(family, key, name, err)
	}
	return value, nil
}

func (r *render) markUnresolved(family Family, syntax string) {
	if _, ok := r.unresolved[syntax]; ok {
		return
	}
	r.unresolved[syntax] = struct{}{}
	r.result.Unresolved = append(r.result.Unresolved, syntax)
	r.logger.Debug(LogMsgVariableUnresolved,
		zap.String(LogFieldFamily, string(family)),
		zap.String(LogFieldVariable, syntax),
	)
}
