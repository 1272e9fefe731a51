package kmc

import (
	"context"
)

// ContextHandler resolves [[type:name]] variables registered under type.
type ContextHandler interface {
	ResolveContext(ctx context.Context, name string) (string, error)
}

// MetadataHandler resolves [{type:name}] variables registered under type
// when the document has no Definition for them.
type MetadataHandler interface {
	ResolveMetadata(ctx context.Context, name string) (string, error)
}

// GenerativeHandler produces content for a generative variable registered
// under category:subtype. The variable carries the resolved prompt, format
// and parameters.
type GenerativeHandler interface {
	Generate(ctx context.Context, v *GenerativeVariable) (string, error)
}

// ContextFunc adapts a function to ContextHandler.
type ContextFunc func(ctx context.Context, name string) (string, error)

// ResolveContext calls f.
func (f ContextFunc) ResolveContext(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// MetadataFunc adapts a function to MetadataHandler.
type MetadataFunc func(ctx context.Context, name string) (string, error)

// ResolveMetadata calls f.
func (f MetadataFunc) ResolveMetadata(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// GenerativeFunc adapts a function to GenerativeHandler.
type GenerativeFunc func(ctx context.Context, v *GenerativeVariable) (string, error)

// Generate calls f.
func (f GenerativeFunc) Generate(ctx context.Context, v *GenerativeVariable) (string, error) {
	return f(ctx, v)
}

// Lookup is a map-backed handler usable for both the context and metadata
// families. Unknown names return ErrValueNotFound, so the variable stays
// literal in the output.
type Lookup map[string]string

func (l Lookup) get(name string) (string, error) {
	v, ok := l[name]
	if !ok {
		return "", NewValueNotFoundError("", name)
	}
	return v, nil
}

// ResolveContext returns the value stored under name.
func (l Lookup) ResolveContext(_ context.Context, name string) (string, error) {
	return l.get(name)
}

// ResolveMetadata returns the value stored under name.
func (l Lookup) ResolveMetadata(_ context.Context, name string) (string, error) {
	return l.get(name)
}

// HandlerRegistration pairs a handler with the family and key it serves.
// Extension modules return these from their entry point.
type HandlerRegistration struct {
	Family  Family
	Key     string
	Handler any
}

// checkHandler verifies that h implements the interface of family.
func checkHandler(family Family, key string, h any) error {
	if key == "" {
		return NewRegistryError(ErrMsgEmptyHandlerKey, family, key)
	}
	if h == nil {
		return NewRegistryError(ErrMsgNilHandler, family, key)
	}
	var ok bool
	switch family {
	case FamilyContext:
		_, ok = h.(ContextHandler)
	case FamilyMetadata:
		_, ok = h.(MetadataHandler)
	case FamilyGenerative:
		_, ok = h.(GenerativeHandler)
	default:
		return NewInvalidFamilyError(string(family))
	}
	if !ok {
		return NewHandlerTypeError(family, key, h)
	}
	return nil
}
