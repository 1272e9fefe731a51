package kmc

import (
	"github.com/itsatony/go-kmc/internal"
)

// Family identifies one of the three handler namespaces.
type Family string

// String returns the family name.
func (f Family) String() string {
	return string(f)
}

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	switch f {
	case FamilyContext, FamilyMetadata, FamilyGenerative:
		return true
	default:
		return false
	}
}

// ParseFamily converts a family name into a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if !f.Valid() {
		return "", NewInvalidFamilyError(s)
	}
	return f, nil
}

// Variable is implemented by the three placeholder kinds.
type Variable interface {
	// Family returns the handler namespace used to resolve the variable.
	Family() Family
	// HandlerKey returns the registry key: type for contextual and metadata
	// variables, category:subtype for generative ones.
	HandlerKey() string
	// VarName returns the name segment, possibly empty for generative variables.
	VarName() string
	// Syntax returns the canonical literal form as written in a document.
	Syntax() string
}

// ContextualVariable is a [[type:name]] placeholder.
type ContextualVariable struct {
	Type string
	Name string
}

// Family returns FamilyContext.
func (v ContextualVariable) Family() Family { return FamilyContext }

// HandlerKey returns the type segment.
func (v ContextualVariable) HandlerKey() string { return v.Type }

// VarName returns the name segment.
func (v ContextualVariable) VarName() string { return v.Name }

// Syntax returns "[[type:name]]".
func (v ContextualVariable) Syntax() string { return internal.FormatContextual(v.Type, v.Name) }

// Ref returns "type:name".
func (v ContextualVariable) Ref() string { return v.Type + KeySeparator + v.Name }

// MetadataVariable is a [{type:name}] placeholder.
type MetadataVariable struct {
	Type string
	Name string
}

// Family returns FamilyMetadata.
func (v MetadataVariable) Family() Family { return FamilyMetadata }

// HandlerKey returns the type segment.
func (v MetadataVariable) HandlerKey() string { return v.Type }

// VarName returns the name segment.
func (v MetadataVariable) VarName() string { return v.Name }

// Syntax returns "[{type:name}]".
func (v MetadataVariable) Syntax() string { return internal.FormatMetadata(v.Type, v.Name) }

// Ref returns "type:name".
func (v MetadataVariable) Ref() string { return v.Type + KeySeparator + v.Name }

// Param is one key=value pair of a generative variable.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered string map.
type Params []Param

// Get returns the value for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key or appends a new one.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: value})
}

// Keys returns the keys in insertion order.
func (p Params) Keys() []string {
	keys := make([]string, len(p))
	for i, kv := range p {
		keys[i] = kv.Key
	}
	return keys
}

// Map returns an unordered copy.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}
	return m
}

// GenerativeVariable is a {{category:subtype[:name]}} placeholder. It is never
// substituted where it is written; generative handlers receive it when a
// Definition (or, optionally, a free prompt) points at it.
type GenerativeVariable struct {
	Category   string
	Subtype    string
	Name       string
	Prompt     string // empty when no prompt is attached
	Format     string // empty when no format is requested
	Parameters Params
	// Raw is the exact text matched in the document, parameters included.
	Raw string
}

// Family returns FamilyGenerative.
func (v *GenerativeVariable) Family() Family { return FamilyGenerative }

// HandlerKey returns "category:subtype".
func (v *GenerativeVariable) HandlerKey() string { return v.Category + KeySeparator + v.Subtype }

// VarName returns the optional name segment.
func (v *GenerativeVariable) VarName() string { return v.Name }

// Syntax returns the canonical form without parameters.
func (v *GenerativeVariable) Syntax() string {
	return internal.FormatGenerative(v.Category, v.Subtype, v.Name)
}

// Ref returns "category:subtype" or "category:subtype:name".
func (v *GenerativeVariable) Ref() string {
	if v.Name == "" {
		return v.HandlerKey()
	}
	return v.HandlerKey() + KeySeparator + v.Name
}

// HasPrompt reports whether a prompt is attached.
func (v *GenerativeVariable) HasPrompt() bool { return v.Prompt != "" }

func generativeFromRef(ref internal.GenRef) *GenerativeVariable {
	v := &GenerativeVariable{
		Category: ref.Category,
		Subtype:  ref.Subtype,
		Name:     ref.Name,
		Raw:      ref.Raw,
	}
	if len(ref.Params) > 0 {
		v.Parameters = make(Params, 0, len(ref.Params))
		for _, p := range ref.Params {
			v.Parameters = append(v.Parameters, Param{Key: p.Key, Value: p.Value})
		}
	}
	return v
}

// clone returns a copy whose Parameters slice is not shared.
func (v *GenerativeVariable) clone() *GenerativeVariable {
	c := *v
	if v.Parameters != nil {
		c.Parameters = append(Params(nil), v.Parameters...)
	}
	return &c
}
