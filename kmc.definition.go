package kmc

import (
	"github.com/itsatony/go-kmc/internal"
)

// Definition binds a metadata variable to a generative source, parsed from
//
//	<!-- KMC_DEFINITION FOR [{type:name}]:
//	GENERATIVE_SOURCE = {{category:subtype[:name]}}
//	PROMPT = "text"
//	FORMAT = "text"
//	-->
//
// FORMAT is optional.
type Definition struct {
	Target       MetadataVariable
	Source       *GenerativeVariable
	Prompt       string
	Format       string
	Dependencies Dependencies
	// Raw is the full comment block.
	Raw string
}

// TargetRef returns "type:name" of the defined metadata variable.
func (d *Definition) TargetRef() string {
	return d.Target.Ref()
}

// SourceRef returns "category:subtype[:name]" of the generative source.
func (d *Definition) SourceRef() string {
	return d.Source.Ref()
}

// Dependencies lists variable references found in a definition prompt.
// Each list holds refs in order of first appearance without duplicates.
type Dependencies struct {
	Context    []string
	Metadata   []string
	Generative []string
}

// Empty reports whether the prompt references no variables.
func (d Dependencies) Empty() bool {
	return len(d.Context) == 0 && len(d.Metadata) == 0 && len(d.Generative) == 0
}

// Has reports whether ref appears in the family's list.
func (d Dependencies) Has(family Family, ref string) bool {
	var refs []string
	switch family {
	case FamilyContext:
		refs = d.Context
	case FamilyMetadata:
		refs = d.Metadata
	case FamilyGenerative:
		refs = d.Generative
	}
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// NewDefinition builds a definition from its parts and computes its dependencies.
func NewDefinition(target MetadataVariable, source *GenerativeVariable, prompt, format string) *Definition {
	return &Definition{
		Target:       target,
		Source:       source,
		Prompt:       prompt,
		Format:       format,
		Dependencies: ScanDependencies(prompt),
	}
}

func definitionFromBlock(b internal.DefinitionBlock) *Definition {
	d := NewDefinition(
		MetadataVariable{Type: b.TargetType, Name: b.TargetName},
		generativeFromRef(b.Source),
		b.Prompt,
		b.Format,
	)
	d.Raw = b.Raw
	return d
}

// ScanDependencies runs the variable grammar over text once. Nested
// definitions are not followed.
func ScanDependencies(text string) Dependencies {
	var deps Dependencies
	deps.Context = uniqueRefs(internal.ScanContextual(text))
	deps.Metadata = uniqueRefs(internal.ScanMetadata(text))

	seen := make(map[string]struct{})
	for _, g := range internal.ScanGenerative(text) {
		ref := generativeFromRef(g).Ref()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		deps.Generative = append(deps.Generative, ref)
	}
	return deps
}

func uniqueRefs(vars []internal.VarRef) []string {
	if len(vars) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(vars))
	refs := make([]string, 0, len(vars))
	for _, v := range vars {
		ref := v.Type + KeySeparator + v.Name
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}
