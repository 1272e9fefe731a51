package kmc

import (
	"strings"

	"github.com/itsatony/go-kmc/internal"
)

// Document is the parsed form of one KMC markdown text.
// A Document is built fresh for every parse and is never mutated by handlers.
type Document struct {
	// Source is the text as given.
	Source string
	// Body is Source with every directive comment removed.
	Body string

	// Variables found in Body, de-duplicated, in order of first occurrence.
	Contextual []ContextualVariable
	Metadata   []MetadataVariable
	Generative []*GenerativeVariable

	// Definitions in document order, unique by target. A later definition of
	// the same target replaces the earlier one in place.
	Definitions []*Definition
	// Prompts maps a generative syntax such as {{ai:gpt4:analysis}} to its
	// free AI_PROMPT text.
	Prompts map[string]string
	// Skipped lists definition comments that could not be parsed.
	Skipped []SkippedDefinition

	// Overridden lists targets that were defined more than once.
	Overridden []string

	defIndex map[string]int
}

// SkippedDefinition is a KMC_DEFINITION comment that lacks a valid target,
// source or prompt.
type SkippedDefinition struct {
	Raw    string
	Reason string
}

// ParseDocument parses source into a Document. Parsing never fails:
// malformed definitions are reported in Skipped.
func ParseDocument(source string) *Document {
	doc := &Document{
		Source:   source,
		Body:     internal.StripDirectives(source),
		Prompts:  make(map[string]string),
		defIndex: make(map[string]int),
	}

	blocks, skipped := internal.ScanDefinitions(source)
	for _, b := range blocks {
		doc.addDefinition(definitionFromBlock(b))
	}
	for _, s := range skipped {
		doc.Skipped = append(doc.Skipped, SkippedDefinition{Raw: s.Raw, Reason: s.Reason})
	}

	for _, p := range internal.ScanPrompts(source) {
		doc.Prompts[p.Target] = p.Prompt
	}

	doc.scanBody()
	return doc
}

func (d *Document) addDefinition(def *Definition) {
	ref := def.TargetRef()
	if i, ok := d.defIndex[ref]; ok {
		d.Definitions[i] = def
		d.Overridden = append(d.Overridden, ref)
		return
	}
	d.defIndex[ref] = len(d.Definitions)
	d.Definitions = append(d.Definitions, def)
}

func (d *Document) scanBody() {
	seen := make(map[string]struct{})
	for _, v := range internal.ScanContextual(d.Body) {
		if _, ok := seen[v.Raw]; ok {
			continue
		}
		seen[v.Raw] = struct{}{}
		d.Contextual = append(d.Contextual, ContextualVariable{Type: v.Type, Name: v.Name})
	}

	for _, v := range internal.ScanMetadata(d.Body) {
		if _, ok := seen[v.Raw]; ok {
			continue
		}
		seen[v.Raw] = struct{}{}
		d.Metadata = append(d.Metadata, MetadataVariable{Type: v.Type, Name: v.Name})
	}

	for _, g := range internal.ScanGenerative(d.Body) {
		if _, ok := seen[g.Raw]; ok {
			continue
		}
		seen[g.Raw] = struct{}{}
		v := generativeFromRef(g)
		v.Prompt = d.Prompts[v.Syntax()]
		d.Generative = append(d.Generative, v)
	}
}

// Definition returns the definition whose target is ref ("type:name").
func (d *Document) Definition(ref string) (*Definition, bool) {
	i, ok := d.defIndex[ref]
	if !ok {
		return nil, false
	}
	return d.Definitions[i], true
}

// Defines reports whether the document has a definition for the metadata variable.
func (d *Document) Defines(v MetadataVariable) bool {
	_, ok := d.defIndex[v.Ref()]
	return ok
}

// Uses reports whether the body contains the literal syntax.
func (d *Document) Uses(syntax string) bool {
	return strings.Contains(d.Body, syntax)
}

// VariableCount returns the number of distinct variables in the body.
func (d *Document) VariableCount() int {
	return len(d.Contextual) + len(d.Metadata) + len(d.Generative)
}

// HasVariables reports whether the body holds any placeholder or definition.
func (d *Document) HasVariables() bool {
	return d.VariableCount() > 0 || len(d.Definitions) > 0
}
