package internal

import (
	"regexp"
	"strings"
)

var (
	contextualRe     = regexp.MustCompile(PatternContextual)
	metadataRe       = regexp.MustCompile(PatternMetadata)
	generativeRe     = regexp.MustCompile(PatternGenerative)
	generativeFullRe = regexp.MustCompile(`^` + PatternGenerative + `$`)

	promptBlockRe    = regexp.MustCompile(PatternPromptBlock)
	directiveBlockRe = regexp.MustCompile(PatternDirectiveBlock)
)

// VarRef is one occurrence of a contextual or metadata variable.
type VarRef struct {
	Raw  string
	Type string
	Name string
}

// Param is a single key=value pair attached to a generative variable.
type Param struct {
	Key   string
	Value string
}

// GenRef is one occurrence of a generative variable.
type GenRef struct {
	Raw      string
	Category string
	Subtype  string
	Name     string
	Params   []Param
}

// Identity returns the variable syntax without parameters.
func (g GenRef) Identity() string {
	return FormatGenerative(g.Category, g.Subtype, g.Name)
}

// PromptBlock is a free-standing AI_PROMPT comment.
type PromptBlock struct {
	Raw    string
	Target string
	Prompt string
}

// ScanContextual returns every [[type:name]] occurrence in text order.
func ScanContextual(text string) []VarRef {
	return scanVars(contextualRe, text)
}

// ScanMetadata returns every [{type:name}] occurrence in text order.
func ScanMetadata(text string) []VarRef {
	return scanVars(metadataRe, text)
}

func scanVars(re *regexp.Regexp, text string) []VarRef {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]VarRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, VarRef{Raw: m[0], Type: m[1], Name: m[2]})
	}
	return refs
}

// ScanGenerative returns every {{category:subtype[:name] k=v...}} occurrence in text order.
func ScanGenerative(text string) []GenRef {
	matches := generativeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]GenRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, genRefFromMatch(m))
	}
	return refs
}

// ParseGenerative parses a string that must consist of exactly one generative variable.
func ParseGenerative(s string) (GenRef, bool) {
	m := generativeFullRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return GenRef{}, false
	}
	return genRefFromMatch(m), true
}

func genRefFromMatch(m []string) GenRef {
	return GenRef{
		Raw:      m[0],
		Category: m[1],
		Subtype:  m[2],
		Name:     m[3],
		Params:   parseParams(m[4]),
	}
}

// parseParams splits a whitespace separated list, keeping only key=value entries.
// A repeated key keeps its first position and takes the last value.
func parseParams(s string) []Param {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	params := make([]Param, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		key, value, ok := strings.Cut(f, ParamAssign)
		if !ok || key == "" {
			continue
		}
		if i, seen := index[key]; seen {
			params[i].Value = value
			continue
		}
		index[key] = len(params)
		params = append(params, Param{Key: key, Value: value})
	}
	return params
}

// ScanPrompts returns every AI_PROMPT comment in text order.
func ScanPrompts(text string) []PromptBlock {
	matches := promptBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]PromptBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, PromptBlock{
			Raw:    m[0],
			Target: m[1],
			Prompt: strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// StripDirectives removes every directive comment block, together with one line
// break directly following it.
func StripDirectives(text string) string {
	if !strings.Contains(text, "<!--") {
		return text
	}
	return directiveBlockRe.ReplaceAllLiteralString(text, "")
}

// FormatContextual renders [[type:name]].
func FormatContextual(varType, name string) string {
	return ContextualOpen + varType + Separator + name + ContextualClose
}

// FormatMetadata renders [{type:name}].
func FormatMetadata(varType, name string) string {
	return MetadataOpen + varType + Separator + name + MetadataClose
}

// FormatGenerative renders {{category:subtype}} or {{category:subtype:name}}.
func FormatGenerative(category, subtype, name string) string {
	if name == "" {
		return GenerativeOpen + category + Separator + subtype + GenerativeClose
	}
	return GenerativeOpen + category + Separator + subtype + Separator + name + GenerativeClose
}
