package internal

// Directive comment names recognised by the grammar
const (
	DirectiveDefinition  = "KMC_DEFINITION"
	DirectivePrompt      = "AI_PROMPT"
	DirectiveAPISource   = "API_SOURCE"
	DirectiveToolConfig  = "TOOL_CONFIG"
	DirectiveCalcFormula = "CALC_FORMULA"
)

// Variable patterns. A token is one or more ASCII letters, digits or underscores.
const (
	PatternContextual = `\[\[(\w+):(\w+)\]\]`
	PatternMetadata   = `\[\{(\w+):(\w+)\}\]`
	PatternGenerative = `\{\{(\w+):(\w+)(?::(\w+))?((?:[ \t]+[^\s}]+)*)[ \t]*\}\}`
)

// Comment block patterns
const (
	PatternDefinitionBlock = `(?s)<!--\s*` + DirectiveDefinition + `\s+FOR\s+(.*?)-->`
	PatternPromptBlock     = `(?s)<!--\s*` + DirectivePrompt + `\s+FOR\s+(\{\{[\w:]+\}\})\s*:(.*?)-->`
	PatternDirectiveBlock  = `(?s)<!--\s*(?:` + DirectiveDefinition + `|` + DirectivePrompt + `|` +
		DirectiveAPISource + `|` + DirectiveToolConfig + `|` + DirectiveCalcFormula + `)\b.*?-->(?:\r?\n)?`
)

// Definition body field patterns
const (
	PatternDefinitionTarget = `^\s*\[\{(\w+):(\w+)\}\]\s*:`
	PatternDefinitionSource = `GENERATIVE_SOURCE\s*=\s*(\{\{[^}]*\}\})`
	PatternDefinitionPrompt = `PROMPT\s*=\s*"([^"]*)"`
	PatternDefinitionFormat = `FORMAT\s*=\s*"([^"]*)"`
)

// Syntax fragments
const (
	ContextualOpen  = "[["
	ContextualClose = "]]"
	MetadataOpen    = "[{"
	MetadataClose   = "}]"
	GenerativeOpen  = "{{"
	GenerativeClose = "}}"
	Separator       = ":"
	ParamAssign     = "="
)
