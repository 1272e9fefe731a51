package internal

import (
	"regexp"
)

var (
	definitionBlockRe  = regexp.MustCompile(PatternDefinitionBlock)
	definitionTargetRe = regexp.MustCompile(PatternDefinitionTarget)
	definitionSourceRe = regexp.MustCompile(PatternDefinitionSource)
	definitionPromptRe = regexp.MustCompile(PatternDefinitionPrompt)
	definitionFormatRe = regexp.MustCompile(PatternDefinitionFormat)
)

// DefinitionBlock is a KMC_DEFINITION comment that passed field validation.
type DefinitionBlock struct {
	Raw        string
	TargetType string
	TargetName string
	Source     GenRef
	Prompt     string
	Format     string
}

// SkippedDefinition describes a KMC_DEFINITION comment that could not be used.
type SkippedDefinition struct {
	Raw    string
	Reason string
}

// Reasons a definition block is skipped
const (
	SkipReasonTarget = "missing or malformed target"
	SkipReasonSource = "missing or malformed GENERATIVE_SOURCE"
	SkipReasonPrompt = "missing PROMPT"
)

// ScanDefinitions extracts definition blocks in text order.
// Malformed blocks are reported in skipped and never abort the scan.
func ScanDefinitions(text string) (blocks []DefinitionBlock, skipped []SkippedDefinition) {
	for _, m := range definitionBlockRe.FindAllStringSubmatch(text, -1) {
		block, reason := parseDefinitionBody(m[1])
		if reason != "" {
			skipped = append(skipped, SkippedDefinition{Raw: m[0], Reason: reason})
			continue
		}
		block.Raw = m[0]
		blocks = append(blocks, block)
	}
	return blocks, skipped
}

func parseDefinitionBody(body string) (DefinitionBlock, string) {
	var block DefinitionBlock

	target := definitionTargetRe.FindStringSubmatchIndex(body)
	if target == nil {
		return block, SkipReasonTarget
	}
	block.TargetType = body[target[2]:target[3]]
	block.TargetName = body[target[4]:target[5]]
	rest := body[target[1]:]

	source := definitionSourceRe.FindStringSubmatch(rest)
	if source == nil {
		return block, SkipReasonSource
	}
	ref, ok := ParseGenerative(source[1])
	if !ok {
		return block, SkipReasonSource
	}
	block.Source = ref

	prompt := definitionPromptRe.FindStringSubmatchIndex(rest)
	if prompt == nil {
		return block, SkipReasonPrompt
	}
	block.Prompt = rest[prompt[2]:prompt[3]]

	// FORMAT is searched after the prompt so quoted prompt text cannot shadow it.
	if format := definitionFormatRe.FindStringSubmatch(rest[prompt[1]:]); format != nil {
		block.Format = format[1]
	}
	return block, ""
}
