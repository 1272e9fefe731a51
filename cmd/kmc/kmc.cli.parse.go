package main

import (
	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
)

// parseOutput is the structured summary of a parsed document
type parseOutput struct {
	Contextual  []string           `json:"contextual,omitempty" yaml:"contextual,omitempty"`
	Metadata    []string           `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Generative  []generativeOutput `json:"generative,omitempty" yaml:"generative,omitempty"`
	Definitions []definitionOutput `json:"definitions,omitempty" yaml:"definitions,omitempty"`
	Prompts     map[string]string  `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	Skipped     []string           `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Overridden  []string           `json:"overridden,omitempty" yaml:"overridden,omitempty"`
}

type generativeOutput struct {
	Ref        string            `json:"ref" yaml:"ref"`
	Prompt     string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Format     string            `json:"format,omitempty" yaml:"format,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type definitionOutput struct {
	Target    string   `json:"target" yaml:"target"`
	Source    string   `json:"source" yaml:"source"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

func newParseCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   CmdNameParse + " [file]",
		Short: "Show the variables and definitions of a KMC document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, OutputFormatJSON, OutputFormatYAML); err != nil {
				return err
			}
			source, err := readInput(inputArg(args), cmd.InOrStdin())
			if err != nil {
				return failWith(ExitCodeInputError, ErrMsgReadFileFailed, err)
			}
			data, err := encodeStructured(format, toParseOutput(kmc.ParseDocument(string(source))))
			if err != nil {
				return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return failWith(ExitCodeError, ErrMsgWriteOutputFailed, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, FlagFormat, FlagFormatShort, OutputFormatYAML, "output format: yaml, json")
	return cmd
}

func toParseOutput(doc *kmc.Document) parseOutput {
	out := parseOutput{
		Prompts:    doc.Prompts,
		Overridden: doc.Overridden,
	}
	for _, v := range doc.Contextual {
		out.Contextual = append(out.Contextual, v.Syntax())
	}
	for _, v := range doc.Metadata {
		out.Metadata = append(out.Metadata, v.Syntax())
	}
	for _, v := range doc.Generative {
		g := generativeOutput{Ref: v.Ref(), Prompt: v.Prompt, Format: v.Format}
		if len(v.Parameters) > 0 {
			g.Parameters = v.Parameters.Map()
		}
		out.Generative = append(out.Generative, g)
	}
	for _, d := range doc.Definitions {
		def := definitionOutput{
			Target: d.Target.Syntax(),
			Source: d.Source.Syntax(),
			Prompt: d.Prompt,
			Format: d.Format,
		}
		def.DependsOn = append(def.DependsOn, d.Dependencies.Context...)
		def.DependsOn = append(def.DependsOn, d.Dependencies.Metadata...)
		def.DependsOn = append(def.DependsOn, d.Dependencies.Generative...)
		out.Definitions = append(out.Definitions, def)
	}
	for _, s := range doc.Skipped {
		out.Skipped = append(out.Skipped, s.Reason)
	}
	if len(out.Prompts) == 0 {
		out.Prompts = nil
	}
	return out
}
