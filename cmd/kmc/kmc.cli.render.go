package main

import (
	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
)

// renderOptions holds parsed render command flags
type renderOptions struct {
	data          []string
	extensionDirs []string
	discover      bool
	freePrompts   bool
	placeholder   string
	stored        string
	output        string
	format        string
}

// renderOutput is the structured form of a render result
type renderOutput struct {
	ID         string            `json:"id" yaml:"id"`
	Output     string            `json:"output" yaml:"output"`
	Resolved   map[string]string `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Unresolved []string          `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Errors     []renderError     `json:"errors,omitempty" yaml:"errors,omitempty"`
	DurationMS float64           `json:"duration_ms" yaml:"duration_ms"`
}

type renderError struct {
	Family string `json:"family" yaml:"family"`
	Key    string `json:"key" yaml:"key"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Token  string `json:"token" yaml:"token"`
	Error  string `json:"error" yaml:"error"`
}

func newRenderCmd(global *globalOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   CmdNameRender + " [file]",
		Short: "Resolve a KMC document",
		Long: `Resolve a KMC document read from a file, stdin ("-" or no argument)
or, with --stored, from the configured document storage.`,
		Example: `  kmc render report.md -d project=data/project.yaml
  cat report.md | kmc render --discover -e team_handlers
  kmc render --driver sqlite --dsn file:kmc.db --stored weekly -F json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, global, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.data, FlagData, FlagDataShort, nil, "data file for a handler type as type=path (repeatable)")
	flags.StringArrayVarP(&opts.extensionDirs, FlagExtensionDir, FlagExtensionDirShort, nil, "extra extension directory to discover (repeatable)")
	flags.BoolVar(&opts.discover, FlagDiscover, false, "discover extensions in the standard directories")
	flags.BoolVar(&opts.freePrompts, FlagFreePrompts, false, "substitute generative variables that carry an AI_PROMPT")
	flags.StringVar(&opts.placeholder, FlagPlaceholder, "", "fmt pattern for defined variables without a generative handler")
	flags.StringVar(&opts.stored, FlagStored, "", "render the latest version of a stored document")
	flags.StringVarP(&opts.output, FlagOutput, FlagOutputShort, FlagDefaultOutput, "output file")
	flags.StringVarP(&opts.format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json, yaml")
	return cmd
}

func runRender(cmd *cobra.Command, global *globalOptions, opts *renderOptions, args []string) error {
	if err := checkFormat(opts.format, OutputFormatText, OutputFormatJSON, OutputFormatYAML); err != nil {
		return err
	}

	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	for _, entry := range opts.data {
		if err := cfg.AddData(entry); err != nil {
			return failWith(ExitCodeUsageError, ErrMsgConfigFailed, err)
		}
	}
	cfg.ExtensionDirs = append(cfg.ExtensionDirs, opts.extensionDirs...)
	cfg.AutoDiscover = cfg.AutoDiscover || opts.discover
	cfg.FreePrompts = cfg.FreePrompts || opts.freePrompts
	if opts.placeholder != "" {
		cfg.PlaceholderFormat = opts.placeholder
		if err := cfg.Validate(); err != nil {
			return failWith(ExitCodeUsageError, ErrMsgConfigFailed, err)
		}
	}

	engine, err := global.newEngine(cmd, cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var result *kmc.RenderResult
	if opts.stored != "" {
		storage, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer storage.Close()
		result, err = engine.RenderStored(ctx, storage, opts.stored)
		if err != nil {
			return failWith(ExitCodeInputError, ErrMsgRenderFailed, err)
		}
	} else {
		source, err := readInput(inputArg(args), cmd.InOrStdin())
		if err != nil {
			return failWith(ExitCodeInputError, ErrMsgReadFileFailed, err)
		}
		result, err = engine.RenderDocument(ctx, engine.Parse(string(source)))
		if err != nil {
			return failWith(ExitCodeError, ErrMsgRenderFailed, err)
		}
	}

	data := []byte(result.Output)
	if opts.format != OutputFormatText {
		data, err = encodeStructured(opts.format, toRenderOutput(result))
		if err != nil {
			return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
		}
	} else if len(result.Errors) > 0 {
		cmd.PrintErrf(RenderTextErrorsLine, len(result.Errors))
	}

	if err := writeOutput(opts.output, data, cmd.OutOrStdout()); err != nil {
		return failWith(ExitCodeError, ErrMsgWriteOutputFailed, err)
	}
	return nil
}

func toRenderOutput(result *kmc.RenderResult) renderOutput {
	out := renderOutput{
		ID:         result.ID,
		Output:     result.Output,
		Resolved:   result.Resolved,
		Unresolved: result.Unresolved,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
	}
	for _, re := range result.Errors {
		out.Errors = append(out.Errors, renderError{
			Family: string(re.Family),
			Key:    re.Key,
			Name:   re.Name,
			Token:  re.Token,
			Error:  errorText(re.Err),
		})
	}
	return out
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
