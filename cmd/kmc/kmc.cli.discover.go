package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
)

// discoverOptions holds parsed discover command flags
type discoverOptions struct {
	extensionDirs []string
	watch         bool
	format        string
}

func newDiscoverCmd(global *globalOptions) *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   CmdNameDiscover,
		Short: "List the extension modules found in the extension directories",
		Long: `Scan extensions/, user_extensions/, custom_handlers/ and plugins/ below the
base directory plus any --extension-dir, and report what they register.
With --watch, keep scanning as module files change until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.extensionDirs, FlagExtensionDir, FlagExtensionDirShort, nil, "extra extension directory (repeatable)")
	flags.BoolVarP(&opts.watch, FlagWatch, FlagWatchShort, false, "rescan when module files change")
	flags.StringVarP(&opts.format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json, yaml")
	return cmd
}

func runDiscover(cmd *cobra.Command, global *globalOptions, opts *discoverOptions) error {
	if err := checkFormat(opts.format, OutputFormatText, OutputFormatJSON, OutputFormatYAML); err != nil {
		return err
	}
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	dirs := append(append([]string{}, cfg.ExtensionDirs...), opts.extensionDirs...)

	logger := newLogger(cfg, cmd.ErrOrStderr(), global.logLevel != "")
	discovery := kmc.NewDiscovery(kmc.NewRegistry(logger), kmc.WithDiscoveryLogger(logger))
	out := cmd.OutOrStdout()

	if !opts.watch {
		return printStats(out, opts.format, discovery.DiscoverAll(cmd.Context(), cfg.BasePath, dirs...))
	}

	updates, err := discovery.Watch(cmd.Context(), cfg.BasePath, dirs...)
	if err != nil {
		return failWith(ExitCodeError, ErrMsgWatchFailed, err)
	}
	for stats := range updates {
		if err := printStats(out, opts.format, stats); err != nil {
			return err
		}
	}
	return nil
}

func printStats(w io.Writer, format string, stats kmc.DiscoveryStats) error {
	if format != OutputFormatText {
		data, err := encodeStructured(format, stats)
		if err != nil {
			return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
		}
		_, err = w.Write(data)
		return err
	}

	fmt.Fprintf(w, DiscoverTextHeader, stats.Handlers, stats.Plugins)
	dirs := make([]string, 0, len(stats.Directories))
	for dir := range stats.Directories {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		ds := stats.Directories[dir]
		fmt.Fprintf(w, DiscoverTextDir, dir, ds.Modules, ds.Handlers, ds.Plugins)
	}
	for _, path := range stats.Failed {
		fmt.Fprintf(w, DiscoverTextFailed, path)
	}
	return nil
}
