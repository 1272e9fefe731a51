package main

import (
	"fmt"
	"runtime"

	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
)

// versionOutput represents JSON output for version
type versionOutput struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func newVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   CmdNameVersion,
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, OutputFormatText, OutputFormatJSON, OutputFormatYAML); err != nil {
				return err
			}
			if format == OutputFormatText {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), VersionTextTemplate, kmc.Version, runtime.Version())
				return err
			}
			data, err := encodeStructured(format, versionOutput{Version: kmc.Version, GoVersion: runtime.Version()})
			if err != nil {
				return failWith(ExitCodeError, ErrMsgEncodeFailed, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json, yaml")
	return cmd
}
