package main

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// versionOutput represents JSON output for version.
type versionOutput struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   CmdNameVersion,
		Short: HelpVersionShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != OutputFormatText && format != OutputFormatJSON {
				return usageError(errors.New(ErrMsgInvalidFormat))
			}
			v := getVersionInfo()
			if format == OutputFormatJSON {
				return writeJSON(cmd, v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), VersionTextTemplate+FmtNewline, v.Version, v.GoVersion)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json")
	return cmd
}

// getVersionInfo reads the module version stamped into the binary.
func getVersionInfo() versionOutput {
	v := versionOutput{Version: VersionUnknown, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		v.Version = info.Main.Version
	}
	return v
}
