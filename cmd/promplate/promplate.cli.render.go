package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promplate/go-promplate"
)

type renderConfig struct {
	templatePath string
	outputPath   string
	async        bool
	data         dataFlags
}

func newRenderCmd() *cobra.Command {
	cfg := &renderConfig{}
	cmd := &cobra.Command{
		Use:   CmdNameRender,
		Short: HelpRenderShort,
		Long:  HelpRenderLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&cfg.templatePath, FlagTemplate, FlagTemplateShort, "", `template file ("-" for stdin)`)
	cmd.Flags().StringVarP(&cfg.outputPath, FlagOutput, FlagOutputShort, FlagDefaultOutput, "output file")
	cmd.Flags().BoolVar(&cfg.async, FlagAsync, false, "render with the async program")
	cfg.data.register(cmd)
	return cmd
}

func runRender(cmd *cobra.Command, cfg *renderConfig) error {
	if cfg.templatePath == "" {
		return usageError(errors.New(ErrMsgMissingTemplate))
	}
	doc, err := readDocument(cfg.templatePath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	vars, err := cfg.data.context()
	if err != nil {
		return err
	}

	tmpl := doc.Template()
	var text string
	if cfg.async {
		text, err = promplate.Await(cmd.Context(), tmpl.ARender(cmd.Context(), vars))
	} else {
		text, err = tmpl.Render(cmd.Context(), vars)
	}
	if err != nil {
		return runError(ErrMsgRenderFailed, err)
	}

	if err := writeOutput(cfg.outputPath, []byte(text), cmd.OutOrStdout()); err != nil {
		return runError(ErrMsgWriteOutputFailed, err)
	}
	return nil
}

type scriptConfig struct {
	templatePath string
	indent       string
	async        bool
}

func newScriptCmd() *cobra.Command {
	cfg := &scriptConfig{}
	cmd := &cobra.Command{
		Use:   CmdNameScript,
		Short: HelpScriptShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.templatePath == "" {
				return usageError(errors.New(ErrMsgMissingTemplate))
			}
			doc, err := readDocument(cfg.templatePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			tmpl := doc.Template()
			var listing string
			if cfg.async {
				listing, err = tmpl.AsyncScript(cfg.indent)
			} else {
				listing, err = tmpl.Script(cfg.indent)
			}
			if err != nil {
				return runError(ErrMsgCompileFailed, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), withNewline(listing))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.templatePath, FlagTemplate, FlagTemplateShort, "", `template file ("-" for stdin)`)
	cmd.Flags().StringVar(&cfg.indent, FlagIndent, promplate.DefaultIndent, "indentation of the listing")
	cmd.Flags().BoolVar(&cfg.async, FlagAsync, false, "print the async program")
	return cmd
}

type varsConfig struct {
	templatePath string
	format       string
}

func newVarsCmd() *cobra.Command {
	cfg := &varsConfig{}
	cmd := &cobra.Command{
		Use:   CmdNameVars,
		Short: HelpVarsShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.templatePath == "" {
				return usageError(errors.New(ErrMsgMissingTemplate))
			}
			if cfg.format != OutputFormatText && cfg.format != OutputFormatJSON {
				return usageError(errors.New(ErrMsgInvalidFormat))
			}
			doc, err := readDocument(cfg.templatePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			names, err := doc.Template().Variables()
			if err != nil {
				return runError(ErrMsgCompileFailed, err)
			}

			if cfg.format == OutputFormatJSON {
				if names == nil {
					names = []string{}
				}
				return writeJSON(cmd, names)
			}
			if len(names) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, FmtNewline))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.templatePath, FlagTemplate, FlagTemplateShort, "", `template file ("-" for stdin)`)
	cmd.Flags().StringVarP(&cfg.format, FlagFormat, FlagFormatShort, FlagDefaultFormat, "output format: text, json")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", JSONIndent)
	if err != nil {
		return runError(ErrMsgJSONMarshalFailed, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func withNewline(s string) string {
	if strings.HasSuffix(s, FmtNewline) {
		return s
	}
	return s + FmtNewline
}
