package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/promplate/go-promplate"
)

type chatConfig struct {
	templatePath string
	raw          bool
	data         dataFlags
}

func newChatCmd() *cobra.Command {
	cfg := &chatConfig{}
	cmd := &cobra.Command{
		Use:   CmdNameChat,
		Short: HelpChatShort,
		Long:  HelpChatLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&cfg.templatePath, FlagTemplate, FlagTemplateShort, "", `template file ("-" for stdin)`)
	cmd.Flags().BoolVar(&cfg.raw, FlagRaw, false, "parse the input without rendering it")
	cfg.data.register(cmd)
	return cmd
}

func runChat(cmd *cobra.Command, cfg *chatConfig) error {
	if cfg.templatePath == "" {
		return usageError(errors.New(ErrMsgMissingTemplate))
	}
	doc, err := readDocument(cfg.templatePath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	text := doc.Body
	if !cfg.raw {
		vars, err := cfg.data.context()
		if err != nil {
			return err
		}
		if text, err = doc.Template().Render(cmd.Context(), vars); err != nil {
			return runError(ErrMsgRenderFailed, err)
		}
	}
	return writeJSON(cmd, promplate.ParseChatMarkup(text))
}
