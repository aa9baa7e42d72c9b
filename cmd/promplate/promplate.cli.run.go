package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/promplate/go-promplate"
	"github.com/promplate/go-promplate/llm/openai"
)

type runConfig struct {
	specPath   string
	outputPath string
	storageDir string
	stream     bool
	text       bool
	verbose    bool
	model      string
	baseURL    string
	apiKey     string
	data       dataFlags
}

func newRunCmd() *cobra.Command {
	cfg := &runConfig{}
	cmd := &cobra.Command{
		Use:   CmdNameRun,
		Short: HelpRunShort,
		Long:  HelpRunLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChain(cmd, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&cfg.specPath, FlagSpec, FlagSpecShort, "", `chain spec file ("-" for stdin)`)
	flags.StringVarP(&cfg.outputPath, FlagOutput, FlagOutputShort, FlagDefaultOutput, "output file")
	flags.StringVar(&cfg.storageDir, FlagStorage, "", "template storage directory for ref steps")
	flags.BoolVar(&cfg.stream, FlagStream, false, "print text as it is generated")
	flags.BoolVar(&cfg.text, FlagText, false, "use the text completion endpoint instead of chat")
	flags.BoolVarP(&cfg.verbose, FlagVerbose, FlagVerboseShort, false, "log runnable events to stderr")
	flags.StringVar(&cfg.model, FlagModel, "", "model name (default $"+openai.EnvModel+")")
	flags.StringVar(&cfg.baseURL, FlagBaseURL, "", "API base URL (default $"+openai.EnvBaseURL+")")
	flags.StringVar(&cfg.apiKey, FlagAPIKey, "", "API key (default $"+openai.EnvAPIKey+")")
	cfg.data.register(cmd)
	return cmd
}

func runChain(cmd *cobra.Command, cfg *runConfig) error {
	if cfg.specPath == "" {
		return usageError(errors.New(ErrMsgMissingSpec))
	}
	ctx := cmd.Context()
	logger := newLogger(cfg.verbose, cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	raw, err := readInput(cfg.specPath, cmd.InOrStdin())
	if err != nil {
		return inputError(ErrMsgReadFileFailed, err)
	}
	spec, err := promplate.ParseChainSpec(raw)
	if err != nil {
		return inputError(ErrMsgInvalidSpec, err)
	}
	vars, err := cfg.data.context()
	if err != nil {
		return err
	}

	buildOpts := []promplate.BuildOption{
		promplate.WithBuildLogger(logger),
		promplate.WithNodeOptions(promplate.WithLogger(logger), promplate.WithCallbacks(promplate.NewLoggingCallback(logger))),
	}
	if cfg.storageDir != "" {
		storage, err := promplate.NewFilesystemStorage(cfg.storageDir)
		if err != nil {
			return runError(ErrMsgStorageFailed, err)
		}
		defer storage.Close()
		buildOpts = append(buildOpts, promplate.WithStorage(storage))
	}
	chain, err := promplate.BuildChain(ctx, spec, buildOpts...)
	if err != nil {
		return runError(ErrMsgBuildFailed, err)
	}

	llm := newLLM(cfg, logger)
	if cfg.stream {
		return streamChain(cmd, cfg, chain, vars, llm)
	}

	out, err := chain.Invoke(ctx, vars, promplate.RunWithLLM(llm))
	if err != nil {
		return runError(ErrMsgRunFailed, err)
	}
	if err := writeOutput(cfg.outputPath, []byte(withNewline(out.ResultString())), cmd.OutOrStdout()); err != nil {
		return runError(ErrMsgWriteOutputFailed, err)
	}
	return nil
}

// streamChain prints each node's text as it grows. A node starting a new
// result begins on a new line.
func streamChain(cmd *cobra.Command, cfg *runConfig, chain *promplate.Chain, vars *promplate.Context, llm any) error {
	var (
		w       = cmd.OutOrStdout()
		buffer  strings.Builder
		printed string
	)
	if cfg.outputPath != FlagDefaultOutput {
		w = &buffer
	}

	for c, err := range chain.Stream(cmd.Context(), vars, promplate.RunWithLLM(llm)) {
		if err != nil {
			return runError(ErrMsgRunFailed, err)
		}
		result := c.ResultString()
		switch {
		case strings.HasPrefix(result, printed):
			io.WriteString(w, result[len(printed):])
		default:
			io.WriteString(w, FmtNewline+result)
		}
		printed = result
	}
	io.WriteString(w, FmtNewline)

	if cfg.outputPath != FlagDefaultOutput {
		if err := writeOutput(cfg.outputPath, []byte(buffer.String()), cmd.OutOrStdout()); err != nil {
			return runError(ErrMsgWriteOutputFailed, err)
		}
	}
	return nil
}

func newLLM(cfg *runConfig, logger *zap.Logger) any {
	config := openai.ConfigFromEnv()
	if cfg.apiKey != "" {
		config.APIKey = cfg.apiKey
	}
	if cfg.baseURL != "" {
		config.BaseURL = cfg.baseURL
	}
	if cfg.model != "" {
		config.Model = cfg.model
	}
	config.Logger = logger

	client := openai.New(config)
	if cfg.text {
		return client.Text()
	}
	return client
}

// newLogger returns a console logger on w when verbose, a no-op logger otherwise.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core)
}
