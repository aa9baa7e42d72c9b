// Package openai adapts OpenAI-compatible endpoints to promplate completion
// capabilities. The chat client accepts prompts written in chat markup, so a
// template like
//
//	<| system |>
//	You are terse.
//	<| user |>
//	{{ question }}
//
// is sent as two messages. Prompts without markup are sent as one user message.
//
//	llm := openai.New(openai.ConfigFromEnv())
//	node := promplate.NewNode(source, promplate.WithLLM(llm))
package openai

import (
	"errors"
	"net/http"
	"os"

	"github.com/itsatony/go-cuserr"
	"github.com/mitchellh/mapstructure"
	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/promplate/go-promplate"
)

// Config configures a Client.
type Config struct {
	APIKey string

	// BaseURL of the API, for OpenAI-compatible servers.
	// Default: https://api.openai.com/v1
	BaseURL string

	// Model is used when the call configuration names none.
	// Default: DefaultChatModel for chat, DefaultTextModel for text.
	Model string

	// HTTPClient replaces the default HTTP client
	HTTPClient *http.Client

	// Logger receives request events. Default: zap.NewNop()
	Logger *zap.Logger
}

// ConfigFromEnv reads the API key, base URL and model from the environment.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  os.Getenv(EnvAPIKey),
		BaseURL: os.Getenv(EnvBaseURL),
		Model:   os.Getenv(EnvModel),
	}
}

// RequestOptions are the per-call settings decoded from a promplate.Config.
// Keys not listed here are ignored, so one configuration can serve several providers.
type RequestOptions struct {
	Model            string   `mapstructure:"model"`
	Temperature      float32  `mapstructure:"temperature"`
	TopP             float32  `mapstructure:"top_p"`
	MaxTokens        int      `mapstructure:"max_tokens"`
	Stop             []string `mapstructure:"stop"`
	PresencePenalty  float32  `mapstructure:"presence_penalty"`
	FrequencyPenalty float32  `mapstructure:"frequency_penalty"`
	Seed             *int     `mapstructure:"seed"`
	User             string   `mapstructure:"user"`
}

// DecodeOptions decodes cfg into RequestOptions. A single string is accepted for stop.
func DecodeOptions(cfg promplate.Config) (RequestOptions, error) {
	var opts RequestOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(map[string]any(cfg)); err != nil {
		return opts, cuserr.WrapStdError(err, promplate.ErrCodeLLM, ErrMsgInvalidConfig).
			WithMetadata(promplate.MetaKeyCode, promplate.ErrCodeLLM).
			WithMetadata(promplate.MetaKeyProvider, ProviderName)
	}
	return opts, nil
}

// Client is a chat completion provider. It implements promplate.LLM and
// promplate.AsyncLLM; Text returns the plain text completion flavour.
type Client struct {
	client *sdk.Client
	model  string
	logger *zap.Logger
}

// New creates a chat client.
func New(config Config) *Client {
	sdkConfig := sdk.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		sdkConfig.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		sdkConfig.HTTPClient = config.HTTPClient
	}
	return NewFromClient(sdk.NewClientWithConfig(sdkConfig), config.Model, config.Logger)
}

// NewFromClient wraps an existing go-openai client.
func NewFromClient(client *sdk.Client, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, model: model, logger: logger}
}

func (c *Client) modelFor(opts RequestOptions, fallback string) string {
	switch {
	case opts.Model != "":
		return opts.Model
	case c.model != "":
		return c.model
	}
	return fallback
}

func (c *Client) logRequest(kind, model string, stream bool) {
	c.logger.Debug(LogMsgRequest,
		zap.String(LogFieldKind, kind),
		zap.String(LogFieldModel, model),
		zap.Bool(LogFieldStream, stream))
}

var errNoChoices = errors.New(ErrMsgNoChoices)

func llmError(err error) error {
	return promplate.NewLLMError(ProviderName, err)
}
