package openai

// Provider identity.
const (
	ProviderName = "openai"
)

// Defaults.
const (
	DefaultChatModel = "gpt-4o-mini"
	DefaultTextModel = "gpt-3.5-turbo-instruct"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
	EnvModel   = "OPENAI_MODEL"
)

// Request kinds, used in logs.
const (
	KindChat = "chat"
	KindText = "text"
)

// Error messages.
const (
	ErrMsgNoChoices     = "response has no choices"
	ErrMsgInvalidConfig = "invalid request configuration"
)

// Log messages.
const (
	LogMsgRequest = "sending completion request"
	LogMsgStream  = "streaming completion"
)

// Log field names.
const (
	LogFieldModel  = "model"
	LogFieldKind   = "kind"
	LogFieldStream = "stream"
)
