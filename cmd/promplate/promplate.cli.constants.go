package main

// Command names.
const (
	CmdNameRender  = "render"
	CmdNameScript  = "script"
	CmdNameVars    = "vars"
	CmdNameChat    = "chat"
	CmdNameRun     = "run"
	CmdNameVersion = "version"
)

// Flag names - long form.
const (
	FlagTemplate = "template"
	FlagSpec     = "spec"
	FlagData     = "data"
	FlagDataFile = "data-file"
	FlagOutput   = "output"
	FlagFormat   = "format"
	FlagAsync    = "async"
	FlagIndent   = "indent"
	FlagRaw      = "raw"
	FlagStream   = "stream"
	FlagText     = "text"
	FlagModel    = "model"
	FlagBaseURL  = "base-url"
	FlagAPIKey   = "api-key"
	FlagStorage  = "storage"
	FlagVerbose  = "verbose"
)

// Flag names - short form.
const (
	FlagTemplateShort = "t"
	FlagSpecShort     = "s"
	FlagDataShort     = "d"
	FlagDataFileShort = "f"
	FlagOutputShort   = "o"
	FlagFormatShort   = "F"
	FlagVerboseShort  = "v"
)

// Flag default values.
const (
	FlagDefaultOutput = "-" // stdout
	FlagDefaultFormat = "text"
)

// Output formats.
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// Exit codes.
const (
	ExitCodeSuccess    = 0
	ExitCodeError      = 1
	ExitCodeUsageError = 2
	ExitCodeInputError = 4
)

// Input source indicators.
const (
	InputSourceStdin = "-"
)

// Error messages - ALL must be constants.
const (
	ErrMsgMissingTemplate   = "template source required"
	ErrMsgMissingSpec       = "chain spec required"
	ErrMsgInvalidData       = "invalid context data"
	ErrMsgReadFileFailed    = "failed to read file"
	ErrMsgWriteOutputFailed = "failed to write output"
	ErrMsgRenderFailed      = "template rendering failed"
	ErrMsgCompileFailed     = "template compilation failed"
	ErrMsgInvalidFormat     = "invalid output format"
	ErrMsgInvalidSpec       = "invalid chain spec"
	ErrMsgStorageFailed     = "cannot open template storage"
	ErrMsgBuildFailed       = "cannot build chain"
	ErrMsgRunFailed         = "chain run failed"
	ErrMsgJSONMarshalFailed = "failed to marshal JSON"
)

// Help text.
const (
	CLIName        = "promplate"
	CLIDescription = "Render prompt templates and run prompt chains"
	CLILong        = `promplate renders templates written in the promplate template language
and runs chains of prompt nodes against an OpenAI-compatible endpoint.

Context data is read from JSON or YAML (-d inline, -f from a file).
The endpoint is configured with --api-key/--base-url/--model or the
OPENAI_API_KEY, OPENAI_BASE_URL and OPENAI_MODEL environment variables.`

	HelpRenderShort = "Render a template with context data"
	HelpRenderLong  = `Render a template with context data.

Examples:
    promplate render -t greeting.tmpl -d '{"name": "Alice"}'
    promplate render -t greeting.tmpl -f context.yaml -o out.txt
    cat greeting.tmpl | promplate render -t - -d 'name: Bob'`

	HelpScriptShort = "Print the compiled program of a template"
	HelpVarsShort   = "List the variables a template reads"
	HelpChatShort   = "Parse chat markup into JSON messages"
	HelpChatLong    = `Render a template and split the result into chat messages.

Lines such as "<| system |>" or "<| user alice |>" start a new message.
With --raw the input is parsed as is, without rendering.`

	HelpRunShort = "Run a YAML chain spec against an LLM"
	HelpRunLong  = `Run a YAML chain spec against an OpenAI-compatible endpoint and
print the final result. With --stream, text is printed as it is generated.

Examples:
    promplate run -s essay.yaml -d '{"topic": "Go"}'
    promplate run -s essay.yaml -f context.json --stream --model gpt-4o
    promplate run -s review.yaml --storage ./templates`

	HelpVersionShort = "Show version information"
)

// Version output.
const (
	VersionTextTemplate = "promplate version %s\nGo: %s"
	VersionUnknown      = "unknown"
)

// File permission constant.
const (
	FilePermissions = 0644
)

// Format string constants.
const (
	FmtErrorWithCause = "%s: %v"
	FmtError          = "Error: %v\n"
	FmtNewline        = "\n"
	JSONIndent        = "  "
)
