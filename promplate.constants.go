package promplate

import "time"

// Reserved context keys.
const (
	// ResultKey holds the text produced by the most recent node
	ResultKey = "__result__"
)

// Default names.
const (
	DefaultTemplateName = "template"
	DefaultNodeName     = "node"
	DefaultChainName    = "chain"
	DefaultLoopName     = "loop"
	DefaultIndent       = "\t"
)

// Chain composition display.
const (
	ChainSeparator = " + "
	NodeReprFormat = "</%s/>"
	LoopReprFormat = "loop(%s)"
)

// Execution modes, used in logs, metrics and errors.
const (
	ModeInvoke  = "invoke"
	ModeAInvoke = "ainvoke"
	ModeStream  = "stream"
	ModeAStream = "astream"
	ModeRender  = "render"
	ModeARender = "arender"
)

// Chat markup roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Chat markup format.
const (
	ChatMarkupPattern  = `<\|\s?(user|system|assistant)\s?(\w{1,64})?\s?\|>`
	ChatMarkupFormat   = "<| %s |>"
	ChatMarkupNameFmt  = "<| %s %s |>"
	ChatMarkupMaxName  = 64
	ChatMarkupLineFeed = "\n"
)

// Template documents.
const (
	// YAMLFrontmatterDelimiter opens and closes the YAML header of a template file
	YAMLFrontmatterDelimiter = "---"
	TemplateFileExtension    = ".tmpl"
	DefaultFetchTimeout      = 30 * time.Second
)

// Storage defaults.
const (
	StorageDriverMemory     = "memory"
	StorageDriverFilesystem = "filesystem"
	StorageDriverPostgres   = "postgres"

	FilesystemDirPermissions  = 0o755
	FilesystemFilePermissions = 0o644
	FilesystemTemplateSuffix  = ".json"
	FilesystemVersionPrefix   = "v"

	DefaultPostgresTableName       = "promplate_templates"
	DefaultPostgresMaxOpenConns    = 10
	DefaultPostgresMaxIdleConns    = 5
	DefaultPostgresConnMaxLifetime = 30 * time.Minute
	DefaultPostgresQueryTimeout    = 10 * time.Second
)

// Chain specs.
const (
	// LoopUntilFormat wraps a loop condition into a template that renders "1" when it holds
	LoopUntilFormat = "{%% if %s %%}1{%% endif %%}"
	LoopUntilTrue   = "1"
)

// Completion cache defaults.
const (
	DefaultCacheTTL           = 10 * time.Minute
	DefaultCacheMaxEntries    = 1000
	DefaultCacheMaxResultSize = 1 << 20
	DefaultRedisKeyPrefix     = "promplate:completion:"
	CacheKeySeparator         = "\x00"
)

// Metrics defaults.
const (
	DefaultMetricsNamespace = "promplate"
	MetricsSubsystem        = "runnable"
	MetricLabelRunnable     = "runnable"
	MetricLabelMode         = "mode"
	MetricLabelOutcome      = "outcome"

	MetricEnters     = "enters_total"
	MetricLeaves     = "leaves_total"
	MetricIncrements = "increments_total"
	MetricDuration   = "duration_seconds"

	// OutcomeCompleted and OutcomeJumped label how a runnable left
	OutcomeCompleted = "completed"
	OutcomeJumped    = "jumped"
)

// Error messages.
const (
	ErrMsgCompileFailed     = "template compilation failed"
	ErrMsgRenderFailed      = "template rendering failed"
	ErrMsgResultNotSet      = "result is not set"
	ErrMsgKeyNotFound       = "key not found"
	ErrMsgNoCompletion      = "no completion capability bound or supplied"
	ErrMsgNoGeneration      = "no generation capability bound or supplied"
	ErrMsgUnsupportedCtx    = "unsupported context value"
	ErrMsgNotRenderable     = "component does not implement Render"
	ErrMsgUnhandledJump     = "jump target does not exist in the hierarchy"
	ErrMsgTemplateNotFound  = "template not found"
	ErrMsgInvalidName       = "invalid template name"
	ErrMsgStorageClosed     = "storage is closed"
	ErrMsgStorageFailed     = "storage operation failed"
	ErrMsgStorageRoot       = "storage root directory is required"
	ErrMsgVersionNotFound   = "template version not found"
	ErrMsgPathTraversal     = "template name must not contain path elements"
	ErrMsgPostgresConnStr   = "postgres connection string is required"
	ErrMsgPostgresConnect   = "cannot connect to postgres"
	ErrMsgPostgresSchema    = "cannot create postgres schema"
	ErrMsgPostgresTable     = "invalid postgres table name"
	ErrMsgUnknownDriver     = "unknown storage driver"
	ErrMsgDriverExists      = "storage driver already registered"
	ErrMsgDocumentInvalid   = "invalid template document"
	ErrMsgFrontmatterOpen   = "frontmatter is not closed"
	ErrMsgDocumentRead      = "cannot read template document"
	ErrMsgFetchFailed       = "cannot fetch template document"
	ErrMsgChainSpecInvalid  = "invalid chain spec"
	ErrMsgChainSpecKind     = "chain spec step must set exactly one of template, ref, chain or loop"
	ErrMsgChainSpecLoopSize = "loop must wrap exactly one step"
	ErrMsgChainSpecNoSteps  = "chain spec has no steps"
	ErrMsgChainSpecNoStore  = "template reference requires a storage"
	ErrMsgChainSpecLoopOnly = "until and max_iterations apply to loops only"
	ErrMsgChainSpecUntil    = "invalid loop condition"
	ErrMsgChainSpecRead     = "cannot read chain spec"
	ErrMsgCacheFailed       = "completion cache failed"
	ErrMsgLLMFailed         = "completion request failed"
	ErrMsgMetricsRegister   = "cannot register metrics"
	ErrMsgFuncNil           = "function cannot be nil"
	ErrMsgFuncEmptyName     = "function name cannot be empty"
)

// Error codes.
const (
	ErrCodeCompile      = "PROMPLATE_COMPILE"
	ErrCodeName         = "PROMPLATE_NAME"
	ErrCodeEval         = "PROMPLATE_EVAL"
	ErrCodeResultNotSet = "PROMPLATE_RESULT_NOT_SET"
	ErrCodeKeyNotFound  = "PROMPLATE_KEY_NOT_FOUND"
	ErrCodeNoCompletion = "PROMPLATE_NO_COMPLETION"
	ErrCodeContext      = "PROMPLATE_CONTEXT"
	ErrCodeStorage      = "PROMPLATE_STORAGE"
	ErrCodeNotFound     = "PROMPLATE_NOT_FOUND"
	ErrCodeDocument     = "PROMPLATE_DOCUMENT"
	ErrCodeChainSpec    = "PROMPLATE_CHAIN_SPEC"
	ErrCodeCache        = "PROMPLATE_CACHE"
	ErrCodeLLM          = "PROMPLATE_LLM"
	ErrCodeRegistry     = "PROMPLATE_REGISTRY"
)

// Metadata keys for cuserr.WithMetadata.
const (
	MetaKeyCode     = "code"
	MetaKeyTemplate = "template"
	MetaKeyLine     = "line"
	MetaKeyColumn   = "column"
	MetaKeyOffset   = "offset"
	MetaKeyKeyword  = "keyword"
	MetaKeyKind     = "kind"
	MetaKeyName     = "name"
	MetaKeyKey      = "key"
	MetaKeyRunnable = "runnable"
	MetaKeyMode     = "mode"
	MetaKeyDriver   = "driver"
	MetaKeyPath     = "path"
	MetaKeyField    = "field"
	MetaKeyType     = "type"
	MetaKeyFuncName = "func_name"
	MetaKeyProvider = "provider"
	MetaKeyVersion  = "version"
)

// Log messages.
const (
	LogMsgTemplateCompiled = "template compiled"
	LogMsgTemplateRender   = "rendering template"
	LogMsgRunnableEnter    = "entering runnable"
	LogMsgRunnableLeave    = "leaving runnable"
	LogMsgRunnableFailed   = "runnable failed"
	LogMsgJumpCaught       = "jump caught"
	LogMsgJumpBubbled      = "jump bubbled up"
	LogMsgChildStart       = "running child"
	LogMsgLoopIteration    = "loop iteration"
	LogMsgCompletion       = "completion received"
	LogMsgDelta            = "delta received"
	LogMsgPhase            = "callback phase"
	LogMsgStorageOpen      = "storage opened"
	LogMsgStorageSave      = "template saved"
	LogMsgStorageDelete    = "template deleted"
	LogMsgCacheHit         = "completion cache hit"
	LogMsgCacheMiss        = "completion cache miss"
	LogMsgCacheFailed      = "completion cache backend failed"
	LogMsgChainBuilt       = "chain built from spec"
)

// Log field names.
const (
	LogFieldTemplate = "template"
	LogFieldRunnable = "runnable"
	LogFieldMode     = "mode"
	LogFieldPhase    = "phase"
	LogFieldInto     = "into"
	LogFieldBubble   = "bubble_up_to"
	LogFieldIndex    = "index"
	LogFieldLength   = "length"
	LogFieldError    = "error"
	LogFieldDriver   = "driver"
	LogFieldName     = "name"
	LogFieldKey      = "key"
	LogFieldSteps    = "steps"
	LogFieldDuration = "duration"
	LogFieldVersion  = "version"
)

// Callback phase names.
const (
	PhaseOnEnter    = "on_enter"
	PhasePreProcess = "pre_process"
	PhaseMid        = "mid_process"
	PhaseEnd        = "end_process"
	PhaseOnLeave    = "on_leave"
)
