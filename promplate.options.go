package promplate

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring a Node, Chain or Loop.
type Option func(*runnableConfig)

// runnableConfig holds the construction settings shared by every runnable.
type runnableConfig struct {
	name      string
	partial   map[string]any
	config    Config
	caps      capabilities
	callbacks []Callback
	factories []CallbackFactory
	template  []TemplateOption
	logger    *zap.Logger
}

// defaultRunnableConfig returns the default runnable configuration.
func defaultRunnableConfig(name string) *runnableConfig {
	return &runnableConfig{
		name:   name,
		logger: zap.NewNop(),
	}
}

func applyOptions(name string, opts []Option) *runnableConfig {
	cfg := defaultRunnableConfig(name)
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName sets the runnable name used in logs, metrics and errors.
func WithName(name string) Option {
	return func(c *runnableConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithPartialContext sets the runnable's own context, consulted after the caller's.
// The map is used by reference.
func WithPartialContext(partial map[string]any) Option {
	return func(c *runnableConfig) {
		c.partial = partial
	}
}

// WithConfig sets default generation configuration; call-site values win.
func WithConfig(cfg Config) Option {
	return func(c *runnableConfig) {
		c.config = c.config.Merge(cfg)
	}
}

// WithComplete binds a completion function. A bound capability wins over one supplied at call time.
func WithComplete(f Complete) Option {
	return func(c *runnableConfig) {
		c.caps.complete = f
	}
}

// WithGenerate binds a generation function used when streaming.
func WithGenerate(f Generate) Option {
	return func(c *runnableConfig) {
		c.caps.generate = f
	}
}

// WithAsyncComplete binds a completion function preferred by AInvoke.
func WithAsyncComplete(f AsyncComplete) Option {
	return func(c *runnableConfig) {
		c.caps.asyncComplete = f
	}
}

// WithAsyncGenerate binds a generation function preferred by AStream.
func WithAsyncGenerate(f AsyncGenerate) Option {
	return func(c *runnableConfig) {
		c.caps.asyncGenerate = f
	}
}

// WithLLM binds every capability the provider implements (LLM and/or AsyncLLM).
func WithLLM(llm any) Option {
	return func(c *runnableConfig) {
		c.caps = capabilitiesOf(llm).or(c.caps)
	}
}

// WithCallbacks registers callback instances at construction.
func WithCallbacks(callbacks ...Callback) Option {
	return func(c *runnableConfig) {
		c.callbacks = append(c.callbacks, callbacks...)
	}
}

// WithCallbackFactories registers per-invocation callback factories at construction.
func WithCallbackFactories(factories ...CallbackFactory) Option {
	return func(c *runnableConfig) {
		c.factories = append(c.factories, factories...)
	}
}

// WithTemplateOptions passes options to the template a Node builds from source.
func WithTemplateOptions(opts ...TemplateOption) Option {
	return func(c *runnableConfig) {
		c.template = append(c.template, opts...)
	}
}

// WithLogger sets the logger for the runnable.
// Default: zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *runnableConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RunOption configures a single Invoke, AInvoke, Stream or AStream call.
type RunOption func(*runOptions)

type runOptions struct {
	caps   capabilities
	config Config
}

func applyRunOptions(opts []RunOption) runOptions {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RunWithComplete supplies a completion function for runnables that have none bound.
func RunWithComplete(f Complete) RunOption {
	return func(o *runOptions) {
		o.caps.complete = f
	}
}

// RunWithGenerate supplies a generation function for runnables that have none bound.
func RunWithGenerate(f Generate) RunOption {
	return func(o *runOptions) {
		o.caps.generate = f
	}
}

// RunWithAsyncComplete supplies an async completion function.
func RunWithAsyncComplete(f AsyncComplete) RunOption {
	return func(o *runOptions) {
		o.caps.asyncComplete = f
	}
}

// RunWithAsyncGenerate supplies an async generation function.
func RunWithAsyncGenerate(f AsyncGenerate) RunOption {
	return func(o *runOptions) {
		o.caps.asyncGenerate = f
	}
}

// RunWithLLM supplies every capability the provider implements.
func RunWithLLM(llm any) RunOption {
	return func(o *runOptions) {
		o.caps = capabilitiesOf(llm).or(o.caps)
	}
}

// RunWithConfig overrides generation configuration for this call.
func RunWithConfig(cfg Config) RunOption {
	return func(o *runOptions) {
		o.config = o.config.Merge(cfg)
	}
}
