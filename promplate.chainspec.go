package promplate

import (
	"context"
	"fmt"
	"maps"
	"os"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChainSpec describes a Chain (or, under a loop step, a Loop) declaratively:
//
//	name: essay
//	context:
//	  lang: English
//	steps:
//	  - name: draft
//	    template: "Write about {{ topic }} in {{ lang }}"
//	  - loop:
//	      max_iterations: 3
//	      until: "'LGTM' in __result__"
//	      steps:
//	        - ref: critique
//	          version: 2
type ChainSpec struct {
	Name    string         `mapstructure:"name"`
	Context map[string]any `mapstructure:"context"`
	Config  Config         `mapstructure:"config"`
	Steps   []StepSpec     `mapstructure:"steps"`

	// Until is an expression checked after every iteration; the loop stops once it is true.
	Until string `mapstructure:"until"`

	// MaxIterations stops the loop after that many iterations (0 = no limit)
	MaxIterations int `mapstructure:"max_iterations"`
}

// StepSpec is one child of a chain. Exactly one of Template, Ref, Chain or Loop is set.
type StepSpec struct {
	Name string `mapstructure:"name"`

	// Template is an inline template source
	Template string `mapstructure:"template"`

	// Ref names a template in the storage passed to BuildChain; Version pins a
	// version, otherwise the latest is used.
	Ref     string `mapstructure:"ref"`
	Version int    `mapstructure:"version"`

	Chain *ChainSpec `mapstructure:"chain"`
	Loop  *ChainSpec `mapstructure:"loop"`

	Context map[string]any `mapstructure:"context"`
	Config  Config         `mapstructure:"config"`
}

// ParseChainSpec parses and validates a YAML chain spec.
func ParseChainSpec(data []byte) (*ChainSpec, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewChainSpecError(ErrMsgChainSpecInvalid, "", err)
	}
	return DecodeChainSpec(raw)
}

// ReadChainSpec reads a YAML chain spec file.
func ReadChainSpec(filePath string) (*ChainSpec, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, NewChainSpecError(ErrMsgChainSpecRead, filePath, err)
	}
	return ParseChainSpec(data)
}

// DecodeChainSpec decodes a chain spec from generic data, such as decoded JSON.
// Unknown keys are rejected.
func DecodeChainSpec(raw map[string]any) (*ChainSpec, error) {
	var spec ChainSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &spec,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, NewChainSpecError(ErrMsgChainSpecInvalid, "", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, NewChainSpecError(ErrMsgChainSpecInvalid, "", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the structure of the spec. The field of a returned error
// points at the offending step, e.g. "steps[1].loop.steps".
func (s *ChainSpec) Validate() error {
	return s.validate("", false)
}

func (s *ChainSpec) validate(path string, loop bool) error {
	if len(s.Steps) == 0 {
		return NewChainSpecError(ErrMsgChainSpecNoSteps, path+"steps", nil)
	}
	if loop && len(s.Steps) != 1 {
		return NewChainSpecError(ErrMsgChainSpecLoopSize, path+"steps", nil)
	}
	if !loop && (s.Until != "" || s.MaxIterations != 0) {
		return NewChainSpecError(ErrMsgChainSpecLoopOnly, path+"until", nil)
	}

	for i, step := range s.Steps {
		stepPath := fmt.Sprintf("%ssteps[%d]", path, i)
		kinds := 0
		for _, set := range []bool{step.Template != "", step.Ref != "", step.Chain != nil, step.Loop != nil} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			return NewChainSpecError(ErrMsgChainSpecKind, stepPath, nil)
		}
		if step.Chain != nil {
			if err := step.Chain.validate(stepPath+".chain.", false); err != nil {
				return err
			}
		}
		if step.Loop != nil {
			if err := step.Loop.validate(stepPath+".loop.", true); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildOption configures BuildChain.
type BuildOption func(*chainBuilder)

// WithStorage sets the storage template references are loaded from.
func WithStorage(storage TemplateStorage) BuildOption {
	return func(b *chainBuilder) {
		b.storage = storage
	}
}

// WithNodeOptions applies opts to every node the spec creates, typically a bound LLM.
func WithNodeOptions(opts ...Option) BuildOption {
	return func(b *chainBuilder) {
		b.node = append(b.node, opts...)
	}
}

// WithBuildLogger sets the logger given to every built runnable.
// Default: zap.NewNop().
func WithBuildLogger(logger *zap.Logger) BuildOption {
	return func(b *chainBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type chainBuilder struct {
	storage TemplateStorage
	node    []Option
	logger  *zap.Logger
}

// BuildChain turns a spec into a Chain. Referenced templates are loaded once, at build time.
func BuildChain(ctx context.Context, spec *ChainSpec, opts ...BuildOption) (*Chain, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b := &chainBuilder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	chain, err := b.chain(ctx, spec, "", "")
	if err != nil {
		return nil, err
	}
	b.logger.Debug(LogMsgChainBuilt, zap.String(LogFieldName, chain.Name()), zap.Int(LogFieldSteps, chain.Len()))
	return chain, nil
}

func (b *chainBuilder) chain(ctx context.Context, spec *ChainSpec, name, path string) (*Chain, error) {
	children := make([]Runnable, 0, len(spec.Steps))
	for i, step := range spec.Steps {
		child, err := b.step(ctx, step, fmt.Sprintf("%ssteps[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return NewChain(children, b.options(firstNonEmpty(spec.Name, name), spec.Context, spec.Config)...), nil
}

func (b *chainBuilder) loop(ctx context.Context, spec *ChainSpec, name, path string) (*Loop, error) {
	child, err := b.step(ctx, spec.Steps[0], path+"steps[0]")
	if err != nil {
		return nil, err
	}
	loop := NewLoop(child, b.options(firstNonEmpty(spec.Name, name), spec.Context, spec.Config)...)

	if spec.Until != "" {
		cond := NewTemplate(fmt.Sprintf(LoopUntilFormat, spec.Until),
			WithTemplateName(path+"until"),
			WithTemplateLogger(b.logger))
		if err := cond.Compile(); err != nil {
			return nil, NewChainSpecError(ErrMsgChainSpecUntil, path+"until", err)
		}
		loop.AddMidProcesses(func(ctx context.Context, c *Context) error {
			out, err := cond.Render(ctx, c)
			if err != nil {
				return err
			}
			if out == LoopUntilTrue {
				return BreakOutOf(loop)
			}
			return nil
		})
	}

	if limit := spec.MaxIterations; limit > 0 {
		loop.AddCallbackFactories(func() Callback {
			iterations := 0
			return NewCallback(CallbackFuncs{
				MidProcess: func(context.Context, *Context) error {
					iterations++
					if iterations >= limit {
						return BreakOutOf(loop)
					}
					return nil
				},
			})
		})
	}
	return loop, nil
}

func (b *chainBuilder) step(ctx context.Context, step StepSpec, path string) (Runnable, error) {
	switch {
	case step.Template != "":
		opts := b.options(step.Name, step.Context, step.Config)
		return NewNode(step.Template, append(opts, b.node...)...), nil

	case step.Ref != "":
		if b.storage == nil {
			return nil, NewChainSpecError(ErrMsgChainSpecNoStore, path+".ref", nil)
		}
		var (
			st  *StoredTemplate
			err error
		)
		if step.Version > 0 {
			st, err = b.storage.GetVersion(ctx, step.Ref, step.Version)
		} else {
			st, err = b.storage.Get(ctx, step.Ref)
		}
		if err != nil {
			return nil, err
		}

		// step values override the stored ones key by key
		partial := step.Context
		if len(partial) > 0 && len(st.Context) > 0 {
			partial = maps.Clone(st.Context)
			maps.Copy(partial, step.Context)
		}
		opts := b.options(step.Name, partial, step.Config)
		return st.Node(append(opts, b.node...)...), nil

	case step.Chain != nil:
		return b.chain(ctx, step.Chain, step.Name, path+".chain.")

	default:
		return b.loop(ctx, step.Loop, step.Name, path+".loop.")
	}
}

func (b *chainBuilder) options(name string, partial map[string]any, cfg Config) []Option {
	opts := []Option{WithLogger(b.logger)}
	if name != "" {
		opts = append(opts, WithName(name))
	}
	if len(partial) > 0 {
		opts = append(opts, WithPartialContext(partial))
	}
	if len(cfg) > 0 {
		opts = append(opts, WithConfig(cfg))
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
