package promplate

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/promplate/go-promplate/internal"
)

// Renderer is anything a template can invoke as a {% component %}
type Renderer interface {
	Render(ctx context.Context, vars *Context) (string, error)
}

// AsyncRenderer is a component with a native async render.
type AsyncRenderer interface {
	ARender(ctx context.Context, vars *Context) <-chan Outcome[string]
}

// TemplateOption configures a Template.
type TemplateOption func(*Template)

// WithTemplateName sets the name reported in errors and logs.
func WithTemplateName(name string) TemplateOption {
	return func(t *Template) {
		if name != "" {
			t.name = name
		}
	}
}

// WithDefaults sets variables visible when neither locals nor the render context define them.
func WithDefaults(defaults map[string]any) TemplateOption {
	return func(t *Template) {
		t.defaults = defaults
	}
}

// WithFuncs makes custom functions callable from the template.
func WithFuncs(funcs ...*Func) TemplateOption {
	return func(t *Template) {
		t.funcs = append(t.funcs, funcs...)
	}
}

// WithTemplateLogger sets the logger for compilation and rendering.
// Default: zap.NewNop().
func WithTemplateLogger(logger *zap.Logger) TemplateOption {
	return func(t *Template) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Template is immutable template source compiled lazily, once per mode.
// A Template is safe for concurrent use.
type Template struct {
	source   string
	name     string
	defaults map[string]any
	funcs    []*Func
	logger   *zap.Logger

	mu       sync.Mutex
	programs [2]*internal.Program
	registry *internal.FuncRegistry
}

// NewTemplate creates a template from source. Nothing is compiled until first use.
func NewTemplate(source string, opts ...TemplateOption) *Template {
	t := &Template{
		source: source,
		name:   DefaultTemplateName,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Source returns the template text.
func (t *Template) Source() string { return t.source }

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Defaults returns a copy of the default variables.
func (t *Template) Defaults() map[string]any { return maps.Clone(t.defaults) }

// String implements fmt.Stringer.
func (t *Template) String() string { return t.source }

func (t *Template) program(async bool) (*internal.Program, *internal.FuncRegistry, error) {
	slot := 0
	if async {
		slot = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.registry == nil {
		registry, err := funcRegistry(t.funcs)
		if err != nil {
			return nil, nil, err
		}
		t.registry = registry
	}
	if p := t.programs[slot]; p != nil {
		return p, t.registry, nil
	}

	p, err := internal.Compile(t.source, internal.CompilerConfig{
		Name:   t.name,
		Async:  async,
		Logger: t.logger,
	})
	if err != nil {
		return nil, nil, NewCompileError(t.name, err)
	}
	t.logger.Debug(LogMsgTemplateCompiled, zap.String(LogFieldTemplate, t.name), zap.String(LogFieldMode, modeName(async)))
	t.programs[slot] = p
	return p, t.registry, nil
}

// Compile compiles both the sync and the async program, reporting syntax errors early.
func (t *Template) Compile() error {
	if _, _, err := t.program(false); err != nil {
		return err
	}
	_, _, err := t.program(true)
	return err
}

// Render renders the template against vars, which may be nil.
// Assignments made by the template stay local to this render.
func (t *Template) Render(ctx context.Context, vars *Context) (string, error) {
	return t.render(ctx, vars, false)
}

// ARender renders with the async program on a new goroutine.
// Awaited expressions and components suspend only that goroutine.
func (t *Template) ARender(ctx context.Context, vars *Context) <-chan Outcome[string] {
	ch := make(chan Outcome[string], 1)
	go func() {
		defer close(ch)
		text, err := t.render(ctx, vars, true)
		ch <- Outcome[string]{Value: text, Err: err}
	}()
	return ch
}

func (t *Template) render(ctx context.Context, vars *Context, async bool) (string, error) {
	p, registry, err := t.program(async)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = NewContext(nil)
	}
	t.logger.Debug(LogMsgTemplateRender, zap.String(LogFieldTemplate, t.name), zap.String(LogFieldMode, modeName(async)))

	text, err := p.Run(ctx, internal.Env{
		Globals: templateScope{vars: vars, defaults: t.defaults},
		Funcs:   registry,
		Host:    &componentHost{parent: vars},
	})
	if err != nil {
		return "", NewRenderError(t.name, err)
	}
	return text, nil
}

// Variables returns the names the template reads without assigning them first,
// in order of first use. Builtins are not included.
func (t *Template) Variables() ([]string, error) {
	p, _, err := t.program(false)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.FreeNames), nil
}

// Script returns a listing of the compiled sync program, indenting with indent
// (DefaultIndent when empty).
func (t *Template) Script(indent string) (string, error) {
	return t.script(false, indent)
}

// AsyncScript is Script for the async program.
func (t *Template) AsyncScript(indent string) (string, error) {
	return t.script(true, indent)
}

func (t *Template) script(async bool, indent string) (string, error) {
	p, _, err := t.program(async)
	if err != nil {
		return "", err
	}
	if indent == "" {
		indent = DefaultIndent
	}
	return p.Script(indent), nil
}

func modeName(async bool) string {
	if async {
		return ModeARender
	}
	return ModeRender
}

// templateScope resolves globals: the render context, then the template defaults.
type templateScope struct {
	vars     *Context
	defaults map[string]any
}

func (s templateScope) Lookup(name string) (any, bool) {
	if v, ok := s.vars.Get(name); ok {
		return v, true
	}
	v, ok := s.defaults[name]
	return v, ok
}

// componentHost renders {% name args %} invocations. The component sees the
// invocation variables first and the caller's context after them.
type componentHost struct {
	parent *Context
}

func (h *componentHost) RenderComponent(ctx context.Context, name string, component any, vars map[string]any, async bool) (string, error) {
	child := &Context{
		primary:  newLayers(vars),
		fallback: newLayers(h.parent.Maps()...),
	}
	if async {
		if r, ok := component.(AsyncRenderer); ok {
			return Await(ctx, r.ARender(ctx, child))
		}
	}
	r, ok := component.(Renderer)
	if !ok {
		return "", NewNotRenderableError(name, component)
	}
	return r.Render(ctx, child)
}
