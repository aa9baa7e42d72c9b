package promplate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Node pairs a template with a completion capability: it renders a prompt from the
// context, completes it and stores the text in the context's result slot.
type Node struct {
	base
	template *Template
}

// NewNode creates a node from template source. The template is named after the node.
func NewNode(source string, opts ...Option) *Node {
	cfg := applyOptions(DefaultNodeName, opts)
	tmplOpts := append([]TemplateOption{
		WithTemplateName(cfg.name),
		WithTemplateLogger(cfg.logger),
	}, cfg.template...)
	return newNode(NewTemplate(source, tmplOpts...), cfg)
}

// NewTemplateNode creates a node around an existing template, named after it by default.
func NewTemplateNode(t *Template, opts ...Option) *Node {
	return newNode(t, applyOptions(t.Name(), opts))
}

func newNode(t *Template, cfg *runnableConfig) *Node {
	n := &Node{template: t}
	n.init(n, cfg)
	return n
}

// Template returns the node's template.
func (n *Node) Template() *Template { return n.template }

// String implements fmt.Stringer.
func (n *Node) String() string { return fmt.Sprintf(NodeReprFormat, n.name) }

// Next returns a new Chain running n and then r.
func (n *Node) Next(r Runnable) *Chain {
	return NewChain(append([]Runnable{n}, flatten(r)...))
}

// Render runs the pre-process phase and renders the prompt without completing it.
func (n *Node) Render(ctx context.Context, vars *Context) (string, error) {
	return n.render(ctx, vars, false)
}

// ARender is Render with the async template program, on a new goroutine.
func (n *Node) ARender(ctx context.Context, vars *Context) <-chan Outcome[string] {
	ch := make(chan Outcome[string], 1)
	go func() {
		defer close(ch)
		text, err := n.render(ctx, vars, true)
		ch <- Outcome[string]{Value: text, Err: err}
	}()
	return ch
}

func (n *Node) render(ctx context.Context, vars *Context, async bool) (string, error) {
	c := Derive(vars, n.PartialContext())
	if err := n.resolve().pre(ctx, c); err != nil {
		return "", err
	}
	return n.template.render(ctx, c, async)
}

func (n *Node) run(rs *runState, c *Context) (*Context, error) {
	return n.execute(rs, c, n.body)
}

func (n *Node) body(rs *runState, c *Context, cbs callbackSet) (*Context, error) {
	var (
		complete Complete
		generate Generate
	)
	if rs.stream {
		generate = rs.caps.generateFor(rs.async)
	} else {
		complete = rs.caps.completeFor(rs.async)
	}
	if complete == nil && generate == nil {
		return nil, NewNoCompletionError(n.name, rs.mode())
	}

	if err := cbs.pre(rs.ctx, c); err != nil {
		return nil, err
	}
	prompt, err := n.template.render(rs.ctx, c, rs.async)
	if err != nil {
		return nil, err
	}

	if generate != nil {
		return n.stream(rs, c, cbs, generate, prompt)
	}

	text, err := complete(rs.ctx, prompt, rs.config)
	if err != nil {
		return nil, err
	}
	n.logger.Debug(LogMsgCompletion, zap.String(LogFieldRunnable, n.name), zap.Int(LogFieldLength, len(text)))
	c.SetResult(text)
	if err := cbs.mid(rs.ctx, c); err != nil {
		return nil, err
	}
	if err := cbs.end(rs.ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// stream accumulates deltas into the result slot, one mid phase and one yield per delta.
func (n *Node) stream(rs *runState, c *Context, cbs callbackSet, generate Generate, prompt string) (*Context, error) {
	ctx, cancel := context.WithCancel(rs.ctx)
	defer cancel()

	var total strings.Builder
	for delta, err := range generate(ctx, prompt, rs.config) {
		if err != nil {
			return nil, err
		}
		total.WriteString(delta)
		n.logger.Debug(LogMsgDelta, zap.String(LogFieldRunnable, n.name), zap.Int(LogFieldLength, total.Len()))
		c.SetResult(total.String())
		if err := cbs.mid(rs.ctx, c); err != nil {
			return nil, err
		}
		if err := rs.yield(c); err != nil {
			return nil, err
		}
	}
	if err := cbs.end(rs.ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
