package promplate

import (
	"context"
	"errors"
	"iter"
	"sync"

	"go.uber.org/zap"
)

// Runnable is implemented by *Node, *Chain and *Loop.
//
// The four entry points share one control flow and differ only in how results
// are delivered: Invoke blocks, AInvoke delivers on a channel, Stream yields the
// live context after every delta, AStream sends a snapshot per delta on a channel
// that is closed at the end. A failed stream ends with an error element.
type Runnable interface {
	Name() string
	PartialContext() map[string]any

	Invoke(ctx context.Context, c *Context, opts ...RunOption) (*Context, error)
	AInvoke(ctx context.Context, c *Context, opts ...RunOption) <-chan Outcome[*Context]
	Stream(ctx context.Context, c *Context, opts ...RunOption) iter.Seq2[*Context, error]
	AStream(ctx context.Context, c *Context, opts ...RunOption) <-chan Outcome[*Context]

	AddCallbacks(callbacks ...Callback)
	AddCallbackFactories(factories ...CallbackFactory)
	AddPreProcesses(processes ...Process)
	AddMidProcesses(processes ...Process)
	AddEndProcesses(processes ...Process)

	// Next returns a new Chain running the receiver and then r
	Next(r Runnable) *Chain

	run(rs *runState, c *Context) (*Context, error)
}

// errStreamStopped unwinds a run whose stream consumer went away.
var errStreamStopped = errors.New("stream consumer stopped")

// runState carries one call's mode, capabilities and configuration down the tree.
type runState struct {
	ctx    context.Context
	async  bool
	stream bool
	caps   capabilities
	config Config
	emit   func(*Context) bool
}

func newRunState(ctx context.Context, async, stream bool, opts []RunOption) *runState {
	o := applyRunOptions(opts)
	rs := &runState{
		async:  async,
		stream: stream,
		caps:   o.caps,
		config: o.config,
	}
	rs.ctx = context.WithValue(ctx, runModeKey{}, rs.mode())
	return rs
}

type runModeKey struct{}

// RunMode returns the execution mode (ModeInvoke, ModeAInvoke, ModeStream or
// ModeAStream) of the run ctx belongs to, or "" outside a run. Callbacks use it
// to tell the modes apart.
func RunMode(ctx context.Context) string {
	mode, _ := ctx.Value(runModeKey{}).(string)
	return mode
}

func (rs *runState) mode() string {
	switch {
	case rs.async && rs.stream:
		return ModeAStream
	case rs.stream:
		return ModeStream
	case rs.async:
		return ModeAInvoke
	default:
		return ModeInvoke
	}
}

// scoped returns the state seen inside a runnable: its bound capabilities take
// precedence and cfg replaces the configuration.
func (rs *runState) scoped(bound capabilities, cfg Config) *runState {
	out := *rs
	out.caps = bound.or(rs.caps)
	out.config = cfg
	return &out
}

func (rs *runState) yield(c *Context) error {
	if rs.emit == nil {
		return nil
	}
	if !rs.emit(c) {
		return errStreamStopped
	}
	return nil
}

// bodyFunc is the work of a runnable between its enter and leave phases.
type bodyFunc func(rs *runState, c *Context, cbs callbackSet) (*Context, error)

// base holds what Node, Chain and Loop have in common.
type base struct {
	Callbacks

	self   Runnable
	name   string
	config Config
	caps   capabilities
	logger *zap.Logger

	mu      sync.Mutex
	partial map[string]any
}

func (b *base) init(self Runnable, cfg *runnableConfig) {
	b.self = self
	b.name = cfg.name
	b.config = cfg.config
	b.caps = cfg.caps
	b.logger = cfg.logger
	b.partial = cfg.partial
	b.AddCallbacks(cfg.callbacks...)
	b.AddCallbackFactories(cfg.factories...)
}

// Name returns the runnable name.
func (b *base) Name() string { return b.name }

// Config returns a copy of the default generation configuration.
func (b *base) Config() Config { return b.config.Merge() }

// PartialContext returns the runnable's own context map, creating it on first use.
// Writes to it are seen by later invocations.
func (b *base) PartialContext() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.partial == nil {
		b.partial = make(map[string]any)
	}
	return b.partial
}

// plain reports whether the runnable only groups its children and can be flattened.
func (b *base) plain() bool {
	b.mu.Lock()
	empty := len(b.partial) == 0
	b.mu.Unlock()
	return empty && len(b.config) == 0 && b.CallbackCount() == 0 &&
		!b.caps.hasCompletion() && !b.caps.hasGeneration()
}

// Invoke runs to completion and returns the resulting context.
func (b *base) Invoke(ctx context.Context, c *Context, opts ...RunOption) (*Context, error) {
	return b.self.run(newRunState(ctx, false, false, opts), c)
}

// AInvoke runs on a new goroutine and delivers the result on the returned channel.
func (b *base) AInvoke(ctx context.Context, c *Context, opts ...RunOption) <-chan Outcome[*Context] {
	ch := make(chan Outcome[*Context], 1)
	go func() {
		defer close(ch)
		out, err := b.self.run(newRunState(ctx, true, false, opts), c)
		ch <- Outcome[*Context]{Value: out, Err: err}
	}()
	return ch
}

// Stream yields the live context after every delta. Breaking out of the loop stops the run.
func (b *base) Stream(ctx context.Context, c *Context, opts ...RunOption) iter.Seq2[*Context, error] {
	return func(yield func(*Context, error) bool) {
		rs := newRunState(ctx, false, true, opts)
		rs.emit = func(c *Context) bool { return yield(c, nil) }
		if _, err := b.self.run(rs, c); err != nil && !errors.Is(err, errStreamStopped) {
			yield(nil, err)
		}
	}
}

// AStream runs on a new goroutine and sends a snapshot per delta.
// Cancel ctx to stop a stream before it is drained.
func (b *base) AStream(ctx context.Context, c *Context, opts ...RunOption) <-chan Outcome[*Context] {
	ch := make(chan Outcome[*Context])
	go func() {
		defer close(ch)
		rs := newRunState(ctx, true, true, opts)
		rs.emit = func(c *Context) bool {
			select {
			case ch <- Outcome[*Context]{Value: c.Snapshot()}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if _, err := b.self.run(rs, c); err != nil && !errors.Is(err, errStreamStopped) {
			select {
			case ch <- Outcome[*Context]{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// execute is the frame every runnable runs in: enter, body, leave, and jump resolution.
func (b *base) execute(rs *runState, c *Context, body bodyFunc) (*Context, error) {
	self := b.self
	cbs := b.resolve()
	mode := rs.mode()

	cfg := b.config.Merge(rs.config)
	c, cfg, err := cbs.enter(rs.ctx, self, c, cfg)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = NewContext(nil)
	}
	scope := Derive(c, b.PartialContext())
	b.logger.Debug(LogMsgRunnableEnter, zap.String(LogFieldRunnable, b.name), zap.String(LogFieldMode, mode))

	out, err := body(rs.scoped(b.caps, cfg), scope, cbs)
	if err == nil {
		out, _, err = cbs.leave(rs.ctx, self, out, cfg)
		if err != nil {
			return nil, err
		}
		b.logger.Debug(LogMsgRunnableLeave, zap.String(LogFieldRunnable, b.name), zap.String(LogFieldMode, mode))
		return surface(out, scope, c), nil
	}

	jump, ok := AsJump(err)
	if !ok {
		if !errors.Is(err, errStreamStopped) {
			b.logger.Debug(LogMsgRunnableFailed, zap.String(LogFieldRunnable, b.name), zap.Error(err))
		}
		return nil, err
	}
	left, _, leaveErr := cbs.leave(rs.ctx, self, scope, cfg)
	if leaveErr != nil {
		return nil, leaveErr
	}
	if !jump.handledBy(self) {
		b.logger.Debug(LogMsgJumpBubbled, zap.String(LogFieldRunnable, b.name), zap.String(LogFieldBubble, jump.BubbleUpTo.Name()))
		return nil, err
	}

	into := ""
	if jump.Into != nil {
		into = jump.Into.Name()
	}
	b.logger.Debug(LogMsgJumpCaught, zap.String(LogFieldRunnable, b.name), zap.String(LogFieldInto, into))
	left.Update(jump.Context)
	if jump.Into == nil {
		return surface(left, scope, c), nil
	}
	out, err = jump.Into.run(rs, left)
	if err != nil {
		return nil, err
	}
	return surface(out, scope, c), nil
}

// surface picks the context a frame hands back to its caller. The frame's own
// scope gives way to the entered context so partial contexts stay local; a
// context substituted by a callback or a jump target is passed on as is.
func surface(out, scope, entered *Context) *Context {
	if out == scope {
		return entered
	}
	return out
}

// flatten returns the children r contributes to a composed chain.
func flatten(r Runnable) []Runnable {
	if ch, ok := r.(*Chain); ok && ch.plain() {
		return ch.Children()
	}
	return []Runnable{r}
}
