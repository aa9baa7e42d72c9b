package promplate

import (
	"context"
	"slices"
	"sync"
)

// Callback intercepts the execution of a Node, Chain or Loop.
//
// PreProcess runs once before the work starts, MidProcess after every increment
// of output (each completion, each streamed delta, each finished child) and
// EndProcess once at the end. OnEnter may replace the caller's context (which may
// be nil) and the configuration before the run; OnLeave sees them after a normal
// finish or a caught Jump.
//
// OnEnter, PreProcess and MidProcess run in registration order, EndProcess and
// OnLeave in reverse. Returning a *Jump from any phase redirects execution.
type Callback interface {
	OnEnter(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error)
	PreProcess(ctx context.Context, c *Context) error
	MidProcess(ctx context.Context, c *Context) error
	EndProcess(ctx context.Context, c *Context) error
	OnLeave(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error)
}

// Process is a single callback phase.
type Process func(ctx context.Context, c *Context) error

// Hook is an enter or leave phase.
type Hook func(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error)

// CallbackFactory creates a fresh Callback for every invocation, so per-call state
// does not leak between runs.
type CallbackFactory func() Callback

// BaseCallback implements every phase as a no-op. Embed it and override what you need.
type BaseCallback struct{}

// OnEnter returns the context and configuration unchanged.
func (BaseCallback) OnEnter(_ context.Context, _ Runnable, c *Context, cfg Config) (*Context, Config, error) {
	return c, cfg, nil
}

// PreProcess does nothing.
func (BaseCallback) PreProcess(context.Context, *Context) error { return nil }

// MidProcess does nothing.
func (BaseCallback) MidProcess(context.Context, *Context) error { return nil }

// EndProcess does nothing.
func (BaseCallback) EndProcess(context.Context, *Context) error { return nil }

// OnLeave returns the context and configuration unchanged.
func (BaseCallback) OnLeave(_ context.Context, _ Runnable, c *Context, cfg Config) (*Context, Config, error) {
	return c, cfg, nil
}

// CallbackFuncs lists the phases of a function-based callback; nil phases do nothing.
type CallbackFuncs struct {
	OnEnter    Hook
	PreProcess Process
	MidProcess Process
	EndProcess Process
	OnLeave    Hook
}

// NewCallback builds a Callback from plain functions.
func NewCallback(funcs CallbackFuncs) Callback {
	return funcCallback{funcs: funcs}
}

type funcCallback struct {
	funcs CallbackFuncs
}

func (f funcCallback) OnEnter(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	if f.funcs.OnEnter == nil {
		return c, cfg, nil
	}
	return f.funcs.OnEnter(ctx, r, c, cfg)
}

func (f funcCallback) PreProcess(ctx context.Context, c *Context) error {
	if f.funcs.PreProcess == nil {
		return nil
	}
	return f.funcs.PreProcess(ctx, c)
}

func (f funcCallback) MidProcess(ctx context.Context, c *Context) error {
	if f.funcs.MidProcess == nil {
		return nil
	}
	return f.funcs.MidProcess(ctx, c)
}

func (f funcCallback) EndProcess(ctx context.Context, c *Context) error {
	if f.funcs.EndProcess == nil {
		return nil
	}
	return f.funcs.EndProcess(ctx, c)
}

func (f funcCallback) OnLeave(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	if f.funcs.OnLeave == nil {
		return c, cfg, nil
	}
	return f.funcs.OnLeave(ctx, r, c, cfg)
}

// callbackSource is either a shared instance or a per-invocation factory.
type callbackSource struct {
	instance Callback
	factory  CallbackFactory
}

func (s callbackSource) resolve() Callback {
	if s.factory != nil {
		return s.factory()
	}
	return s.instance
}

// Callbacks is the registration list embedded in every runnable.
type Callbacks struct {
	mu      sync.RWMutex
	sources []callbackSource
}

// AddCallbacks registers callback instances. The same instance is used for every
// invocation, so any state it keeps persists across runs.
func (cs *Callbacks) AddCallbacks(callbacks ...Callback) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, cb := range callbacks {
		if cb != nil {
			cs.sources = append(cs.sources, callbackSource{instance: cb})
		}
	}
}

// AddCallbackFactories registers factories instantiated once per invocation.
func (cs *Callbacks) AddCallbackFactories(factories ...CallbackFactory) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, f := range factories {
		if f != nil {
			cs.sources = append(cs.sources, callbackSource{factory: f})
		}
	}
}

// AddPreProcesses registers functions run before rendering.
func (cs *Callbacks) AddPreProcesses(processes ...Process) {
	for _, p := range processes {
		cs.AddCallbacks(NewCallback(CallbackFuncs{PreProcess: p}))
	}
}

// AddMidProcesses registers functions run after every increment of output.
func (cs *Callbacks) AddMidProcesses(processes ...Process) {
	for _, p := range processes {
		cs.AddCallbacks(NewCallback(CallbackFuncs{MidProcess: p}))
	}
}

// AddEndProcesses registers functions run once the output is complete.
func (cs *Callbacks) AddEndProcesses(processes ...Process) {
	for _, p := range processes {
		cs.AddCallbacks(NewCallback(CallbackFuncs{EndProcess: p}))
	}
}

// CallbackCount returns the number of registrations.
func (cs *Callbacks) CallbackCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.sources)
}

func (cs *Callbacks) resolve() callbackSet {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(callbackSet, len(cs.sources))
	for i, s := range cs.sources {
		out[i] = s.resolve()
	}
	return out
}

// callbackSet is the list of callbacks resolved for one invocation.
type callbackSet []Callback

func (s callbackSet) enter(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	var err error
	for _, cb := range s {
		if c, cfg, err = cb.OnEnter(ctx, r, c, cfg); err != nil {
			return c, cfg, err
		}
	}
	return c, cfg, nil
}

func (s callbackSet) leave(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	var err error
	for _, cb := range slices.Backward(s) {
		if c, cfg, err = cb.OnLeave(ctx, r, c, cfg); err != nil {
			return c, cfg, err
		}
	}
	return c, cfg, nil
}

func (s callbackSet) pre(ctx context.Context, c *Context) error {
	for _, cb := range s {
		if err := cb.PreProcess(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s callbackSet) mid(ctx context.Context, c *Context) error {
	for _, cb := range s {
		if err := cb.MidProcess(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s callbackSet) end(ctx context.Context, c *Context) error {
	for _, cb := range slices.Backward(s) {
		if err := cb.EndProcess(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
