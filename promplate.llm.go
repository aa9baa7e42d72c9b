package promplate

import (
	"context"
	"iter"
	"maps"
)

// Config is the generation configuration handed to a completion capability
// (model, temperature, ...). Call-site values override a runnable's defaults.
type Config map[string]any

// Merge returns a new Config holding c overridden by each of others in turn.
func (c Config) Merge(others ...Config) Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}

// Outcome is a value or an error delivered over a channel by the async family.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Await receives one outcome from ch, giving up when ctx is done.
// A closed channel yields the zero value and no error.
func Await[T any](ctx context.Context, ch <-chan Outcome[T]) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case out, ok := <-ch:
		if !ok {
			return zero, nil
		}
		return out.Value, out.Err
	}
}

// Complete turns a prompt into generated text.
type Complete func(ctx context.Context, prompt string, cfg Config) (string, error)

// Generate turns a prompt into a sequence of text deltas.
type Generate func(ctx context.Context, prompt string, cfg Config) iter.Seq2[string, error]

// AsyncComplete delivers the completion on a channel.
type AsyncComplete func(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string]

// AsyncGenerate delivers deltas on a channel that is closed when generation ends.
type AsyncGenerate func(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string]

// LLM is a provider offering both completion and generation.
type LLM interface {
	Complete(ctx context.Context, prompt string, cfg Config) (string, error)
	Generate(ctx context.Context, prompt string, cfg Config) iter.Seq2[string, error]
}

// AsyncLLM is a provider with native async entry points.
type AsyncLLM interface {
	AComplete(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string]
	AGenerate(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string]
}

// capabilities is the set of completion functions a runnable may use.
type capabilities struct {
	complete      Complete
	generate      Generate
	asyncComplete AsyncComplete
	asyncGenerate AsyncGenerate
}

func capabilitiesOf(llm any) capabilities {
	var c capabilities
	if l, ok := llm.(LLM); ok {
		c.complete = l.Complete
		c.generate = l.Generate
	}
	if l, ok := llm.(AsyncLLM); ok {
		c.asyncComplete = l.AComplete
		c.asyncGenerate = l.AGenerate
	}
	return c
}

func (c capabilities) hasCompletion() bool {
	return c.complete != nil || c.asyncComplete != nil
}

func (c capabilities) hasGeneration() bool {
	return c.generate != nil || c.asyncGenerate != nil
}

// or resolves c (bound to a runnable) against fallback (supplied by the caller or a parent).
// The bound side wins per capability kind, both flavours together.
func (c capabilities) or(fallback capabilities) capabilities {
	out := fallback
	if c.hasCompletion() {
		out.complete, out.asyncComplete = c.complete, c.asyncComplete
	}
	if c.hasGeneration() {
		out.generate, out.asyncGenerate = c.generate, c.asyncGenerate
	}
	return out
}

// completeFor picks the completion function for the mode, adapting a sync one
// to the async family and the other way round.
func (c capabilities) completeFor(async bool) Complete {
	switch {
	case async && c.asyncComplete != nil:
		return c.asyncComplete.blocking()
	case c.complete != nil:
		return c.complete
	case c.asyncComplete != nil:
		return c.asyncComplete.blocking()
	}
	return nil
}

func (c capabilities) generateFor(async bool) Generate {
	switch {
	case async && c.asyncGenerate != nil:
		return c.asyncGenerate.sequence()
	case c.generate != nil:
		return c.generate
	case c.asyncGenerate != nil:
		return c.asyncGenerate.sequence()
	}
	return nil
}

func (f AsyncComplete) blocking() Complete {
	return func(ctx context.Context, prompt string, cfg Config) (string, error) {
		return Await(ctx, f(ctx, prompt, cfg))
	}
}

func (f AsyncGenerate) sequence() Generate {
	return func(ctx context.Context, prompt string, cfg Config) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			ch := f(ctx, prompt, cfg)
			for {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case out, ok := <-ch:
					if !ok {
						return
					}
					if !yield(out.Value, out.Err) || out.Err != nil {
						return
					}
				}
			}
		}
	}
}

// Async adapts a Complete to the async family, running it on its own goroutine.
func (f Complete) Async() AsyncComplete {
	return func(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string] {
		ch := make(chan Outcome[string], 1)
		go func() {
			defer close(ch)
			text, err := f(ctx, prompt, cfg)
			ch <- Outcome[string]{Value: text, Err: err}
		}()
		return ch
	}
}

// Async adapts a Generate to the async family, pumping deltas from its own goroutine.
func (f Generate) Async() AsyncGenerate {
	return func(ctx context.Context, prompt string, cfg Config) <-chan Outcome[string] {
		ch := make(chan Outcome[string])
		go func() {
			defer close(ch)
			for delta, err := range f(ctx, prompt, cfg) {
				select {
				case <-ctx.Done():
					return
				case ch <- Outcome[string]{Value: delta, Err: err}:
				}
				if err != nil {
					return
				}
			}
		}()
		return ch
	}
}

// Deltas wraps fixed deltas as a Generate result, handy for tests and adapters.
func Deltas(deltas ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}
