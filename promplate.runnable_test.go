package promplate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asIs completes a prompt with the prompt itself
func asIs(_ context.Context, prompt string, _ Config) (string, error) {
	return prompt, nil
}

// byChar generates the prompt one character at a time
func byChar(_ context.Context, prompt string, _ Config) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, r := range prompt {
			if !yield(string(r), nil) {
				return
			}
		}
	}
}

// whole generates the prompt as a single delta
func whole(_ context.Context, prompt string, _ Config) iter.Seq2[string, error] {
	return Deltas(prompt)
}

func resultOf(t *testing.T, c *Context) any {
	t.Helper()
	require.NotNil(t, c)
	v, err := c.Result()
	require.NoError(t, err)
	return v
}

func TestNode_Invoke(t *testing.T) {
	node := NewNode("{{ a }}")
	out, err := node.Invoke(context.Background(), NewContext(map[string]any{"a": 1}), RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "1", resultOf(t, out))
}

func TestNode_RenderWithCallback(t *testing.T) {
	node := NewNode("{{ a }}")

	_, err := node.Render(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsNameError(err))

	node.AddCallbacks(NewCallback(CallbackFuncs{
		PreProcess: func(_ context.Context, c *Context) error {
			c.Set("a", 1)
			return nil
		},
	}))
	out, err := node.Render(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	out, err = Await(context.Background(), node.ARender(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

type setB struct{ BaseCallback }

func (setB) PreProcess(_ context.Context, c *Context) error {
	c.Set("b", 2)
	return nil
}

func TestNode_EmbeddedBaseCallback(t *testing.T) {
	node := NewNode("{{ b }}", WithCallbacks(setB{}))
	out, err := node.Render(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestNode_BoundCapabilityWins(t *testing.T) {
	bound := func(context.Context, string, Config) (string, error) { return "bound", nil }
	node := NewNode("prompt", WithComplete(bound))
	out, err := node.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "bound", resultOf(t, out))
}

func TestNode_NoCompletion(t *testing.T) {
	node := NewNode("x", WithName("lonely"))
	ctx := context.Background()

	_, err := node.Invoke(ctx, nil)
	require.Error(t, err)
	assert.True(t, IsNoCompletion(err))

	_, err = Await(ctx, node.AInvoke(ctx, nil))
	assert.True(t, IsNoCompletion(err))

	var streamErr error
	for _, err := range node.Stream(ctx, nil, RunWithComplete(asIs)) {
		streamErr = err
	}
	assert.True(t, IsNoCompletion(streamErr), "streaming needs a generation capability")
}

func TestNode_PreProcessDoesNotRunWithoutCapability(t *testing.T) {
	ran := false
	node := NewNode("x")
	node.AddPreProcesses(func(context.Context, *Context) error {
		ran = true
		return nil
	})
	_, err := node.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, ran)
}

func TestNode_Config(t *testing.T) {
	var seen Config
	spy := func(_ context.Context, prompt string, cfg Config) (string, error) {
		seen = cfg
		return prompt, nil
	}
	node := NewNode("x", WithConfig(Config{"model": "small", "temperature": 0.1}))

	_, err := node.Invoke(context.Background(), nil, RunWithComplete(spy), RunWithConfig(Config{"model": "large"}))
	require.NoError(t, err)
	assert.Equal(t, Config{"model": "large", "temperature": 0.1}, seen)
	assert.Equal(t, Config{"model": "small", "temperature": 0.1}, node.Config(), "defaults are not modified")
}

func TestNode_OnEnterReplacesContextAndConfig(t *testing.T) {
	var seen Config
	spy := func(_ context.Context, prompt string, cfg Config) (string, error) {
		seen = cfg
		return prompt, nil
	}
	node := NewNode("{{ who }}", WithComplete(spy))
	node.AddCallbacks(NewCallback(CallbackFuncs{
		OnEnter: func(_ context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
			assert.Same(t, node, r)
			assert.Nil(t, c)
			return NewContext(map[string]any{"who": "entered"}), cfg.Merge(Config{"seed": 7}), nil
		},
	}))

	out, err := node.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "entered", resultOf(t, out))
	assert.Equal(t, Config{"seed": 7}, seen)
}

func TestNode_Stream(t *testing.T) {
	node := NewNode("{{ word }}", WithGenerate(byChar))
	var results []string
	var mids int
	node.AddMidProcesses(func(context.Context, *Context) error {
		mids++
		return nil
	})

	for c, err := range node.Stream(context.Background(), NewContext(map[string]any{"word": "abc"})) {
		require.NoError(t, err)
		results = append(results, c.ResultString())
	}
	assert.Equal(t, []string{"a", "ab", "abc"}, results)
	assert.Equal(t, 3, mids)
}

func TestNode_StreamStopsWhenConsumerBreaks(t *testing.T) {
	ended := false
	node := NewNode("abcdef", WithGenerate(byChar))
	node.AddEndProcesses(func(context.Context, *Context) error {
		ended = true
		return nil
	})

	count := 0
	for _, err := range node.Stream(context.Background(), nil) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
	assert.False(t, ended)
}

func TestNode_StreamError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(context.Context, string, Config) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			if yield("partial", nil) {
				yield("", boom)
			}
		}
	}
	node := NewNode("x", WithGenerate(failing))

	var errs []error
	for _, err := range node.Stream(context.Background(), nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
}

func TestNode_AInvokeUsesAsyncCapability(t *testing.T) {
	ctx := context.Background()
	async := Complete(func(context.Context, string, Config) (string, error) { return "async", nil }).Async()
	node := NewNode("x", WithComplete(asIs), WithAsyncComplete(async))

	out, err := Await(ctx, node.AInvoke(ctx, nil))
	require.NoError(t, err)
	assert.Equal(t, "async", resultOf(t, out))

	out, err = node.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", resultOf(t, out))
}

func TestNode_AInvokeFallsBackToSync(t *testing.T) {
	ctx := context.Background()
	node := NewNode("{{ n }}")
	out, err := Await(ctx, node.AInvoke(ctx, NewContext(map[string]any{"n": 5}), RunWithComplete(asIs)))
	require.NoError(t, err)
	assert.Equal(t, "5", resultOf(t, out))
}

func TestNode_AStream(t *testing.T) {
	ctx := context.Background()
	node := NewNode("xyz", WithAsyncGenerate(Generate(byChar).Async()))

	var results []string
	for out := range node.AStream(ctx, nil) {
		require.NoError(t, out.Err)
		results = append(results, out.Value.ResultString())
	}
	assert.Equal(t, []string{"x", "xy", "xyz"}, results, "each snapshot is independent of later deltas")
}

func TestNode_AStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	node := NewNode("abcdef", WithGenerate(byChar))

	ch := node.AStream(ctx, nil)
	first := <-ch
	require.NoError(t, first.Err)
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}

func TestNode_AsyncTemplateAwaits(t *testing.T) {
	ctx := context.Background()
	node := NewNode("{{ await slow }}", WithComplete(asIs))
	out, err := Await(ctx, node.AInvoke(ctx, NewContext(map[string]any{"slow": delayed{"ready"}})))
	require.NoError(t, err)
	assert.Equal(t, "ready", resultOf(t, out))
}

func TestNode_ErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("provider down")
	node := NewNode("x", WithComplete(func(context.Context, string, Config) (string, error) { return "", boom }))
	_, err := node.Invoke(context.Background(), nil)
	assert.Same(t, boom, err)
}

func TestNode_String(t *testing.T) {
	assert.Equal(t, "</greeter/>", NewNode("x", WithName("greeter")).String())
	assert.Equal(t, "greeter", NewNode("x", WithName("greeter")).Template().Name())
	assert.Equal(t, "file", NewTemplateNode(NewTemplate("y", WithTemplateName("file"))).Name())
}

func TestChain_PartialContext(t *testing.T) {
	a := NewNode("{{ a }}")
	b := NewNode("{{ __result__ }}{{ b }}")
	chain := NewChain([]Runnable{a, b}, WithPartialContext(map[string]any{"a": "A", "b": "B"}))

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "AB", resultOf(t, out))
}

func TestChain_AppendWhileRunning(t *testing.T) {
	a := NewNode("a")
	b := NewNode("{{ __result__ }}b")
	c := NewNode("{{ __result__ }}c")
	chain := a.Next(b)

	b.AddEndProcesses(func(context.Context, *Context) error {
		chain.Append(c)
		return nil
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "abc", resultOf(t, out))
	assert.Equal(t, 3, chain.Len())
}

func TestChain_Break(t *testing.T) {
	a := NewNode("0")
	b := NewNode("1")
	chain := a.Next(b)

	a.AddEndProcesses(func(context.Context, *Context) error {
		return BreakOutOf(chain)
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "0", resultOf(t, out))
}

func TestLoop_Break(t *testing.T) {
	a := NewNode("0")
	b := NewNode("{{ int(__result__) + 1 }}")
	var chain *Chain

	b.AddEndProcesses(func(_ context.Context, c *Context) error {
		n, err := strconv.Atoi(c.ResultString())
		if err != nil {
			return err
		}
		if n >= 6 {
			return BreakOutOf(chain)
		}
		return nil
	})
	chain = a.Next(NewLoop(b))

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "6", resultOf(t, out))

	out, err = Await(context.Background(), chain.AInvoke(context.Background(), nil, RunWithComplete(asIs)))
	require.NoError(t, err)
	assert.Equal(t, "6", resultOf(t, out), "async runs share the same control flow")
}

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	node := NewNode("x", WithComplete(asIs))
	node.AddEndProcesses(func(context.Context, *Context) error {
		runs++
		if runs == 3 {
			cancel()
		}
		return nil
	})

	_, err := NewLoop(node).Invoke(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runs)
}

func TestChain_ContextLayering(t *testing.T) {
	a := NewNode("{{ a }}", WithPartialContext(map[string]any{"a": 1}))
	b := NewNode("{{ b }}")
	chain := a.Next(b)
	chain.PartialContext()["a"] = 2
	chain.PartialContext()["b"] = 3

	var results []string
	for c, err := range chain.Stream(context.Background(), NewContext(map[string]any{"a": 4}), RunWithGenerate(whole)) {
		require.NoError(t, err)
		results = append(results, c.ResultString())
	}
	assert.Equal(t, []string{"4", "3"}, results)
}

func TestChain_ThreadsContextFromOnLeave(t *testing.T) {
	a := NewNode("a")
	b := NewNode("{{ x }}")
	a.AddCallbacks(NewCallback(CallbackFuncs{
		OnLeave: func(_ context.Context, _ Runnable, _ *Context, cfg Config) (*Context, Config, error) {
			return NewContext(map[string]any{"x": "from leave"}), cfg, nil
		},
	}))
	chain := a.Next(b)

	var seen []any
	chain.AddEndProcesses(func(_ context.Context, c *Context) error {
		seen = append(seen, c.GetDefault("x", nil))
		return nil
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "from leave", resultOf(t, out))
	assert.Equal(t, []any{"from leave"}, seen)
}

func TestLoop_ThreadsContextFromOnLeave(t *testing.T) {
	node := NewNode("{{ n }}")
	node.AddCallbacks(NewCallback(CallbackFuncs{
		OnLeave: func(_ context.Context, _ Runnable, c *Context, cfg Config) (*Context, Config, error) {
			n := c.GetDefault("n", 0).(int)
			return NewContext(map[string]any{"n": n + 1, ResultKey: c.ResultString()}), cfg, nil
		},
	}))
	loop := NewLoop(node)

	var results []string
	loop.AddMidProcesses(func(_ context.Context, c *Context) error {
		results = append(results, c.ResultString())
		if c.GetDefault("n", 0) == 3 {
			return BreakOutOf(loop)
		}
		return nil
	})

	_, err := loop.Invoke(context.Background(), NewContext(map[string]any{"n": 0}), RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, results)
}

func TestChain_PartialContextStaysWithItsChild(t *testing.T) {
	a := NewNode("{{ a }}", WithPartialContext(map[string]any{"a": 1}))
	b := NewNode("b")
	chain := a.Next(b)

	var visible []bool
	chain.AddMidProcesses(func(_ context.Context, c *Context) error {
		visible = append(visible, c.Has("a"))
		return nil
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "b", resultOf(t, out))
	assert.Equal(t, []bool{false, false}, visible)
	assert.False(t, out.Has("a"))
}

func TestChain_DefaultsApplyWithoutCallerContext(t *testing.T) {
	a := NewNode("{{ a }}", WithPartialContext(map[string]any{"a": 1}))
	b := NewNode("{{ b }}")
	chain := NewChain([]Runnable{a, b}, WithPartialContext(map[string]any{"a": 2, "b": 3}))

	var results []string
	for c, err := range chain.Stream(context.Background(), nil, RunWithGenerate(whole)) {
		require.NoError(t, err)
		results = append(results, c.ResultString())
	}
	assert.Equal(t, []string{"1", "3"}, results, "a node's own context sits before its chain's")
}

func TestChain_CapabilityPassesToChildren(t *testing.T) {
	upper := func(_ context.Context, prompt string, _ Config) (string, error) {
		return strings.ToUpper(prompt), nil
	}
	own := func(context.Context, string, Config) (string, error) { return "own", nil }
	a := NewNode("a")
	b := NewNode("b", WithComplete(own))
	c := NewNode("{{ __result__ }}c")
	chain := NewChain([]Runnable{a, b, c}, WithComplete(upper))

	var seen []string
	chain.AddMidProcesses(func(_ context.Context, ctx *Context) error {
		seen = append(seen, ctx.ResultString())
		return nil
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "own", "OWNC"}, seen)
	assert.Equal(t, "OWNC", resultOf(t, out))
}

func TestChain_Next(t *testing.T) {
	a, b, c, d := NewNode("a", WithName("a")), NewNode("b", WithName("b")), NewNode("c", WithName("c")), NewNode("d", WithName("d"))

	ab := a.Next(b)
	assert.Equal(t, []Runnable{a, b}, ab.Children())

	abcd := ab.Next(c.Next(d))
	assert.Equal(t, []Runnable{a, b, c, d}, abcd.Children(), "plain chains are flattened")
	assert.Equal(t, "</a/> + </b/> + </c/> + </d/>", abcd.String())

	configured := NewChain([]Runnable{c}, WithPartialContext(map[string]any{"k": 1}))
	nested := ab.Next(configured)
	assert.Len(t, nested.Children(), 3, "chains with their own state stay nested")
	assert.Same(t, configured, nested.Children()[2])

	loop := NewLoop(a)
	assert.Equal(t, "loop(</a/>)", loop.String())
	assert.Len(t, loop.Next(b).Children(), 2)
	assert.Same(t, a, loop.Child())
}

func TestJump_Into(t *testing.T) {
	rescue := NewNode("rescued {{ reason }}", WithName("rescue"))
	risky := NewNode("risky", WithName("risky"))
	after := NewNode("after", WithName("after"))
	chain := risky.Next(after)

	risky.AddEndProcesses(func(context.Context, *Context) error {
		return JumpTo(rescue).WithContext(map[string]any{"reason": "timeout"})
	})

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "after", resultOf(t, out), "a jump caught by the node lets the chain continue")
	assert.Equal(t, "timeout", out.GetDefault("reason", nil))
}

func TestJump_IntoReplacesResult(t *testing.T) {
	rescue := NewNode("rescued {{ reason }}")
	risky := NewNode("risky")
	risky.AddEndProcesses(func(context.Context, *Context) error {
		return JumpTo(rescue).WithContext(map[string]any{"reason": "timeout"})
	})

	out, err := risky.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "rescued timeout", resultOf(t, out))
}

func TestJump_BubblesThroughIntermediateFrames(t *testing.T) {
	var order []string
	leave := func(name string) Callback {
		return NewCallback(CallbackFuncs{
			OnLeave: func(_ context.Context, _ Runnable, c *Context, cfg Config) (*Context, Config, error) {
				order = append(order, name)
				return c, cfg, nil
			},
		})
	}

	inner := NewNode("inner", WithName("inner"), WithCallbacks(leave("inner")))
	middle := NewChain([]Runnable{inner, NewNode("skipped")}, WithName("middle"), WithCallbacks(leave("middle")))
	outer := NewChain([]Runnable{middle, NewNode("never")}, WithName("outer"), WithCallbacks(leave("outer")))
	target := NewNode("landed", WithName("target"))

	inner.AddEndProcesses(func(context.Context, *Context) error {
		return &Jump{Into: target, BubbleUpTo: outer}
	})

	out, err := outer.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "landed", resultOf(t, out))
	assert.Equal(t, []string{"inner", "middle", "outer"}, order)
}

func TestJump_OutsideHierarchyIsUnhandled(t *testing.T) {
	stranger := NewChain(nil, WithName("stranger"))
	node := NewNode("x")
	node.AddEndProcesses(func(context.Context, *Context) error {
		return BreakOutOf(stranger)
	})

	_, err := node.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.Error(t, err)
	jump, ok := AsJump(err)
	require.True(t, ok)
	assert.Same(t, stranger, jump.BubbleUpTo)
	assert.Contains(t, err.Error(), "stranger")
}

func TestJump_WhileStreamingContinuesInTarget(t *testing.T) {
	second := NewNode("yz")
	first := NewNode("ab")
	first.AddMidProcesses(func(_ context.Context, c *Context) error {
		if c.ResultString() == "a" {
			return JumpTo(second)
		}
		return nil
	})

	var results []string
	for c, err := range first.Stream(context.Background(), nil, RunWithGenerate(byChar)) {
		require.NoError(t, err)
		results = append(results, c.ResultString())
	}
	assert.Equal(t, []string{"y", "yz"}, results)
}

func TestRunnable_ConcurrentAInvoke(t *testing.T) {
	ctx := context.Background()
	node := NewNode("{{ i }}", WithComplete(asIs))

	chans := make([]<-chan Outcome[*Context], 10)
	for i := range chans {
		chans[i] = node.AInvoke(ctx, NewContext(map[string]any{"i": i}))
	}
	for i, ch := range chans {
		out, err := Await(ctx, ch)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), resultOf(t, out))
	}
}

type recorder struct {
	BaseCallback
	name  string
	trace *[]string
}

func (r recorder) MidProcess(context.Context, *Context) error {
	*r.trace = append(*r.trace, "mid:"+r.name)
	return nil
}

func (r recorder) EndProcess(context.Context, *Context) error {
	*r.trace = append(*r.trace, "end:"+r.name)
	return nil
}

func TestCallbacks_Order(t *testing.T) {
	var trace []string
	node := NewNode("x", WithComplete(asIs), WithCallbacks(
		recorder{name: "first", trace: &trace},
		recorder{name: "second", trace: &trace},
	))

	_, err := node.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid:first", "mid:second", "end:second", "end:first"}, trace)
}

type counter struct {
	BaseCallback
	runs int
}

func (c *counter) EndProcess(_ context.Context, ctx *Context) error {
	c.runs++
	ctx.Set("runs", c.runs)
	return nil
}

func TestCallbacks_FactoryVersusInstance(t *testing.T) {
	shared := &counter{}
	node := NewNode("{{ 1 }}", WithComplete(asIs), WithCallbacks(shared))
	fresh := NewNode("{{ 1 }}", WithComplete(asIs), WithCallbackFactories(func() Callback { return &counter{} }))

	for range 3 {
		_, err := node.Invoke(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, shared.runs)

	var out *Context
	for range 3 {
		var err error
		out, err = fresh.Invoke(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, out.GetDefault("runs", nil), "factories build a new callback per invocation")
}

func TestCallbacks_ErrorStopsRun(t *testing.T) {
	boom := errors.New("rejected")
	reached := false
	node := NewNode("x", WithComplete(func(context.Context, string, Config) (string, error) {
		reached = true
		return "", nil
	}))
	node.AddPreProcesses(func(context.Context, *Context) error { return boom })

	_, err := node.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached)
	assert.Equal(t, 1, node.CallbackCount())
}
