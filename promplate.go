// Package promplate builds LLM prompts from templates and runs them as nodes,
// chains and loops.
//
// Templates use a jinja-like syntax whose expressions are a small Python subset:
//
//	Hello, {{ user.name }}!
//	{% for item in items %}- {{ item }}
//	{% endfor %}
//
// # Basic Usage
//
// Compile and render a template:
//
//	tmpl := promplate.NewTemplate("Hello, {{ user }}!")
//	result, err := tmpl.Render(ctx, promplate.NewContext(map[string]any{
//	    "user": "Alice",
//	}))
//	// result: "Hello, Alice!"
//
// # Template Syntax
//
// {{ expr }} inserts the value of an expression. A multi-line {{ }} block runs
// every line but the last as a statement.
//
// {% if %} / {% elif %} / {% else %} / {% endif %}, {% for x in seq %} / {% endfor %}
// and {% while cond %} / {% endwhile %} control the output. Loops accept an else
// branch that runs when no break occurred.
//
// {# statements #} runs assignments and expression statements without output.
//
// {% name key=value %} renders another template or node found in the context
// as a component.
//
// A "-" next to a delimiter ({{- or -%}) trims the whitespace on that side.
//
// # Nodes, Chains and Loops
//
// A Node renders its template and hands the prompt to a completion capability,
// storing the text under the __result__ key of the context:
//
//	node := promplate.NewNode("Summarize: {{ text }}", promplate.WithLLM(llm))
//	out, err := node.Invoke(ctx, promplate.NewContext(map[string]any{"text": doc}))
//	fmt.Println(out.ResultString())
//
// Runnables compose with Next into a Chain that shares one context, and a Loop
// repeats its child until a callback raises a Jump:
//
//	chain := draft.Next(review).Next(publish)
//	loop := promplate.NewLoop(refine)
//	loop.AddMidProcesses(func(ctx context.Context, c *promplate.Context) error {
//	    if done(c) {
//	        return promplate.BreakOutOf(loop)
//	    }
//	    return nil
//	})
//
// Every runnable runs in four modes: Invoke, AInvoke (on a worker goroutine),
// Stream (yielding the context after each generated delta) and AStream.
//
// # Callbacks
//
// Callbacks observe and alter a run in five phases: OnEnter, PreProcess,
// MidProcess, EndProcess and OnLeave. Returning a *Jump from a process moves
// control to another runnable or out of an enclosing one.
//
// # Storage
//
// Templates can be stored with versions in memory, on the filesystem or in
// PostgreSQL, and chains can be described in YAML (see ParseChainSpec).
//
// # Thread Safety
//
// Templates compile once and may be rendered concurrently. Runnables may be
// invoked concurrently; callbacks registered on them are shared between runs
// unless added through a CallbackFactory.
package promplate
