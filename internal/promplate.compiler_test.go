package internal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapScope map[string]any

func (m mapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// programHost renders components that are template source strings or compiled programs
type programHost struct{}

func (programHost) RenderComponent(ctx context.Context, name string, component any, vars map[string]any, async bool) (string, error) {
	prog, ok := component.(*Program)
	if !ok {
		src, isStr := component.(string)
		if !isStr {
			return "", NewEvalError(ErrKindAttribute, "not a component: "+name)
		}
		var err error
		if prog, err = Compile(src, CompilerConfig{Name: name, Async: async}); err != nil {
			return "", err
		}
	}
	return prog.Run(ctx, Env{Globals: mapScope(vars), Host: programHost{}})
}

type awaitable struct{ value any }

func (a awaitable) Await(context.Context) (any, error) { return a.value, nil }

func render(t *testing.T, src string, vars map[string]any) (string, error) {
	t.Helper()
	prog, err := Compile(src, CompilerConfig{Name: "test", Logger: zap.NewNop()})
	if err != nil {
		return "", err
	}
	return prog.Run(context.Background(), Env{Globals: mapScope(vars), Host: programHost{}})
}

func TestProgram_Render(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		vars     map[string]any
		expected string
	}{
		{"variables", "Hello, {{name}}!", map[string]any{"name": "Ned"}, "Hello, Ned!"},
		{"attribute", "{{obj.a}}", map[string]any{"obj": map[string]any{"a": "Ay"}}, "Ay"},
		{"nested attribute", "{{o.obj.a}} {{o.b}}", map[string]any{"o": map[string]any{"obj": map[string]any{"a": "Ay"}, "b": "Bee"}}, "Ay Bee"},
		{"item access", "{{d['a']}} < {{d['b']}}", map[string]any{"d": map[string]any{"a": 17, "b": 23}}, "17 < 23"},
		{"loops", "Look: {% for n in nums %}{{n}}, {% endfor %}done.", map[string]any{"nums": []int{1, 2, 3, 4}}, "Look: 1, 2, 3, 4, done."},
		{"empty loops", "Empty: {% for n in nums %}{{n}}, {% endfor %}done.", map[string]any{"nums": []any{}}, "Empty: done."},
		{"multiline loops", "Look: \n{% for n in nums %}\n{{n}}, \n{% endfor %}done.", map[string]any{"nums": []any{1, 2, 3}}, "Look: \n\n1, \n\n2, \n\n3, \ndone."},
		{"multiple loops", "{% for n in nums %}{{n}}{% endfor %} and {% for n in nums %}{{n}}{% endfor %}", map[string]any{"nums": []any{1, 2, 3}}, "123 and 123"},
		{"comments", "Hello, {## Name goes here: ##}{{name}}!", map[string]any{"name": "Ned"}, "Hello, Ned!"},
		{"if", "Hi, {% if ned %}NED{% endif %}{% if ben %}BEN{% endif %}!", map[string]any{"ned": 1, "ben": 0}, "Hi, NED!"},
		{"nested if", "Hi, {% if ned %}NED{% if ben %}BEN{% endif %}{% endif %}!", map[string]any{"ned": 1, "ben": 1}, "Hi, NEDBEN!"},
		{"loop if", "@{% for n in nums %}{% if n %}Z{% endif %}{{n}}{% endfor %}!", map[string]any{"nums": []any{0, 1, 2}}, "@0Z1Z2!"},
		{"if around loop", "X{%if nums%}@{% for n in nums %}{{n}}{% endfor %}{%endif%}!", map[string]any{"nums": []any{}}, "X!"},
		{"nested loops", "@{% for n in nums %}{% for a in abc %}{{a}}{{n}}{% endfor %}{% endfor %}!", map[string]any{"nums": []any{0, 1, 2}, "abc": []any{"a", "b", "c"}}, "@a0b0c0a1b1c1a2b2c2!"},
		{
			"whitespace handling",
			"@{% for n in nums %}\n {% for a in abc %}{{a}}{{n}}{% endfor %}\n{% endfor %}!\n",
			map[string]any{"nums": []any{0, 1, 2}, "abc": []any{"a", "b", "c"}},
			"@\n a0b0c0\n\n a1b1c1\n\n a2b2c2\n!\n",
		},
		{
			"whitespace trimming",
			"@{% for n in nums -%}{% for a in abc -%}{## this disappears completely -##}{{a -}}{{n -}}{% endfor %}\n{% endfor %}!\n",
			map[string]any{"nums": []any{0, 1, 2}, "abc": []any{"a", "b", "c"}},
			"@a0b0c0\na1b1c1\na2b2c2\n!\n",
		},
		{"whitespace among tags", "@{{ a }} {{- b -}} {{ c }}!", map[string]any{"a": 1, "b": 2, "c": 3}, "@123!"},
		{"trailing trim", "{{ a -}}\n", map[string]any{"a": 1}, "1"},
		{"leading trim", "\n{{- b }}", map[string]any{"b": 2}, "2"},
		{"both trims", "\n{{- c -}}\n", map[string]any{"c": 3}, "3"},
		{"non ascii", "{{where}} ollǝɥ", map[string]any{"where": "ǝɹǝɥʇ"}, "ǝɹǝɥʇ ollǝɥ"},
		{"not a tag", "{#", nil, "{#"},
		{"multi-line comment only", "{# \n # hello world \n #}", nil, ""},
		{"multi-line code", "{# \n a = 1 \n b = 2 \n #}{{ a + b }}", nil, "3"},
		{"multi-line expression", "{{ [\n1,\n2,\n] }}", nil, "[1, 2]"},
		{"statements before expression", "{{\n  total = 0\n  total += 5\n  total * 2\n}}", nil, "10"},
		{"for else", "{% for i in '123' %}{{ i }}{% else %}4{% endfor %}", nil, "1234"},
		{"for break skips else", "{% for i in '123' %}{{ i }}{% if i == '2' %}{% break %}{% endif %}{% else %}!{% endfor %}", nil, "12"},
		{"continue", "{% for i in range(5) %}{% if i % 2 %}{% continue %}{% endif %}{{ i }}{% endfor %}", nil, "024"},
		{"elif", "{% if 0 %}0{% elif 1 %}1{% else %}2{% endif %}", nil, "1"},
		{"while else", "{# n = 3 #}{% while n %}{{ n }}{# n -= 1 #}{% else %}!{% endwhile %}", nil, "321!"},
		{"tuple unpacking", "{% for k, v in d.items() %}{{ k }}={{ v }};{% endfor %}", map[string]any{"d": map[string]any{"b": 2, "a": 1}}, "a=1;b=2;"},
		{"builtins", "{{ len(xs) }} {{ sum(xs) }} {{ max(xs) }} {{ sorted(xs, reverse=True) }}", map[string]any{"xs": []any{3, 1, 2}}, "3 6 3 [3, 2, 1]"},
		{"go function", "This is {{upper(name)}}{{punct}}", map[string]any{"upper": strings.ToUpper, "name": "Ned", "punct": "!"}, "This is NED!"},
		{"function values in loop", "@{% for f in functions %}{{ f(nums) }}{% endfor %}!", map[string]any{
			"functions": []any{
				func(xs []any) any { return xs[0] },
				func(xs []any) any { return xs[1] },
				func(xs []any) any { return xs[2] },
			},
			"nums": []any{1, 2, 3},
		}, "@123!"},
		{"conditional expression", "{{ 'yes' if ok else 'no' }}", map[string]any{"ok": false}, "no"},
		{"and or return operands", "{{ name or 'anon' }}|{{ 0 and 1 }}", map[string]any{"name": ""}, "anon|0"},
		{"string methods", "{{ ', '.join(names).upper() }}", map[string]any{"names": []string{"a", "b"}}, "A, B"},
		{"list building", "{# out = [] #}{% for i in range(3) %}{# out = out + [i * i] #}{% endfor %}{{ out }}", nil, "[0, 1, 4]"},
		{"dict assignment", "{# d = {} #}{# d['k'] = 'v' #}{{ d }}", nil, "{'k': 'v'}"},
		{"float display", "{{ 1 / 2 }} {{ 2.0 }} {{ None }} {{ True }}", nil, "0.5 2.0 None True"},
		{"empty block body", "a{% if x %}{% endif %}b", map[string]any{"x": true}, "ab"},
		{"chained comparison", "{{ 1 < x < 3 }}", map[string]any{"x": 2}, "True"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render(t, tt.input, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestProgram_Components(t *testing.T) {
	got, err := render(t, "{% a b=1, c=2 %}", map[string]any{"a": "{{ b }}{{ c }}"})
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	got, err = render(t, "{% for i in '123' %}{% a %}{% endfor %}", map[string]any{"a": "{{ i }}"})
	require.NoError(t, err)
	assert.Equal(t, "123", got)

	got, err = render(t, "{# x = 5 #}{% a * %}", map[string]any{"a": "{{ x }}"})
	require.NoError(t, err)
	assert.Equal(t, "5", got)

	got, err = render(t, "{% a extra %}", map[string]any{"a": "{{ y }}", "extra": map[string]any{"y": "why"}})
	require.NoError(t, err)
	assert.Equal(t, "why", got)
}

func TestProgram_ComponentScopeComesFromHost(t *testing.T) {
	// the host decides the fallback scope; programHost only passes vars, so d is missing
	_, err := render(t, "{% a b=1, c=2 %}", map[string]any{"a": "{{ b }}{{ c }}{{ d }}", "d": 3})
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "d", evalErr.Name)
}

func TestProgram_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		vars  map[string]any
		kind  string
	}{
		{"undefined name", "Hi, {{name}}!", nil, ErrKindName},
		{"malformed if names", "Buh? {% if this or that %}hi!{% endif %}", nil, ErrKindName},
		{"unpack source missing", "Weird: {% for x, y in z %}loop{% endfor %}", nil, ErrKindName},
		{"attribute of none", "Hey {{foo.bar.baz}} there", map[string]any{"foo": nil}, ErrKindAttribute},
		{"division by zero", "{{ 1 // 0 }}", nil, ErrKindZeroDiv},
		{"integer overflow", "{{ 10 ** 20 }}", nil, ErrKindOverflow},
		{"not callable", "{{ x() }}", map[string]any{"x": 1}, ErrKindType},
		{"unpack mismatch", "{% for a, b in [[1]] %}{% endfor %}", nil, ErrKindValue},
		{"await in sync render", "{{ await x }}", map[string]any{"x": awaitable{1}}, ErrKindSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := render(t, tt.input, tt.vars)
			var evalErr *EvalError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, tt.kind, evalErr.Kind)
			assert.Equal(t, "test", evalErr.Template)
			assert.Equal(t, 1, evalErr.Line)
		})
	}
}

func TestProgram_ErrorLine(t *testing.T) {
	_, err := render(t, "line one\nline two\n{{ missing }}", nil)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, 3, evalErr.Line)
	assert.Contains(t, err.Error(), `NameError: name 'missing' is not defined (template "test", line 3)`)
}

func TestProgram_GoErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	_, err := render(t, "{{ fail() }}", map[string]any{"fail": func() (string, error) { return "", boom }})
	require.ErrorIs(t, err, boom)
}

func TestProgram_ContextInjection(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "from ctx")
	prog, err := Compile("{{ whoami() }}", CompilerConfig{Name: "ctx"})
	require.NoError(t, err)

	out, err := prog.Run(ctx, Env{Globals: mapScope{"whoami": func(ctx context.Context) string {
		return ctx.Value(key{}).(string)
	}}})
	require.NoError(t, err)
	assert.Equal(t, "from ctx", out)
}

func TestProgram_Await(t *testing.T) {
	ch := make(chan any, 1)
	ch <- 123
	prog, err := Compile("{{ await corr }}{{ await ch }}", CompilerConfig{Name: "async", Async: true})
	require.NoError(t, err)

	out, err := prog.Run(context.Background(), Env{Globals: mapScope{"corr": awaitable{123}, "ch": ch}})
	require.NoError(t, err)
	assert.Equal(t, "123123", out)
}

func TestProgram_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog, err := Compile("{% while True %}x{% endwhile %}", CompilerConfig{Name: "spin"})
	require.NoError(t, err)

	_, err = prog.Run(ctx, Env{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad names", "Wat: {{ var%&!@ }}"},
		{"bad filter", "Wat: {{ foo|filter%&!@ }}"},
		{"bad for target", "Wat: {% for @ in x %}{% endfor %}"},
		{"bogus end tag", "Huh: {% bogus %}!!{% endbogus %}??"},
		{"empty if", "Buh? {% if %}hi!{% endif %}"},
		{"empty for", "Weird: {% for %}loop{% endfor %}"},
		{"for from", "Weird: {% for x from y %}loop{% endfor %}"},
		{"unclosed", "{% if x %}X"},
		{"mismatched end", "{% if x %}X{% endfor %}"},
		{"extra end", "{% if x %}{% endif %}{% endif %}"},
		{"spaced end", "{% if x %}X{% end if %}"},
		{"end with junk", "{% if x %}X{% endif now %}"},
		{"orphan else", "{% else %}"},
		{"elif in for", "{% for x in y %}{% elif z %}{% endfor %}"},
		{"double else", "{% if x %}{% else %}{% else %}{% endif %}"},
		{"break outside loop", "{% break %}"},
		{"break in code outside loop", "{# break #}"},
		{"statement last in output", "{{\n a = 1\n b = 2\n}}"},
		{"compound statement", "{# def f(): pass #}"},
		{"empty output", "{{ }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.input, CompilerConfig{Name: "bad"})
			var compileErr *CompileError
			require.ErrorAs(t, err, &compileErr)
			assert.Equal(t, "bad", compileErr.Template)
			assert.True(t, strings.HasPrefix(err.Error(), ErrKindSyntax))
		})
	}
}

func TestCompile_ErrorPosition(t *testing.T) {
	_, err := Compile("ok\n  {% if x %}", CompilerConfig{Name: "pos"})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, KeywordIf, compileErr.Keyword)
	assert.Equal(t, 2, compileErr.Pos.Line)
	assert.Equal(t, 3, compileErr.Pos.Column)
}

func TestProgram_Script(t *testing.T) {
	prog, err := Compile("Hi {{ name }}{% for x in xs %}{{ x }}{% endfor %}{% part n=1 %}", CompilerConfig{Name: "script"})
	require.NoError(t, err)

	expected := strings.Join([]string{
		"def render():",
		"\t__parts__ = []",
		"\t__append__ = __parts__.append",
		"\t# requires: name, xs, part",
		"\t__append__('Hi ')",
		"\t__append__(name)",
		"\tfor x in xs:",
		"\t\t__append__(x)",
		"\t__append__(part.render(locals() | dict(n=1)))",
		"\treturn ''.join(map(str, __parts__))",
		"",
	}, "\n")
	assert.Equal(t, expected, prog.Script(DefaultIndent))
	assert.Equal(t, []string{"name", "xs", "part"}, prog.FreeNames)
}

func TestProgram_ScriptAsync(t *testing.T) {
	prog, err := Compile("{% part %}", CompilerConfig{Name: "script", Async: true})
	require.NoError(t, err)

	script := prog.Script("    ")
	assert.True(t, strings.HasPrefix(script, "async def render():\n"))
	assert.Contains(t, script, "    __append__(await part.arender(locals()))")
}

func TestProgram_ScriptCustomIndent(t *testing.T) {
	prog, err := Compile("", CompilerConfig{Name: "empty"})
	require.NoError(t, err)

	tabbed := prog.Script("\t")
	spaced := prog.Script(" ")
	assert.Contains(t, tabbed, "\t")
	assert.NotContains(t, spaced, "\t")
	assert.Equal(t, strings.ReplaceAll(tabbed, "\t", " "), spaced)
}

func TestCompile_FreeNamesExcludeBoundAndBuiltins(t *testing.T) {
	prog, err := Compile("{# total = 0 #}{% for i in range(n) %}{# total += i #}{% endfor %}{{ total }}{{ len(items) }}", CompilerConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "items"}, prog.FreeNames)
}

func TestProgram_LocalsDoNotLeak(t *testing.T) {
	vars := map[string]any{}
	_, err := render(t, "{# a = 1 #}{{ a }}", vars)
	require.NoError(t, err)
	assert.Empty(t, vars)
}
