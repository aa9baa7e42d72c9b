package promplate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const essaySpec = `
name: essay
context:
  lang: English
config:
  temperature: 0.5
steps:
  - name: draft
    template: "Write about {{ topic }} in {{ lang }}"
  - chain:
      name: polish
      steps:
        - template: "{{ __result__ }}!"
  - loop:
      name: refine
      max_iterations: 3
      steps:
        - template: "{{ __result__ }}+"
`

func TestParseChainSpec(t *testing.T) {
	spec, err := ParseChainSpec([]byte(essaySpec))
	require.NoError(t, err)

	assert.Equal(t, "essay", spec.Name)
	assert.Equal(t, map[string]any{"lang": "English"}, spec.Context)
	assert.Equal(t, Config{"temperature": 0.5}, spec.Config)
	require.Len(t, spec.Steps, 3)
	assert.Equal(t, "draft", spec.Steps[0].Name)
	require.NotNil(t, spec.Steps[1].Chain)
	assert.Equal(t, "polish", spec.Steps[1].Chain.Name)
	require.NotNil(t, spec.Steps[2].Loop)
	assert.Equal(t, 3, spec.Steps[2].Loop.MaxIterations)
}

func TestParseChainSpec_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		msg   string
		field string
	}{
		{
			name: "malformed yaml",
			yaml: "steps: [",
			msg:  ErrMsgChainSpecInvalid,
		},
		{
			name: "unknown key",
			yaml: "stepz: []",
			msg:  ErrMsgChainSpecInvalid,
		},
		{
			name:  "no steps",
			yaml:  "name: empty",
			msg:   ErrMsgChainSpecNoSteps,
			field: "steps",
		},
		{
			name:  "step without kind",
			yaml:  "steps:\n  - name: nothing",
			msg:   ErrMsgChainSpecKind,
			field: "steps[0]",
		},
		{
			name:  "step with two kinds",
			yaml:  "steps:\n  - template: a\n    ref: b",
			msg:   ErrMsgChainSpecKind,
			field: "steps[0]",
		},
		{
			name:  "loop with two steps",
			yaml:  "steps:\n  - loop:\n      steps:\n        - template: a\n        - template: b",
			msg:   ErrMsgChainSpecLoopSize,
			field: "steps[0].loop.steps",
		},
		{
			name:  "until on a chain",
			yaml:  "until: done\nsteps:\n  - template: a",
			msg:   ErrMsgChainSpecLoopOnly,
			field: "until",
		},
		{
			name:  "nested error path",
			yaml:  "steps:\n  - template: a\n  - chain:\n      steps:\n        - {}",
			msg:   ErrMsgChainSpecKind,
			field: "steps[1].chain.steps[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChainSpec([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			code, _ := ErrorCode(err)
			assert.Equal(t, ErrCodeChainSpec, code)
			if tt.field != "" {
				assert.Equal(t, tt.field, metadata(t, err, MetaKeyField))
			}
		})
	}
}

func TestDecodeChainSpec(t *testing.T) {
	spec, err := DecodeChainSpec(map[string]any{
		"name": "decoded",
		"steps": []any{
			map[string]any{"template": "x", "config": map[string]any{"model": "m"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Config{"model": "m"}, spec.Steps[0].Config)
}

func TestBuildChain(t *testing.T) {
	spec, err := ParseChainSpec([]byte(essaySpec))
	require.NoError(t, err)

	var seen []Config
	record := func(_ context.Context, prompt string, cfg Config) (string, error) {
		seen = append(seen, cfg)
		return prompt, nil
	}

	chain, err := BuildChain(context.Background(), spec, WithNodeOptions(WithComplete(record)))
	require.NoError(t, err)
	assert.Equal(t, "essay", chain.Name())
	assert.Equal(t, 3, chain.Len())
	assert.Equal(t, "</draft/> + </node/> + loop(</node/>)", chain.String())

	out, err := chain.Invoke(context.Background(), NewContext(map[string]any{"topic": "Go"}))
	require.NoError(t, err)
	assert.Equal(t, "Write about Go in English!+++", resultOf(t, out))

	require.Len(t, seen, 5)
	for _, cfg := range seen {
		assert.Equal(t, 0.5, cfg["temperature"], "chain config reaches every node")
	}
}

func TestBuildChain_LoopUntil(t *testing.T) {
	spec, err := ParseChainSpec([]byte(`
steps:
  - template: "0"
  - loop:
      until: "int(__result__) >= 4"
      steps:
        - template: "{{ int(__result__) + 1 }}"
`))
	require.NoError(t, err)

	chain, err := BuildChain(context.Background(), spec)
	require.NoError(t, err)

	out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "4", resultOf(t, out))

	out, err = chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "4", resultOf(t, out))
}

func TestBuildChain_MaxIterationsPerInvocation(t *testing.T) {
	spec, err := ParseChainSpec([]byte(`
steps:
  - template: "0"
  - loop:
      max_iterations: 2
      steps:
        - template: "{{ int(__result__) + 1 }}"
`))
	require.NoError(t, err)

	chain, err := BuildChain(context.Background(), spec)
	require.NoError(t, err)

	for range 2 {
		out, err := chain.Invoke(context.Background(), nil, RunWithComplete(asIs))
		require.NoError(t, err)
		assert.Equal(t, "2", resultOf(t, out))
	}
}

func TestBuildChain_InvalidUntil(t *testing.T) {
	spec := &ChainSpec{Steps: []StepSpec{{
		Loop: &ChainSpec{Until: "(", Steps: []StepSpec{{Template: "x"}}},
	}}}
	_, err := BuildChain(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgChainSpecUntil)
	assert.Equal(t, "steps[0].loop.until", metadata(t, err, MetaKeyField))
}

func TestBuildChain_References(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, &StoredTemplate{
		Name:    "greet",
		Source:  "Hi {{ who }}{{ punct }}",
		Context: map[string]any{"who": "stored", "punct": "."},
	}))
	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "greet", Source: "Hello {{ who }}"}))

	spec, err := ParseChainSpec([]byte(`
steps:
  - ref: greet
    version: 1
    context:
      who: step
`))
	require.NoError(t, err)

	_, err = BuildChain(ctx, spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgChainSpecNoStore)

	chain, err := BuildChain(ctx, spec, WithStorage(storage))
	require.NoError(t, err)
	out, err := chain.Invoke(ctx, nil, RunWithComplete(asIs))
	require.NoError(t, err)
	assert.Equal(t, "Hi step.", resultOf(t, out), "step context overrides the stored one key by key")

	latest, err := BuildChain(ctx, &ChainSpec{Steps: []StepSpec{{Ref: "greet"}}}, WithStorage(storage))
	require.NoError(t, err)
	assert.Equal(t, "</greet/>", latest.String())

	_, err = BuildChain(ctx, &ChainSpec{Steps: []StepSpec{{Ref: "missing"}}}, WithStorage(storage))
	assert.True(t, IsNotFound(err))
}

func TestReadChainSpec(t *testing.T) {
	file := filepath.Join(t.TempDir(), "essay.yaml")
	require.NoError(t, os.WriteFile(file, []byte(essaySpec), 0o600))

	spec, err := ReadChainSpec(file)
	require.NoError(t, err)
	assert.Equal(t, "essay", spec.Name)

	_, err = ReadChainSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgChainSpecRead)
}
