package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promplate/go-promplate"
)

// Test data constants
const (
	testTemplateContent = "---\nname: greet\ncontext:\n  punct: \"!\"\n---\nHello, {{ user }}{{ punct }}"
	testDataJSON        = `{"user": "Alice"}`
	testDataYAML        = "user: Bob\n"
	testExpectedOutput  = "Hello, Alice!"
	testInvalidContent  = "{% for x in items %}"
	testChatContent     = "<| system |>\nBe brief.\n<| user {{ who }} |>\n{{ question }}"

	testChainSpec = `
name: greeting
steps:
  - name: hello
    template: "Hello {{ name }}"
  - name: again
    template: "<| user |>\n{{ __result__ }} again"
`
)

// setupTestData creates test files in a temp directory
func setupTestData(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	files := map[string]string{
		"template.txt": testTemplateContent,
		"data.json":    testDataJSON,
		"data.yaml":    testDataYAML,
		"invalid.txt":  testInvalidContent,
		"chat.txt":     testChatContent,
		"chain.yaml":   testChainSpec,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(content), FilePermissions))
	}
	return tmpDir
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(context.Background(), args, strings.NewReader(stdin), stdout, stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// echoServer is an OpenAI-compatible endpoint replying "echo: <last message>"
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Stream   bool   `json:"stream"`
			Prompt   string `json:"prompt"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		chat := strings.HasSuffix(r.URL.Path, "/chat/completions")
		reply := "echo: " + req.Prompt
		if chat {
			reply = "echo: " + req.Messages[len(req.Messages)-1].Content
		}

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			if chat {
				fmt.Fprintf(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, reply)
			} else {
				fmt.Fprintf(w, `{"choices":[{"index":0,"text":%q}]}`, reply)
			}
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range strings.SplitAfter(reply, " ") {
			if chat {
				fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", word)
			} else {
				fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"text\":%q}]}\n\n", word)
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ==================== run() dispatch tests ====================

func TestRun_NoArgs_ShowsHelp(t *testing.T) {
	res := runCLI(t, "")

	assert.Equal(t, ExitCodeSuccess, res.code)
	assert.Contains(t, res.stdout, CLIName)
	for _, name := range []string{CmdNameRender, CmdNameScript, CmdNameVars, CmdNameChat, CmdNameRun, CmdNameVersion} {
		assert.Contains(t, res.stdout, name)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	res := runCLI(t, "", "unknown")

	assert.Equal(t, ExitCodeUsageError, res.code)
	assert.Contains(t, res.stderr, "unknown")
}

func TestRun_UnknownFlag(t *testing.T) {
	res := runCLI(t, "", CmdNameRender, "--nope")

	assert.Equal(t, ExitCodeUsageError, res.code)
}

func TestRun_VersionCommand(t *testing.T) {
	res := runCLI(t, "", CmdNameVersion)
	assert.Equal(t, ExitCodeSuccess, res.code)
	assert.Contains(t, res.stdout, CLIName)

	res = runCLI(t, "", CmdNameVersion, "-F", OutputFormatJSON)
	require.Equal(t, ExitCodeSuccess, res.code)
	var v versionOutput
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &v))
	assert.NotEmpty(t, v.GoVersion)

	res = runCLI(t, "", CmdNameVersion, "-F", "xml")
	assert.Equal(t, ExitCodeUsageError, res.code)
}

// ==================== render tests ====================

func TestRender(t *testing.T) {
	dir := setupTestData(t)
	tmpl := filepath.Join(dir, "template.txt")

	tests := []struct {
		name     string
		stdin    string
		args     []string
		code     int
		expected string
		stderr   string
	}{
		{
			name:     "inline json",
			args:     []string{"-t", tmpl, "-d", testDataJSON},
			expected: testExpectedOutput,
		},
		{
			name:     "data file yaml",
			args:     []string{"-t", tmpl, "-f", filepath.Join(dir, "data.yaml")},
			expected: "Hello, Bob!",
		},
		{
			name:     "data overrides frontmatter context",
			args:     []string{"-t", tmpl, "-d", `{"user": "Eve", "punct": "?"}`},
			expected: "Hello, Eve?",
		},
		{
			name:     "async program",
			args:     []string{"-t", tmpl, "-d", testDataJSON, "--async"},
			expected: testExpectedOutput,
		},
		{
			name:     "template from stdin",
			stdin:    "{% for i in range(3) %}{{ i }}{% endfor %}",
			args:     []string{"-t", "-"},
			expected: "012",
		},
		{
			name:   "missing template",
			args:   []string{"-d", testDataJSON},
			code:   ExitCodeUsageError,
			stderr: ErrMsgMissingTemplate,
		},
		{
			name:   "template not found",
			args:   []string{"-t", filepath.Join(dir, "nope.txt")},
			code:   ExitCodeInputError,
			stderr: ErrMsgReadFileFailed,
		},
		{
			name:   "invalid data",
			args:   []string{"-t", tmpl, "-d", "{user: [}"},
			code:   ExitCodeInputError,
			stderr: ErrMsgInvalidData,
		},
		{
			name:   "undefined variable",
			args:   []string{"-t", tmpl},
			code:   ExitCodeError,
			stderr: ErrMsgRenderFailed,
		},
		{
			name:   "compile error",
			args:   []string{"-t", filepath.Join(dir, "invalid.txt")},
			code:   ExitCodeError,
			stderr: ErrMsgRenderFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.stdin, append([]string{CmdNameRender}, tt.args...)...)
			assert.Equal(t, tt.code, res.code, res.stderr)
			if tt.code == ExitCodeSuccess {
				assert.Equal(t, tt.expected, res.stdout)
			}
			if tt.stderr != "" {
				assert.Contains(t, res.stderr, tt.stderr)
			}
		})
	}
}

func TestRender_OutputFile(t *testing.T) {
	dir := setupTestData(t)
	out := filepath.Join(dir, "out.txt")

	res := runCLI(t, "", CmdNameRender, "-t", filepath.Join(dir, "template.txt"), "-f", filepath.Join(dir, "data.json"), "-o", out)
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	assert.Empty(t, res.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, testExpectedOutput, string(data))
}

// ==================== script and vars tests ====================

func TestScript(t *testing.T) {
	dir := setupTestData(t)

	res := runCLI(t, "", CmdNameScript, "-t", filepath.Join(dir, "template.txt"))
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	assert.NotEmpty(t, strings.TrimSpace(res.stdout))
	assert.True(t, strings.HasSuffix(res.stdout, FmtNewline))

	async := runCLI(t, "", CmdNameScript, "-t", filepath.Join(dir, "template.txt"), "--async", "--indent", "  ")
	require.Equal(t, ExitCodeSuccess, async.code, async.stderr)

	res = runCLI(t, "", CmdNameScript, "-t", filepath.Join(dir, "invalid.txt"))
	assert.Equal(t, ExitCodeError, res.code)
	assert.Contains(t, res.stderr, ErrMsgCompileFailed)
}

func TestVars(t *testing.T) {
	dir := setupTestData(t)
	chat := filepath.Join(dir, "chat.txt")

	res := runCLI(t, "", CmdNameVars, "-t", chat)
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	assert.Equal(t, "who\nquestion\n", res.stdout)

	res = runCLI(t, "", CmdNameVars, "-t", chat, "-F", OutputFormatJSON)
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &names))
	assert.Equal(t, []string{"who", "question"}, names)

	res = runCLI(t, "plain text", CmdNameVars, "-t", "-", "-F", OutputFormatJSON)
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	assert.Equal(t, "[]\n", res.stdout)

	res = runCLI(t, "", CmdNameVars, "-t", chat, "-F", "yaml")
	assert.Equal(t, ExitCodeUsageError, res.code)
	assert.Contains(t, res.stderr, ErrMsgInvalidFormat)
}

// ==================== chat tests ====================

func TestChat(t *testing.T) {
	dir := setupTestData(t)
	chat := filepath.Join(dir, "chat.txt")

	res := runCLI(t, "", CmdNameChat, "-t", chat, "-d", `{"who": "alice", "question": "Why Go?"}`)
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)

	var messages []promplate.Message
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &messages))
	assert.Equal(t, []promplate.Message{
		{Role: promplate.RoleSystem, Content: "Be brief."},
		{Role: promplate.RoleUser, Name: "alice", Content: "Why Go?"},
	}, messages)
}

func TestChat_Raw(t *testing.T) {
	res := runCLI(t, "<| assistant |>\n{{ not rendered }}", CmdNameChat, "-t", "-", "--raw")
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)

	var messages []promplate.Message
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, promplate.RoleAssistant, messages[0].Role)
	assert.Equal(t, "{{ not rendered }}", messages[0].Content)
}

// ==================== run tests ====================

func TestRunChain(t *testing.T) {
	dir := setupTestData(t)
	srv := echoServer(t)
	spec := filepath.Join(dir, "chain.yaml")
	endpoint := []string{"--base-url", srv.URL + "/v1", "--api-key", "test"}

	t.Run("invoke", func(t *testing.T) {
		args := append([]string{CmdNameRun, "-s", spec, "-d", `{"name": "Ada"}`}, endpoint...)
		res := runCLI(t, "", args...)
		require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
		assert.Equal(t, "echo: echo: Hello Ada again\n", res.stdout)
	})

	t.Run("stream", func(t *testing.T) {
		args := append([]string{CmdNameRun, "-s", spec, "-d", `{"name": "Ada"}`, "--stream"}, endpoint...)
		res := runCLI(t, "", args...)
		require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
		assert.Equal(t, "echo: Hello Ada\necho: echo: Hello Ada again\n", res.stdout)
	})

	t.Run("text endpoint", func(t *testing.T) {
		args := append([]string{CmdNameRun, "-s", "-", "--text"}, endpoint...)
		res := runCLI(t, "steps:\n  - template: \"<| user |>\\nraw\"\n", args...)
		require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
		assert.Equal(t, "echo: <| user |>\nraw\n", res.stdout)
	})

	t.Run("verbose logs to stderr", func(t *testing.T) {
		args := append([]string{CmdNameRun, "-s", spec, "-d", `{"name": "Ada"}`, "-v"}, endpoint...)
		res := runCLI(t, "", args...)
		require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
		assert.Contains(t, res.stderr, promplate.LogMsgChainBuilt)
	})

	t.Run("output file", func(t *testing.T) {
		out := filepath.Join(dir, "stream.txt")
		args := append([]string{CmdNameRun, "-s", spec, "-d", `{"name": "Ada"}`, "--stream", "-o", out}, endpoint...)
		res := runCLI(t, "", args...)
		require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
		assert.Empty(t, res.stdout)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "echo: Hello Ada\necho: echo: Hello Ada again\n", string(data))
	})
}

func TestRunChain_StorageRefs(t *testing.T) {
	dir := setupTestData(t)
	srv := echoServer(t)
	storeDir := filepath.Join(dir, "store")

	storage, err := promplate.NewFilesystemStorage(storeDir)
	require.NoError(t, err)
	require.NoError(t, storage.Save(context.Background(), &promplate.StoredTemplate{
		Name:   "shout",
		Source: "{{ word }}!",
	}))
	require.NoError(t, storage.Close())

	res := runCLI(t, "steps:\n  - ref: shout\n", CmdNameRun, "-s", "-", "-d", "word: hey",
		"--storage", storeDir, "--base-url", srv.URL+"/v1", "--api-key", "test")
	require.Equal(t, ExitCodeSuccess, res.code, res.stderr)
	assert.Equal(t, "echo: hey!\n", res.stdout)

	res = runCLI(t, "steps:\n  - ref: missing\n", CmdNameRun, "-s", "-", "--storage", storeDir)
	assert.Equal(t, ExitCodeError, res.code)
	assert.Contains(t, res.stderr, ErrMsgBuildFailed)
}

func TestRunChain_Errors(t *testing.T) {
	dir := setupTestData(t)

	tests := []struct {
		name   string
		stdin  string
		args   []string
		code   int
		stderr string
	}{
		{name: "missing spec", code: ExitCodeUsageError, stderr: ErrMsgMissingSpec},
		{name: "spec not found", args: []string{"-s", filepath.Join(dir, "nope.yaml")}, code: ExitCodeInputError, stderr: ErrMsgReadFileFailed},
		{name: "invalid spec", stdin: "stepz: []", args: []string{"-s", "-"}, code: ExitCodeInputError, stderr: ErrMsgInvalidSpec},
		{name: "endpoint down", args: []string{"-s", filepath.Join(dir, "chain.yaml"), "-d", "name: x", "--base-url", "http://127.0.0.1:1/v1"}, code: ExitCodeError, stderr: ErrMsgRunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.stdin, append([]string{CmdNameRun}, tt.args...)...)
			assert.Equal(t, tt.code, res.code)
			assert.Contains(t, res.stderr, tt.stderr)
		})
	}
}

// ==================== input helper tests ====================

func TestLoadData(t *testing.T) {
	data, err := loadData("", "")
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = loadData("null", "")
	require.NoError(t, err)
	assert.NotNil(t, data)

	data, err = loadData(`{"n": 1, "nested": {"k": "v"}}`, "")
	require.NoError(t, err)
	assert.Equal(t, 1, data["n"])
	assert.Equal(t, map[string]any{"k": "v"}, data["nested"])

	_, err = loadData("- a\n- b", "")
	assert.Error(t, err, "a list is not a context")
}
