package promplate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summarizeDoc = `---
name: summarize
context:
  language: English
config:
  temperature: 0.2
---
Summarize in {{ language }}: {{ text }}`

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Document
		wantErr bool
	}{
		{
			name: "frontmatter and body",
			data: summarizeDoc,
			want: Document{
				Name:    "summarize",
				Context: map[string]any{"language": "English"},
				Config:  Config{"temperature": 0.2},
				Body:    "Summarize in {{ language }}: {{ text }}",
			},
		},
		{
			name: "no frontmatter",
			data: "just {{ text }}\n",
			want: Document{Body: "just {{ text }}\n"},
		},
		{
			name: "empty frontmatter",
			data: "---\n---\nbody",
			want: Document{Body: "body"},
		},
		{
			name: "crlf delimiters",
			data: "---\r\nname: win\r\n---\r\nbody",
			want: Document{Name: "win", Body: "body"},
		},
		{
			name: "horizontal rule is body",
			data: "-----\ntext",
			want: Document{Body: "-----\ntext"},
		},
		{
			name:    "unclosed frontmatter",
			data:    "---\nname: x\nbody",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			data:    "---\nname: [x\n---\nbody",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.data), "test")
			if tt.wantErr {
				require.Error(t, err)
				code, _ := ErrorCode(err)
				assert.Equal(t, ErrCodeDocument, code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *doc)
		})
	}
}

func TestReadTemplate(t *testing.T) {
	dir := t.TempDir()
	withFrontmatter := filepath.Join(dir, "ignored.tmpl")
	plain := filepath.Join(dir, "greet.tmpl")
	require.NoError(t, os.WriteFile(withFrontmatter, []byte(summarizeDoc), 0o600))
	require.NoError(t, os.WriteFile(plain, []byte("Hello {{ who }}"), 0o600))

	tmpl, err := ReadTemplate(withFrontmatter)
	require.NoError(t, err)
	assert.Equal(t, "summarize", tmpl.Name())
	out, err := tmpl.Render(context.Background(), NewContext(map[string]any{"text": "t"}))
	require.NoError(t, err)
	assert.Equal(t, "Summarize in English: t", out)

	tmpl, err = ReadTemplate(plain)
	require.NoError(t, err)
	assert.Equal(t, "greet", tmpl.Name(), "named after the file stem")

	_, err = ReadTemplate(filepath.Join(dir, "missing.tmpl"))
	require.Error(t, err)
	assert.Equal(t, filepath.Join(dir, "missing.tmpl"), metadata(t, err, MetaKeyPath))
}

func TestReadNode(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.tmpl")
	require.NoError(t, os.WriteFile(file, []byte(summarizeDoc), 0o600))

	var seen Config
	spy := func(_ context.Context, prompt string, cfg Config) (string, error) {
		seen = cfg
		return prompt, nil
	}
	node, err := ReadNode(file, WithComplete(spy))
	require.NoError(t, err)
	assert.Equal(t, "summarize", node.Name())
	assert.Equal(t, "</summarize/>", node.String())

	out, err := node.Invoke(context.Background(), NewContext(map[string]any{"text": "t", "language": "French"}))
	require.NoError(t, err)
	assert.Equal(t, "Summarize in French: t", resultOf(t, out), "caller context shadows the document context")
	assert.Equal(t, Config{"temperature": 0.2}, seen)
}

func TestFetchTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompts/hello.tmpl" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Hi {{ name }}"))
	}))
	defer srv.Close()

	tmpl, err := FetchTemplate(context.Background(), srv.Client(), srv.URL+"/prompts/hello.tmpl")
	require.NoError(t, err)
	assert.Equal(t, "hello", tmpl.Name())
	out, err := tmpl.Render(context.Background(), NewContext(map[string]any{"name": "Ned"}))
	require.NoError(t, err)
	assert.Equal(t, "Hi Ned", out)

	_, err = FetchTemplate(context.Background(), nil, srv.URL+"/missing")
	require.Error(t, err)
	code, _ := ErrorCode(err)
	assert.Equal(t, ErrCodeDocument, code)
}
