package promplate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a template file: an optional YAML frontmatter followed by the template body.
//
//	---
//	name: summarize
//	context:
//	  language: English
//	config:
//	  temperature: 0.2
//	---
//	Summarize in {{ language }}: {{ text }}
type Document struct {
	Name    string         `yaml:"name"`
	Context map[string]any `yaml:"context"`
	Config  Config         `yaml:"config"`
	Body    string         `yaml:"-"`
}

// ParseDocument splits data into frontmatter and body. Content that does not
// start with the delimiter is all body. source is only used in errors.
func ParseDocument(data []byte, source string) (*Document, error) {
	content := strings.TrimPrefix(string(data), "\xef\xbb\xbf")

	if !strings.HasPrefix(content, YAMLFrontmatterDelimiter) {
		return &Document{Body: content}, nil
	}

	afterOpening := content[len(YAMLFrontmatterDelimiter):]
	if strings.HasPrefix(afterOpening, "\r\n") {
		afterOpening = afterOpening[2:]
	} else if strings.HasPrefix(afterOpening, "\n") {
		afterOpening = afterOpening[1:]
	} else {
		// "----" or "---text" is body text, not a delimiter
		return &Document{Body: content}, nil
	}

	var fmYAML, body string
	if strings.HasPrefix(afterOpening, YAMLFrontmatterDelimiter) {
		body = afterOpening[len(YAMLFrontmatterDelimiter):]
	} else {
		closeIdx := strings.Index(afterOpening, "\n"+YAMLFrontmatterDelimiter)
		if closeIdx == -1 {
			return nil, NewDocumentError(ErrMsgFrontmatterOpen, source, nil)
		}
		fmYAML = afterOpening[:closeIdx]
		body = afterOpening[closeIdx+len("\n"+YAMLFrontmatterDelimiter):]
	}
	if strings.HasPrefix(body, "\r\n") {
		body = body[2:]
	} else if strings.HasPrefix(body, "\n") {
		body = body[1:]
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(fmYAML), &doc); err != nil {
		return nil, NewDocumentError(ErrMsgDocumentInvalid, source, err)
	}
	doc.Body = body
	return &doc, nil
}

// Template builds a Template from the document. The frontmatter context becomes
// the template defaults. opts are applied last.
func (d *Document) Template(opts ...TemplateOption) *Template {
	base := []TemplateOption{WithTemplateName(d.Name)}
	if len(d.Context) > 0 {
		base = append(base, WithDefaults(d.Context))
	}
	return NewTemplate(d.Body, append(base, opts...)...)
}

// Node builds a Node from the document. The frontmatter context becomes the
// node's partial context and config its default configuration.
func (d *Document) Node(opts ...Option) *Node {
	base := []Option{WithName(d.Name)}
	if len(d.Context) > 0 {
		base = append(base, WithPartialContext(d.Context))
	}
	if len(d.Config) > 0 {
		base = append(base, WithConfig(d.Config))
	}
	return NewNode(d.Body, append(base, opts...)...)
}

// ReadDocument reads and parses a template file. Without a name in the
// frontmatter, the document is named after the file stem.
func ReadDocument(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, NewDocumentError(ErrMsgDocumentRead, filePath, err)
	}
	doc, err := ParseDocument(data, filePath)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = stem(filepath.Base(filePath))
	}
	return doc, nil
}

// ReadTemplate reads a template file.
func ReadTemplate(filePath string, opts ...TemplateOption) (*Template, error) {
	doc, err := ReadDocument(filePath)
	if err != nil {
		return nil, err
	}
	return doc.Template(opts...), nil
}

// ReadNode reads a template file into a node.
func ReadNode(filePath string, opts ...Option) (*Node, error) {
	doc, err := ReadDocument(filePath)
	if err != nil {
		return nil, err
	}
	return doc.Node(opts...), nil
}

// FetchDocument downloads a template document over HTTP. client may be nil.
// Without a name in the frontmatter, the document is named after the last URL path segment.
func FetchDocument(ctx context.Context, client *http.Client, url string) (*Document, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewDocumentError(ErrMsgFetchFailed, url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewDocumentError(ErrMsgFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewDocumentError(ErrMsgFetchFailed, url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewDocumentError(ErrMsgFetchFailed, url, err)
	}

	doc, err := ParseDocument(data, url)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = stem(path.Base(req.URL.Path))
	}
	return doc, nil
}

// FetchTemplate downloads a template.
func FetchTemplate(ctx context.Context, client *http.Client, url string, opts ...TemplateOption) (*Template, error) {
	doc, err := FetchDocument(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return doc.Template(opts...), nil
}

func stem(base string) string {
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
