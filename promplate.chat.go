package promplate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Role of a chat message sender.
type Role string

// Message is one entry of a chat conversation.
type Message struct {
	Role    Role   `yaml:"role" json:"role"`
	Content string `yaml:"content" json:"content"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
}

var chatMarkupRegex = regexp.MustCompile(`^` + ChatMarkupPattern)

// ParseChatMarkup splits rendered text into messages. A line such as
// "<| assistant |>" or "<| user alice |>" starts a new message; the lines after
// it, up to the next marker, are its content. Text without any marker becomes
// a single user message.
func ParseChatMarkup(text string) []Message {
	var (
		messages []Message
		current  *Message
		buffer   []string
	)
	flush := func() {
		if current != nil {
			current.Content = strings.Join(buffer, ChatMarkupLineFeed)
			messages = append(messages, *current)
			buffer = buffer[:0]
		}
	}

	for _, line := range splitLines(text) {
		if m := chatMarkupRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &Message{Role: Role(m[1]), Name: m[2]}
			continue
		}
		if current != nil {
			buffer = append(buffer, line)
		}
	}
	flush()

	if len(messages) == 0 {
		return []Message{{Role: RoleUser, Content: strings.TrimSuffix(text, ChatMarkupLineFeed)}}
	}
	return messages
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", ChatMarkupLineFeed)
	text = strings.TrimSuffix(text, ChatMarkupLineFeed)
	if text == "" {
		return nil
	}
	return strings.Split(text, ChatMarkupLineFeed)
}

// EnsureMessages accepts chat markup text or an existing message list.
func EnsureMessages(v any) ([]Message, error) {
	switch m := v.(type) {
	case string:
		return ParseChatMarkup(m), nil
	case []Message:
		return m, nil
	case Message:
		return []Message{m}, nil
	}
	return nil, NewUnsupportedContextError(v)
}

// FormatChatMarkup writes messages back as chat markup, the inverse of ParseChatMarkup.
func FormatChatMarkup(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString(ChatMarkupLineFeed)
		}
		sb.WriteString(MessageBuilder{role: m.Role, name: m.Name}.String())
		sb.WriteString(ChatMarkupLineFeed)
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// MessageBuilder creates messages of one role, optionally under a sender name.
// Builders are values; Named returns a new one.
type MessageBuilder struct {
	role Role
	name string
}

// Message builders for each role.
var (
	User      = MessageBuilder{role: RoleUser}
	Assistant = MessageBuilder{role: RoleAssistant}
	System    = MessageBuilder{role: RoleSystem}
)

// Named returns a builder whose messages carry the sender name.
func (b MessageBuilder) Named(name string) MessageBuilder {
	b.name = name
	return b
}

// Say creates a message with the given content.
func (b MessageBuilder) Say(content string) Message {
	return Message{Role: b.role, Content: content, Name: b.name}
}

// Role returns the builder's role.
func (b MessageBuilder) Role() Role { return b.role }

// String renders the builder as its chat markup marker.
func (b MessageBuilder) String() string {
	if b.name != "" {
		return fmt.Sprintf(ChatMarkupNameFmt, b.role, b.name)
	}
	return fmt.Sprintf(ChatMarkupFormat, b.role)
}

// RenderMessages renders the template and parses the result as chat markup.
func (t *Template) RenderMessages(ctx context.Context, vars *Context) ([]Message, error) {
	text, err := t.Render(ctx, vars)
	if err != nil {
		return nil, err
	}
	return ParseChatMarkup(text), nil
}

// ARenderMessages is RenderMessages with the async program.
func (t *Template) ARenderMessages(ctx context.Context, vars *Context) ([]Message, error) {
	text, err := Await(ctx, t.ARender(ctx, vars))
	if err != nil {
		return nil, err
	}
	return ParseChatMarkup(text), nil
}
