package openai

import (
	"context"
	"errors"
	"io"
	"iter"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/promplate/go-promplate"
)

// Complete sends prompt, parsed as chat markup, and returns the reply.
func (c *Client) Complete(ctx context.Context, prompt string, cfg promplate.Config) (string, error) {
	req, err := c.chatRequest(prompt, cfg)
	if err != nil {
		return "", err
	}
	c.logRequest(KindChat, req.Model, false)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", llmError(err)
	}
	if len(resp.Choices) == 0 {
		return "", llmError(errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate streams the reply to prompt delta by delta.
func (c *Client) Generate(ctx context.Context, prompt string, cfg promplate.Config) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := c.chatRequest(prompt, cfg)
		if err != nil {
			yield("", err)
			return
		}
		req.Stream = true
		c.logRequest(KindChat, req.Model, true)

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", llmError(err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", llmError(err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// AComplete runs Complete on its own goroutine.
func (c *Client) AComplete(ctx context.Context, prompt string, cfg promplate.Config) <-chan promplate.Outcome[string] {
	return promplate.Complete(c.Complete).Async()(ctx, prompt, cfg)
}

// AGenerate runs Generate on its own goroutine.
func (c *Client) AGenerate(ctx context.Context, prompt string, cfg promplate.Config) <-chan promplate.Outcome[string] {
	return promplate.Generate(c.Generate).Async()(ctx, prompt, cfg)
}

func (c *Client) chatRequest(prompt string, cfg promplate.Config) (sdk.ChatCompletionRequest, error) {
	opts, err := DecodeOptions(cfg)
	if err != nil {
		return sdk.ChatCompletionRequest{}, err
	}
	return sdk.ChatCompletionRequest{
		Model:            c.modelFor(opts, DefaultChatModel),
		Messages:         chatMessages(promplate.ParseChatMarkup(prompt)),
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		MaxTokens:        opts.MaxTokens,
		Stop:             opts.Stop,
		PresencePenalty:  opts.PresencePenalty,
		FrequencyPenalty: opts.FrequencyPenalty,
		Seed:             opts.Seed,
		User:             opts.User,
	}, nil
}

func chatMessages(messages []promplate.Message) []sdk.ChatCompletionMessage {
	out := make([]sdk.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = sdk.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
	}
	return out
}
