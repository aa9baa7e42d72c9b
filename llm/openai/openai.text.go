package openai

import (
	"context"
	"errors"
	"io"
	"iter"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/promplate/go-promplate"
)

// TextClient sends prompts verbatim to the legacy text completion endpoint.
// Chat markup is not interpreted.
type TextClient struct {
	*Client
}

// Text returns the text completion flavour of c, sharing its connection.
func (c *Client) Text() *TextClient {
	return &TextClient{Client: c}
}

// Complete returns the completion of prompt.
func (t *TextClient) Complete(ctx context.Context, prompt string, cfg promplate.Config) (string, error) {
	req, err := t.textRequest(prompt, cfg)
	if err != nil {
		return "", err
	}
	t.logRequest(KindText, req.Model, false)

	resp, err := t.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", llmError(err)
	}
	if len(resp.Choices) == 0 {
		return "", llmError(errNoChoices)
	}
	return resp.Choices[0].Text, nil
}

// Generate streams the completion of prompt.
func (t *TextClient) Generate(ctx context.Context, prompt string, cfg promplate.Config) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := t.textRequest(prompt, cfg)
		if err != nil {
			yield("", err)
			return
		}
		req.Stream = true
		t.logRequest(KindText, req.Model, true)

		stream, err := t.client.CreateCompletionStream(ctx, req)
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
			if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
				continue
			}
			if !yield(resp.Choices[0].Text, nil) {
				return
			}
		}
	}
}

// AComplete runs Complete on its own goroutine.
func (t *TextClient) AComplete(ctx context.Context, prompt string, cfg promplate.Config) <-chan promplate.Outcome[string] {
	return promplate.Complete(t.Complete).Async()(ctx, prompt, cfg)
}

// AGenerate runs Generate on its own goroutine.
func (t *TextClient) AGenerate(ctx context.Context, prompt string, cfg promplate.Config) <-chan promplate.Outcome[string] {
	return promplate.Generate(t.Generate).Async()(ctx, prompt, cfg)
}

func (t *TextClient) textRequest(prompt string, cfg promplate.Config) (sdk.CompletionRequest, error) {
	opts, err := DecodeOptions(cfg)
	if err != nil {
		return sdk.CompletionRequest{}, err
	}
	return sdk.CompletionRequest{
		Model:            t.modelFor(opts, DefaultTextModel),
		Prompt:           prompt,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		MaxTokens:        opts.MaxTokens,
		Stop:             opts.Stop,
		PresencePenalty:  opts.PresencePenalty,
		FrequencyPenalty: opts.FrequencyPenalty,
		User:             opts.User,
	}, nil
}
