package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAI answers bot prompts through the chat completions stream.
type OpenAI struct {
	client *openai.Client
	model  string
	system string
}

func NewOpenAI(apiKey, model, system string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model, system: system}
}

func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		msgs := []openai.ChatCompletionMessage{}
		if o.system != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

		stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:     o.model,
			Messages:  msgs,
			MaxTokens: 256,
			Stream:    true,
		})
		if err != nil {
			errs <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return out, errs
}
