package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
)

// openAIBackend работает с любым OpenAI-совместимым API (OpenAI, DeepSeek, OpenRouter).
type openAIBackend struct {
	client *openaigo.Client
	model  string
}

func newOpenAIBackend(apiKey, baseURL, model string, timeout time.Duration) *openAIBackend {
	cfg := openaigo.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIBackend{client: openaigo.NewClientWithConfig(cfg), model: model}
}

func (b *openAIBackend) messages(req chatRequest) []openaigo.ChatCompletionMessage {
	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: req.SystemPrompt},
	}
	if req.UserInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: req.UserInput})
	}
	return messages
}

func (b *openAIBackend) chat(ctx context.Context, req chatRequest, onChunk func(string) error) (string, usage, error) {
	request := openaigo.ChatCompletionRequest{
		Model:     b.model,
		Messages:  b.messages(req),
		MaxTokens: req.MaxTokens,
	}
	if !req.Stream {
		resp, err := b.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return "", usage{}, err
		}
		if len(resp.Choices) == 0 {
			return "", usage{}, nil
		}
		return resp.Choices[0].Message.Content, usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}, nil
	}

	request.Stream = true
	request.StreamOptions = &openaigo.StreamOptions{IncludeUsage: true}
	stream, err := b.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return "", usage{}, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	var (
		text strings.Builder
		u    usage
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", usage{}, fmt.Errorf("read stream: %w", err)
		}
		// Usage приходит отдельным последним блоком без choices.
		if response.Usage != nil {
			u.PromptTokens = response.Usage.PromptTokens
			u.CompletionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return "", usage{}, err
			}
		}
	}
	return text.String(), u, nil
}
