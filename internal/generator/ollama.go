package generator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type ollamaBackend struct {
	client *api.Client
	model  string
}

// newOllamaBackend ожидает адрес вида http://host:11434, суффикс /v1 отбрасывается.
func newOllamaBackend(baseURL, model string, timeout time.Duration) (*ollamaBackend, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", base, err)
	}
	return &ollamaBackend{
		client: api.NewClient(parsed, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (b *ollamaBackend) chat(ctx context.Context, req chatRequest, onChunk func(string) error) (string, usage, error) {
	messages := []api.Message{{Role: "system", Content: req.SystemPrompt}}
	if req.UserInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: req.UserInput})
	}
	stream := req.Stream
	chatReq := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]interface{}{"num_predict": req.MaxTokens}
	}

	var (
		text strings.Builder
		u    usage
	)
	err := b.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if chunk := resp.Message.Content; chunk != "" {
			text.WriteString(chunk)
			if req.Stream && onChunk != nil {
				if err := onChunk(chunk); err != nil {
					return err
				}
			}
		}
		if resp.Done {
			u.PromptTokens = resp.PromptEvalCount
			u.CompletionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return "", usage{}, err
	}
	return text.String(), u, nil
}
