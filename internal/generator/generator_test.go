package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"novel-fork/internal/config"
	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openAIChunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

// newOpenAIServer отдаёт SSE-стрим из chunks либо обычный ответ, если stream=false.
func newOpenAIServer(t *testing.T, chunks []string, complete string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) || !assert.NotEmpty(t, body.Messages) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "system", body.Messages[0].Role)

		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`, complete)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", openAIChunk(c))
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestGenerator(t *testing.T, clientType, baseURL string) *Generator {
	t.Helper()
	g, err := New(&config.Config{
		AIClientType: clientType,
		AIBaseURL:    baseURL,
		AIModel:      "test",
		AIAPIKey:     "key",
		AITimeout:    5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestOpenAIGenerate(t *testing.T) {
	srv := newOpenAIServer(t, []string{"# Буря\n", "Гром ", "гремел."}, "")
	defer srv.Close()
	g := newTestGenerator(t, "openai", srv.URL+"/v1")

	var got []string
	text, err := g.Generate(context.Background(), interfaces.GenerationRequest{
		UserID: "u1", SystemPrompt: "system", UserInput: "next", WordCountHint: 100,
	}, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "# Буря\nГром гремел.", text)
	assert.Equal(t, []string{"# Буря\n", "Гром ", "гремел."}, got)
}

func TestOpenAIGenerateConsumerAbort(t *testing.T) {
	srv := newOpenAIServer(t, []string{"a", "b", "c"}, "")
	defer srv.Close()
	g := newTestGenerator(t, "openai", srv.URL+"/v1")

	stop := errors.New("client gone")
	calls := 0
	_, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s"}, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.NotErrorIs(t, err, models.ErrGenerationFailed)
	assert.Equal(t, 1, calls)
}

func TestOpenAIComplete(t *testing.T) {
	srv := newOpenAIServer(t, nil, `[{"label":"a"}]`)
	defer srv.Close()
	g := newTestGenerator(t, "openai", srv.URL+"/v1")

	text, err := g.Complete(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s", UserInput: "u"})
	require.NoError(t, err)
	assert.Equal(t, `[{"label":"a"}]`, text)

	summary, err := g.Summarize(context.Background(), "u1", "Длинная глава.")
	require.NoError(t, err)
	assert.Equal(t, `[{"label":"a"}]`, summary)
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()
	g := newTestGenerator(t, "openai", srv.URL+"/v1")

	_, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s"}, nil)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestOpenAIEmptyResponse(t *testing.T) {
	srv := newOpenAIServer(t, []string{}, "")
	defer srv.Close()
	g := newTestGenerator(t, "openai", srv.URL+"/v1")

	_, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s"}, nil)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
}

func newOllamaServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body struct {
			Stream *bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		if body.Stream != nil && !*body.Stream {
			joined := ""
			for _, c := range chunks {
				joined += c
			}
			_ = enc.Encode(map[string]any{"model": "test", "message": map[string]string{"role": "assistant", "content": joined}, "done": true, "prompt_eval_count": 5, "eval_count": 2})
			return
		}
		for _, c := range chunks {
			_ = enc.Encode(map[string]any{"model": "test", "message": map[string]string{"role": "assistant", "content": c}, "done": false})
		}
		_ = enc.Encode(map[string]any{"model": "test", "message": map[string]string{"role": "assistant", "content": ""}, "done": true, "done_reason": "stop", "prompt_eval_count": 5, "eval_count": 2})
	}))
}

func TestOllamaGenerate(t *testing.T) {
	srv := newOllamaServer(t, []string{"Раз ", "два."})
	defer srv.Close()
	g := newTestGenerator(t, "ollama", srv.URL+"/v1")

	var got []string
	text, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s", UserInput: "u"}, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Раз два.", text)
	assert.Equal(t, []string{"Раз ", "два."}, got)

	text, err = g.Complete(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s"})
	require.NoError(t, err)
	assert.Equal(t, "Раз два.", text)
}

func TestOllamaConsumerAbort(t *testing.T) {
	srv := newOllamaServer(t, []string{"a", "b"})
	defer srv.Close()
	g := newTestGenerator(t, "ollama", srv.URL)

	stop := errors.New("stop")
	_, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "s"}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestGeneratorValidation(t *testing.T) {
	g := &Generator{backend: nil, model: "test", logger: zap.NewNop()}

	_, err := g.Generate(context.Background(), interfaces.GenerationRequest{SystemPrompt: "  "}, nil)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	_, err = g.Summarize(context.Background(), "u", "")
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	_, err = New(&config.Config{AIClientType: "gpt-local"}, zap.NewNop())
	assert.Error(t, err)
}

func TestMaxTokensFor(t *testing.T) {
	assert.Equal(t, 0, maxTokensFor(0))
	assert.Equal(t, 3600, maxTokensFor(1200))
}

func TestTokenCounterEstimate(t *testing.T) {
	c := &TokenCounter{}
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 3, c.CountTokens("абвгдежз"))
}
