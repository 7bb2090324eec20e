package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	reply string
	err   error
	last  CompletionRequest
}

func (f *fakeClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Content: f.reply}, nil
}

func TestStructured_DecodesJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	fc := &fakeClient{reply: `{"name":"alpha","score":7}`}
	got, err := Structured[payload](context.Background(), fc, CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "alpha", Score: 7}, got)
	assert.True(t, fc.last.JSONOnly, "structured call must constrain output to JSON")
}

func TestStructured_StripsCodeFences(t *testing.T) {
	t.Parallel()

	type payload struct {
		OK bool `json:"ok"`
	}
	fc := &fakeClient{reply: "```json\n{\"ok\": true}\n```"}
	got, err := Structured[payload](context.Background(), fc, CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.NoError(t, err)
	assert.True(t, got.OK)
}

func TestStructured_UndecodableReply(t *testing.T) {
	t.Parallel()

	type payload struct {
		OK bool `json:"ok"`
	}
	fc := &fakeClient{reply: "I would rather chat about the weather."}
	_, err := Structured[payload](context.Background(), fc, CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not decode")
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.NotEmpty(t, req.Messages)

		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "the answer"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.Model = "test-model"
	cfg.Timeout = 5 * time.Second
	cfg.RequestsPerSecond = 1000

	c := NewOpenAIClient(cfg, zap.NewNop())
	got, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "question"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", got.Content)
	assert.Equal(t, 12, got.InputTokens)
}

func TestOpenAIClient_JSONOnlySetsResponseFormat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"x":1}`}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 1000
	c := NewOpenAIClient(cfg, zap.NewNop())

	_, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
		JSONOnly: true,
	})
	require.NoError(t, err)
}

func TestOpenAIClient_EmptyRequestRejected(t *testing.T) {
	t.Parallel()
	c := NewOpenAIClient(DefaultOpenAIConfig(), zap.NewNop())
	_, err := c.Complete(context.Background(), CompletionRequest{})
	assert.Error(t, err)
}
