package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatEvidence(t *testing.T) {
	t.Parallel()

	got := FormatEvidence([]Result{
		{URL: "https://a.example/one", Content: "first finding"},
		{URL: "https://b.example/two", Content: "second finding"},
	})
	assert.Contains(t, got, `<Document href="https://a.example/one"/>`)
	assert.Contains(t, got, "first finding")
	assert.Contains(t, got, "\n\n---\n\n")
	assert.Contains(t, got, "</Document>")

	assert.Empty(t, FormatEvidence(nil))
}

func TestTavilyClient_Search(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key-123", req.APIKey)
		assert.Equal(t, "election polling", req.Query)
		assert.Equal(t, 6, req.MaxResults) // default fills in

		resp := tavilyResponse{Results: []Result{
			{URL: "https://x.example", Title: "T", Content: "polls moved"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultTavilyConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "key-123"
	c := NewTavilyClient(cfg, zap.NewNop())

	got, err := c.Search(context.Background(), "election polling", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "polls moved", got[0].Content)
}

func TestTavilyClient_EmptyQueryRejected(t *testing.T) {
	t.Parallel()
	c := NewTavilyClient(DefaultTavilyConfig(), zap.NewNop())
	_, err := c.Search(context.Background(), "", 5)
	assert.Error(t, err)
}
