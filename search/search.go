// Package search adapts a web-search service and formats results as
// evidence documents for interview answers.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is one web-search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client is the web-search surface the research pipeline depends on.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// FormatEvidence renders results as source-tagged documents. The href tag
// marks where each document's content starts; answer prompts cite documents
// by position and list the hrefs as sources.
func FormatEvidence(results []Result) string {
	docs := make([]string, 0, len(results))
	for _, r := range results {
		docs = append(docs, fmt.Sprintf("<Document href=%q/>\n%s\n</Document>", r.URL, r.Content))
	}
	return strings.Join(docs, "\n\n---\n\n")
}
