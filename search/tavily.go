package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/internal/retry"
)

// TavilyConfig configures the Tavily search client.
type TavilyConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultTavilyConfig returns search client defaults.
func DefaultTavilyConfig() TavilyConfig {
	return TavilyConfig{
		BaseURL: "https://api.tavily.com",
		Timeout: 30 * time.Second,
	}
}

// TavilyClient queries the Tavily web-search API.
type TavilyClient struct {
	cfg     TavilyConfig
	http    *resty.Client
	retryer *retry.Retryer
	logger  *zap.Logger
}

var _ Client = (*TavilyClient)(nil)

// NewTavilyClient creates a search client.
func NewTavilyClient(cfg TavilyConfig, logger *zap.Logger) *TavilyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "search"))
	return &TavilyClient{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		retryer: retry.New(retry.DefaultPolicy(), logger),
		logger:  logger,
	}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search implements Client.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if maxResults <= 0 {
		maxResults = 6
	}

	var parsed tavilyResponse
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(tavilyRequest{APIKey: c.cfg.APIKey, Query: query, MaxResults: maxResults}).
			Post("/search")
		if err != nil {
			return fmt.Errorf("search call: %w", err)
		}
		if resp.IsError() {
			err := fmt.Errorf("search API %d: %s", resp.StatusCode(), resp.String())
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != 429 {
				return retry.Permanent(err)
			}
			return err
		}
		parsed = tavilyResponse{}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return fmt.Errorf("parse search response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(parsed.Results)),
	)
	return parsed.Results, nil
}
