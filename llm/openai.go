package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/polymind-ai/polymind/internal/retry"
)

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE"`
	// RequestsPerSecond bounds the outbound call rate across the whole
	// pipeline, including concurrent interview branches.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// DefaultOpenAIConfig returns client defaults.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o",
		Timeout:           120 * time.Second,
		MaxTokens:         2048,
		Temperature:       0.7,
		RequestsPerSecond: 2,
	}
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	cfg     OpenAIConfig
	http    *resty.Client
	limiter *rate.Limiter
	retryer *retry.Retryer
	logger  *zap.Logger
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a rate-limited completion client.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &OpenAIClient{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json"),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retryer: retry.New(retry.DefaultPolicy(), logger),
		logger:  logger,
	}
}

type chatCompletionRequest struct {
	Model          string       `json:"model"`
	Messages       []Message    `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	Temperature    float32      `json:"temperature,omitempty"`
	ResponseFormat *respFormat  `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements Client. Calls are rate limited, then retried with
// backoff on transport and 5xx/429 failures.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("completion request has no messages")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.Model == "" {
		body.Model = c.cfg.Model
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.cfg.MaxTokens
	}
	if body.Temperature == 0 {
		body.Temperature = c.cfg.Temperature
	}
	if req.JSONOnly {
		body.ResponseFormat = &respFormat{Type: "json_object"}
	}

	started := time.Now()
	var parsed chatCompletionResponse
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/chat/completions")
		if err != nil {
			return fmt.Errorf("completion call: %w", err)
		}
		if resp.IsError() {
			err := fmt.Errorf("completion API %d: %s", resp.StatusCode(), resp.String())
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != 429 {
				return retry.Permanent(err)
			}
			return err
		}
		parsed = chatCompletionResponse{}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return fmt.Errorf("parse completion response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("completion API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	c.logger.Debug("completion",
		zap.String("model", parsed.Model),
		zap.Int("input_tokens", parsed.Usage.PromptTokens),
		zap.Int("output_tokens", parsed.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(started)),
	)

	return &Completion{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
