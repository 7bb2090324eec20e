package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/internal/retry"
)

// CLOBConfig configures the venue client.
type CLOBConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultCLOBConfig returns venue client defaults.
func DefaultCLOBConfig() CLOBConfig {
	return CLOBConfig{
		BaseURL: "https://clob.polymarket.com",
		Timeout: 30 * time.Second,
	}
}

// CLOBClient talks to a central-limit-order-book venue API. It implements
// both Client and BalanceOracle.
type CLOBClient struct {
	http    *resty.Client
	retryer *retry.Retryer
	logger  *zap.Logger
}

var (
	_ Client        = (*CLOBClient)(nil)
	_ BalanceOracle = (*CLOBClient)(nil)
)

// NewCLOBClient creates a venue client.
func NewCLOBClient(cfg CLOBConfig, logger *zap.Logger) *CLOBClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "venue"))
	return &CLOBClient{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json"),
		retryer: retry.New(retry.DefaultPolicy(), logger),
		logger:  logger,
	}
}

// PostOrder submits a limit order. Exactly one attempt: a transport error
// after the request left the process means the order state is unknown, and
// the caller surfaces that instead of resubmitting.
func (c *CLOBClient) PostOrder(ctx context.Context, order Order) (*OrderResult, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("submitting order",
		zap.String("token_id", order.TokenID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("size", order.Size.String()),
		zap.String("type", string(order.Type)),
	)

	resp, err := c.http.R().SetContext(ctx).SetBody(order).Post("/order")
	if err != nil {
		return nil, fmt.Errorf("order submission: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("venue rejected order (%d): %s", resp.StatusCode(), resp.String())
	}

	var result OrderResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	c.logger.Info("order accepted",
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
	)
	return &result, nil
}

type balanceResponse struct {
	Balances map[string]decimal.Decimal `json:"balances"`
}

// Balance reads available USDC collateral. Reads are idempotent and
// retried.
func (c *CLOBClient) Balance(ctx context.Context) (*Balance, error) {
	var parsed balanceResponse
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).Get("/balances")
		if err != nil {
			return fmt.Errorf("balance read: %w", err)
		}
		if resp.IsError() {
			err := fmt.Errorf("balance API %d: %s", resp.StatusCode(), resp.String())
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != 429 {
				return retry.Permanent(err)
			}
			return err
		}
		parsed = balanceResponse{}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return fmt.Errorf("parse balance response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	usdc, ok := parsed.Balances["USDC"]
	if !ok {
		return nil, fmt.Errorf("balance response has no USDC entry")
	}
	return &Balance{Collateral: usdc}, nil
}
