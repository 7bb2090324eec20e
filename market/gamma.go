package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/internal/retry"
)

// Provider serves market data for the pipeline.
type Provider interface {
	// Scan returns candidate markets that pass the scanner filters.
	Scan(ctx context.Context) ([]Market, error)
	// Get fetches a single market by condition ID.
	Get(ctx context.Context, conditionID string) (*Market, error)
}

// ScanConfig tunes the market scanner.
type ScanConfig struct {
	Limit        int             `yaml:"limit" env:"LIMIT"`
	MinLiquidity decimal.Decimal `yaml:"min_liquidity" env:"MIN_LIQUIDITY"`
	MinVolume    decimal.Decimal `yaml:"min_volume" env:"MIN_VOLUME"`
	// MinTimeToClose excludes markets resolving too soon for research to
	// matter.
	MinTimeToClose time.Duration `yaml:"min_time_to_close" env:"MIN_TIME_TO_CLOSE"`
	// BandLow/BandHigh bound the uncertain-odds band. Both outcome prices
	// must lie strictly inside (BandLow, BandHigh) for a market to qualify:
	// near-certain markets leave no edge worth researching.
	BandLow  decimal.Decimal `yaml:"band_low" env:"BAND_LOW"`
	BandHigh decimal.Decimal `yaml:"band_high" env:"BAND_HIGH"`
}

// DefaultScanConfig returns the scanner defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Limit:          50,
		MinLiquidity:   decimal.NewFromInt(1000),
		MinVolume:      decimal.NewFromInt(10000),
		MinTimeToClose: 24 * time.Hour,
		BandLow:        decimal.NewFromFloat(0.10),
		BandHigh:       decimal.NewFromFloat(0.90),
	}
}

// GammaClient fetches markets from a Gamma-style REST API.
type GammaClient struct {
	http    *resty.Client
	retryer *retry.Retryer
	scan    ScanConfig
	logger  *zap.Logger
	now     func() time.Time
}

// GammaOption configures a GammaClient.
type GammaOption func(*GammaClient)

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(p *retry.Policy) GammaOption {
	return func(c *GammaClient) {
		c.retryer = retry.New(p, c.logger)
	}
}

// WithClock overrides the scanner clock, for tests.
func WithClock(now func() time.Time) GammaOption {
	return func(c *GammaClient) { c.now = now }
}

// NewGammaClient creates a market-data client against baseURL.
func NewGammaClient(baseURL string, scan ScanConfig, logger *zap.Logger, opts ...GammaOption) *GammaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "market"))
	c := &GammaClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
		retryer: retry.New(retry.DefaultPolicy(), logger),
		scan:    scan,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan fetches active high-volume markets and filters them down to tradable
// binary markets whose odds sit inside the uncertain band. Records that fail
// validation are skipped with a warning, never fatal.
func (c *GammaClient) Scan(ctx context.Context) ([]Market, error) {
	minEnd := c.now().UTC().Add(c.scan.MinTimeToClose)
	params := map[string]string{
		"limit":             strconv.Itoa(c.scan.Limit),
		"offset":            "0",
		"order":             "volume",
		"ascending":         "false",
		"active":            "true",
		"closed":            "false",
		"liquidity_num_min": c.scan.MinLiquidity.String(),
		"volume_num_min":    c.scan.MinVolume.String(),
		"end_date_min":      minEnd.Format(time.RFC3339),
	}

	var raw []json.RawMessage
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get("/markets")
		if err != nil {
			return fmt.Errorf("fetch markets: %w", err)
		}
		if resp.IsError() {
			return httpError(resp)
		}
		raw = raw[:0]
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return fmt.Errorf("parse markets response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("markets received", zap.Int("count", len(raw)))

	out := make([]Market, 0, len(raw))
	for _, r := range raw {
		var m Market
		if err := json.Unmarshal(r, &m); err != nil {
			c.logger.Warn("skipping undecodable market", zap.Error(err))
			continue
		}
		if err := m.Validate(); err != nil {
			c.logger.Warn("skipping invalid market", zap.Error(err))
			continue
		}
		if !m.Tradable() {
			c.logger.Debug("skipping non-tradable market", zap.String("condition_id", m.ConditionID))
			continue
		}
		if !c.insideBand(m.OutcomePrices) {
			c.logger.Debug("skipping market outside uncertain band",
				zap.String("condition_id", m.ConditionID),
				zap.String("yes", m.OutcomePrices[0].String()),
				zap.String("no", m.OutcomePrices[1].String()),
			)
			continue
		}
		out = append(out, m)
	}
	c.logger.Info("market scan completed", zap.Int("candidates", len(out)))
	return out, nil
}

// Get fetches a single market by condition ID.
func (c *GammaClient) Get(ctx context.Context, conditionID string) (*Market, error) {
	var m Market
	err := c.retryer.Do(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).Get("/markets/" + conditionID)
		if err != nil {
			return fmt.Errorf("fetch market %s: %w", conditionID, err)
		}
		if resp.StatusCode() == 404 {
			return retry.Permanent(fmt.Errorf("market %s not found", conditionID))
		}
		if resp.IsError() {
			return httpError(resp)
		}
		if err := json.Unmarshal(resp.Body(), &m); err != nil {
			return fmt.Errorf("parse market %s: %w", conditionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// insideBand reports whether both outcome prices lie strictly inside the
// uncertain band.
func (c *GammaClient) insideBand(prices PriceList) bool {
	for _, p := range prices {
		if !p.GreaterThan(c.scan.BandLow) || !p.LessThan(c.scan.BandHigh) {
			return false
		}
	}
	return true
}

func httpError(resp *resty.Response) error {
	err := fmt.Errorf("market API %d: %s", resp.StatusCode(), resp.String())
	if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != 429 {
		return retry.Permanent(err)
	}
	return err
}
