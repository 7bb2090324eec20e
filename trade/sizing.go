package trade

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/polymind-ai/polymind/venue"
)

// SizingConfig is the position-sizing policy.
type SizingConfig struct {
	// SkipBelow is the conviction under which no trade happens.
	SkipBelow int `yaml:"skip_below" env:"SKIP_BELOW"`
	// HighAbove is the conviction above which the high tier applies.
	HighAbove int `yaml:"high_above" env:"HIGH_ABOVE"`
	// MidFraction / HighFraction of the available balance per tier.
	MidFraction  decimal.Decimal `yaml:"mid_fraction" env:"MID_FRACTION"`
	HighFraction decimal.Decimal `yaml:"high_fraction" env:"HIGH_FRACTION"`
	// MaxPosition caps any single trade regardless of conviction.
	MaxPosition decimal.Decimal `yaml:"max_position" env:"MAX_POSITION"`
	// MinSize is the venue's minimum order size in USDC.
	MinSize decimal.Decimal `yaml:"min_size" env:"MIN_SIZE"`
	// MinNotional is the minimum size x limit-price product.
	MinNotional decimal.Decimal `yaml:"min_notional" env:"MIN_NOTIONAL"`
	// PremiumBps lifts the limit price above the market price so the order
	// crosses the book instead of resting behind it.
	PremiumBps int64 `yaml:"premium_bps" env:"PREMIUM_BPS"`
	// ExecutionThreshold is the conviction the gate requires to submit.
	ExecutionThreshold int `yaml:"execution_threshold" env:"EXECUTION_THRESHOLD"`
}

// DefaultSizingConfig returns the sizing policy defaults.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		SkipBelow:          60,
		HighAbove:          80,
		MidFraction:        decimal.NewFromFloat(0.15),
		HighFraction:       decimal.NewFromFloat(0.25),
		MaxPosition:        decimal.NewFromInt(1000),
		MinSize:            decimal.NewFromInt(5),
		MinNotional:        decimal.NewFromInt(1),
		PremiumBps:         50,
		ExecutionThreshold: 75,
	}
}

// Sizing is the outcome of the sizing policy: either an order to submit or
// the reason nothing should be traded.
type Sizing struct {
	Order      *venue.Order `json:"order,omitempty"`
	SkipReason string       `json:"skip_reason,omitempty"`
}

// Skipped reports whether the policy decided against trading.
func (s Sizing) Skipped() bool { return s.Order == nil }

// SizeOrder applies the sizing policy. It is pure: no I/O, no clock, same
// inputs always produce the same result.
//
// Tiers: conviction below SkipBelow trades nothing; between SkipBelow and
// HighAbove inclusive commits min(MidFraction x balance, MaxPosition);
// above HighAbove commits min(HighFraction x balance, MaxPosition). A size
// under MinSize or a size x limit-price product under MinNotional skips
// rather than submitting an order the venue would reject.
func SizeOrder(cfg SizingConfig, conviction int, balance, price decimal.Decimal, tokenID string) (Sizing, error) {
	one := decimal.NewFromInt(1)
	if !price.IsPositive() || price.GreaterThan(one) {
		return Sizing{}, fmt.Errorf("sizing: price %s outside (0,1]", price)
	}
	if balance.IsNegative() {
		return Sizing{}, fmt.Errorf("sizing: negative balance %s", balance)
	}
	if tokenID == "" {
		return Sizing{}, fmt.Errorf("sizing: missing token ID")
	}

	if conviction < cfg.SkipBelow {
		return Sizing{SkipReason: fmt.Sprintf("conviction %d below %d", conviction, cfg.SkipBelow)}, nil
	}

	fraction := cfg.MidFraction
	if conviction > cfg.HighAbove {
		fraction = cfg.HighFraction
	}
	size := decimal.Min(balance.Mul(fraction), cfg.MaxPosition)

	// Limit slightly above market so the order executes with bounded
	// slippage.
	premium := one.Add(decimal.New(cfg.PremiumBps, -4))
	limit := decimal.Min(price.Mul(premium), one)

	if size.LessThan(cfg.MinSize) {
		return Sizing{SkipReason: fmt.Sprintf("size %s below venue minimum %s", size, cfg.MinSize)}, nil
	}
	if size.Mul(limit).LessThan(cfg.MinNotional) {
		return Sizing{SkipReason: fmt.Sprintf("notional %s below minimum %s", size.Mul(limit), cfg.MinNotional)}, nil
	}

	return Sizing{Order: &venue.Order{
		TokenID: tokenID,
		Price:   limit,
		Size:    size,
		Side:    venue.SideBuy,
		Type:    venue.OrderTypeGTC,
	}}, nil
}
