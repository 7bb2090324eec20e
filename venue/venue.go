// Package venue adapts the trading venue: collateral balance reads and
// limit-order submission. Submission is not idempotent and is never retried;
// the trade gate checkpoints before calling PostOrder so an unconfirmed
// attempt is detectable on resume.
package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side of an order. Only BUY is produced by the pipeline: there are no
// existing positions to sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType of a submitted order.
type OrderType string

const (
	// OrderTypeGTC keeps the order on the book until filled or cancelled.
	OrderTypeGTC OrderType = "GTC"
	OrderTypeGTD OrderType = "GTD"
	OrderTypeIOC OrderType = "IOC"
)

// Order is a limit order for one outcome token. Price is in (0,1]; Size is
// the USDC notional committed at that price.
type Order struct {
	TokenID    string          `json:"token_id"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Side       Side            `json:"side"`
	Expiration string          `json:"expiration,omitempty"`
	Type       OrderType       `json:"order_type"`
}

// Validate checks order invariants before submission.
func (o *Order) Validate() error {
	if o.TokenID == "" {
		return fmt.Errorf("order: missing token ID")
	}
	if !o.Price.IsPositive() || o.Price.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("order: price %s outside (0,1]", o.Price)
	}
	if !o.Size.IsPositive() {
		return fmt.Errorf("order: size %s not positive", o.Size)
	}
	switch o.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	switch o.Type {
	case OrderTypeGTC, OrderTypeGTD, OrderTypeIOC:
	default:
		return fmt.Errorf("order: invalid type %q", o.Type)
	}
	return nil
}

// OrderResult is the venue's acknowledgement of a submitted order.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// Client submits orders. Implementations must make exactly one submission
// attempt per call; retrying a failed call is the caller's decision to make
// explicitly, and the pipeline never makes it.
type Client interface {
	PostOrder(ctx context.Context, order Order) (*OrderResult, error)
}

// Balance is the account's available collateral.
type Balance struct {
	Collateral decimal.Decimal `json:"collateral"` // USDC
}

// BalanceOracle reads the live collateral balance. The pipeline fetches it
// fresh each run and never substitutes a default on failure.
type BalanceOracle interface {
	Balance(ctx context.Context) (*Balance, error)
}
