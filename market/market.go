// Package market models prediction markets and fetches them from a
// Gamma-style market-data API.
package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StringList accepts either a JSON array of strings or a JSON string that
// itself encodes such an array. The market-data API stringifies the
// outcomes and token-ID list fields.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("neither a list nor a string: %s", data)
	}
	var inner []string
	if err := json.Unmarshal([]byte(encoded), &inner); err == nil {
		*l = inner
		return nil
	}
	// Last resort for malformed payloads: strip brackets and split.
	trimmed := strings.Trim(encoded, "[]")
	if trimmed == "" {
		*l = nil
		return nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	*l = out
	return nil
}

// PriceList is a StringList whose elements parse as decimals.
type PriceList []decimal.Decimal

func (l *PriceList) UnmarshalJSON(data []byte) error {
	var raw StringList
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	out := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", s, err)
		}
		out = append(out, d)
	}
	*l = out
	return nil
}

// Market is a binary prediction market. Exactly two outcomes, two outcome
// prices, and two order-book token IDs once validated.
type Market struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Question      string     `json:"question"`
	Description   string     `json:"description"`
	Outcomes      StringList `json:"outcomes"`
	OutcomePrices PriceList  `json:"outcomePrices"`
	ClobTokenIDs  StringList `json:"clobTokenIds"`

	EndDate time.Time       `json:"endDate"`
	Volume  decimal.Decimal `json:"volumeNum"`

	Active          bool `json:"active"`
	Closed          bool `json:"closed"`
	EnableOrderBook bool `json:"enableOrderBook"`
	AcceptingOrders bool `json:"acceptingOrders"`

	OrderMinSize          decimal.Decimal `json:"orderMinSize"`
	OrderPriceMinTickSize decimal.Decimal `json:"orderPriceMinTickSize"`
	BestAsk               decimal.Decimal `json:"bestAsk"`
	LastTradePrice        decimal.Decimal `json:"lastTradePrice"`
	Spread                decimal.Decimal `json:"spread"`
}

// Validate checks the structural invariants a tradable binary market must
// satisfy.
func (m *Market) Validate() error {
	if m.ConditionID == "" {
		return fmt.Errorf("market %s: missing condition ID", m.ID)
	}
	if m.Question == "" {
		return fmt.Errorf("market %s: missing question", m.ConditionID)
	}
	if len(m.Outcomes) != 2 {
		return fmt.Errorf("market %s: expected 2 outcomes, got %d", m.ConditionID, len(m.Outcomes))
	}
	if len(m.OutcomePrices) != 2 {
		return fmt.Errorf("market %s: expected 2 outcome prices, got %d", m.ConditionID, len(m.OutcomePrices))
	}
	if len(m.ClobTokenIDs) != 2 {
		return fmt.Errorf("market %s: expected 2 token IDs, got %d", m.ConditionID, len(m.ClobTokenIDs))
	}
	one := decimal.NewFromInt(1)
	for i, p := range m.OutcomePrices {
		if p.IsNegative() || p.GreaterThan(one) {
			return fmt.Errorf("market %s: outcome price %d out of [0,1]: %s", m.ConditionID, i, p)
		}
	}
	return nil
}

// Price returns the price of the given outcome index.
func (m *Market) Price(outcome int) (decimal.Decimal, error) {
	if outcome < 0 || outcome >= len(m.OutcomePrices) {
		return decimal.Zero, fmt.Errorf("market %s: no outcome %d", m.ConditionID, outcome)
	}
	return m.OutcomePrices[outcome], nil
}

// TokenID returns the order-book token ID of the given outcome index.
func (m *Market) TokenID(outcome int) (string, error) {
	if outcome < 0 || outcome >= len(m.ClobTokenIDs) {
		return "", fmt.Errorf("market %s: no outcome %d", m.ConditionID, outcome)
	}
	return m.ClobTokenIDs[outcome], nil
}

// Tradable reports whether the market's order book accepts orders right now.
func (m *Market) Tradable() bool {
	return m.Active && !m.Closed && m.EnableOrderBook && m.AcceptingOrders
}
