// Package pipeline wires the research-then-trade run graph: analyst
// generation with bounded regeneration, fanned-out interviews, a structured
// recommendation, and the risk-gated order submission.
package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/trade"
)

// ExecutionState tracks the venue submission. Attempted is checkpointed
// before the venue call; Submitted only after a confirmed result. A resumed
// run seeing Attempted without Submitted must not resubmit.
type ExecutionState struct {
	Attempted bool   `json:"attempted"`
	Submitted bool   `json:"submitted"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// Execution status values.
const (
	StatusSubmitted = "submitted"
	StatusSkipped   = "skipped"
)

// RunState is the outer graph's state. Stages mutate their slice of it and
// the executor checkpoints the whole thing after every stage.
type RunState struct {
	Market      market.Market `json:"market"`
	MaxAnalysts int           `json:"max_analysts"`

	Themes   []research.Theme   `json:"themes,omitempty"`
	Analysts []research.Analyst `json:"analysts,omitempty"`
	Sections []research.Section `json:"sections,omitempty"`
	// RegenerationCount tracks how many times the theme search ran because
	// analyst generation came back empty.
	RegenerationCount int `json:"regeneration_count,omitempty"`

	Recommendation *trade.Recommendation `json:"recommendation,omitempty"`
	Balance        decimal.Decimal       `json:"balance"`
	Sizing         trade.Sizing          `json:"sizing"`
	Execution      ExecutionState        `json:"execution"`
}

// Report assembles the analysts' sections into the research report the
// recommendation is built from.
func (s *RunState) Report() string {
	out := ""
	for _, sec := range s.Sections {
		out += sec.Content() + "\n"
	}
	return out
}
