// Package trade turns research output into a risk-gated order: a structured
// recommendation, a conviction-tiered sizing policy, and the execution gate
// invariants.
package trade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
)

// ErrAmbiguousSubmission is surfaced when a resumed run finds an order
// attempt on record without a confirmed result. The order may or may not be
// on the book; resubmitting could double the position, so the run stops and
// a human reconciles against the venue.
var ErrAmbiguousSubmission = errors.New("order submission attempted but unconfirmed; manual reconciliation required")

// Recommendation is the directional conclusion of the research phase.
type Recommendation struct {
	// OutcomeIndex selects which outcome to buy: 0 or 1.
	OutcomeIndex int `json:"outcome_index"`
	// Conviction scores the recommendation from 0 to 100.
	Conviction int    `json:"conviction"`
	Reasoning  string `json:"reasoning"`
}

const recommendationInstructions = `You are a market analyst creating a recommendation for a prediction market.

MARKET DETAILS:
Question: %s
Description: %s
Outcomes: %v
Current Odds:
- %s: %s
- %s: %s
End Date: %s

Your task is to analyze the research provided and make a recommendation on which outcome to BUY.
Note: You can only BUY one of the two outcomes - you cannot SELL as we don't have any existing positions.

Based on the provided memos from your analysts:
%s

Create a recommendation that includes:
1. Which outcome to BUY
2. Your conviction level (0-100) in this recommendation
3. Detailed reasoning explaining:
   - Why you chose this outcome
   - Why the current market odds are incorrect
   - Key evidence supporting your view
   - Potential risks to your thesis

Remember:
- You can only recommend BUYING one of the two outcomes
- Higher conviction (>70) should only be used when evidence strongly suggests market odds are wrong
- Lower conviction (<30) suggests staying out of the market
- Consider time until market resolution and potential catalysts

Return a JSON object: {"outcome_index": 0 or 1, "conviction": 0-100, "reasoning": "..."}`

// BuildRecommendation asks the completion service for a structured
// recommendation over the assembled research report. An outcome index
// outside {0,1} is a hard error; conviction is clamped into [0,100].
func BuildRecommendation(ctx context.Context, c llm.Client, m *market.Market, report string, logger *zap.Logger) (*Recommendation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prompt := fmt.Sprintf(recommendationInstructions,
		m.Question, m.Description, []string(m.Outcomes),
		m.Outcomes[0], m.OutcomePrices[0], m.Outcomes[1], m.OutcomePrices[1],
		m.EndDate.Format("2006-01-02"), report)

	rec, err := llm.Structured[Recommendation](ctx, c, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: "Create a recommendation based upon these memos."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation: %w", err)
	}

	if rec.OutcomeIndex != 0 && rec.OutcomeIndex != 1 {
		return nil, fmt.Errorf("recommendation names outcome %d; must be 0 or 1", rec.OutcomeIndex)
	}
	if rec.Conviction < 0 {
		rec.Conviction = 0
	}
	if rec.Conviction > 100 {
		rec.Conviction = 100
	}

	logger.Info("recommendation built",
		zap.Int("outcome_index", rec.OutcomeIndex),
		zap.Int("conviction", rec.Conviction),
	)
	return &rec, nil
}
