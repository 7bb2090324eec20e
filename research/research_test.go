package research

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/testutil"
	"github.com/polymind-ai/polymind/workflow"
)

func testMarket() *market.Market {
	return &market.Market{
		ID:            "1",
		ConditionID:   "0xabc",
		Question:      "Will the incumbent win?",
		Description:   "Election market",
		Outcomes:      market.StringList{"Yes", "No"},
		OutcomePrices: market.PriceList{decimal.NewFromFloat(0.45), decimal.NewFromFloat(0.55)},
		ClobTokenIDs:  market.StringList{"t-yes", "t-no"},
		EndDate:       time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
	}
}

// interviewScript replies based on which prompt the stage sent.
func interviewScript(question string) func(req llm.CompletionRequest) (string, error) {
	return func(req llm.CompletionRequest) (string, error) {
		sys := ""
		if len(req.Messages) > 0 && req.Messages[0].Role == llm.RoleSystem {
			sys = req.Messages[0].Content
		}
		switch {
		case strings.Contains(sys, "interviewing an expert"):
			return question, nil
		case strings.Contains(sys, "well-structured query"):
			return `{"search_query": "incumbent polling average"}`, nil
		case strings.Contains(sys, "expert being interviewed"):
			return "Polls show a narrow lead [1].\n\n[1] https://polls.example", nil
		case strings.Contains(sys, "expert technical writer"):
			return `{"title": "Polling Picture", "summary": "Leads are narrow [1].", "sources": ["https://polls.example", "https://polls.example", " "]}`, nil
		default:
			return "", fmt.Errorf("unexpected prompt: %.80s", sys)
		}
	}
}

func newTestResearcher(lc llm.Client) *Researcher {
	ms := &testutil.MockSearch{Results: []search.Result{
		{URL: "https://polls.example", Content: "polling data"},
	}}
	return NewResearcher(lc, ms, DefaultConfig(), zap.NewNop())
}

func runInterview(t *testing.T, r *Researcher, seed InterviewState) InterviewState {
	t.Helper()
	g, err := r.NewInterviewGraph()
	require.NoError(t, err)
	out, err := workflow.NewExecutor(g, nil, zap.NewNop()).Run(context.Background(), "iv-1", seed)
	require.NoError(t, err)
	return out
}

func TestInterview_StopsAtTurnBudget(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{Script: interviewScript("Tell me more about the polls.")}
	r := newTestResearcher(mock)

	out := runInterview(t, r, NewInterviewSeed(Analyst{Name: "Ana"}, "Will the incumbent win?", 2))

	assert.Equal(t, 2, out.answerCount(), "expert answers exactly MaxTurns times")
	assert.Len(t, out.Evidence, 2, "one evidence batch per turn")
	assert.NotEmpty(t, out.Transcript)
	assert.Equal(t, "Polling Picture", out.Section.Title)
}

func TestInterview_StopsOnSignOffPhrase(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{Script: interviewScript("Thank you so much for your help!")}
	r := newTestResearcher(mock)

	out := runInterview(t, r, NewInterviewSeed(Analyst{Name: "Ana"}, "Will the incumbent win?", 10))

	assert.Equal(t, 1, out.answerCount(), "sign-off ends the interview after one answer")
}

func TestInterview_SectionSourcesDeduped(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{Script: interviewScript("Thank you so much for your help!")}
	r := newTestResearcher(mock)

	out := runInterview(t, r, NewInterviewSeed(Analyst{Name: "Ana"}, "Q?", 10))
	assert.Equal(t, []string{"https://polls.example"}, out.Section.Sources)
}

func TestInterview_TranscriptNamesSpeakers(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{Script: interviewScript("Thank you so much for your help!")}
	r := newTestResearcher(mock)

	out := runInterview(t, r, NewInterviewSeed(Analyst{Name: "Ana"}, "Q?", 10))
	assert.Contains(t, out.Transcript, "Ana:")
	assert.Contains(t, out.Transcript, "expert:")
}

func TestSectionContent(t *testing.T) {
	t.Parallel()

	s := Section{Title: "T", Summary: "S [1].", Sources: []string{"https://one", "https://two"}}
	got := s.Content()
	assert.Contains(t, got, "## T")
	assert.Contains(t, got, "### Summary")
	assert.Contains(t, got, "[1] https://one")
	assert.Contains(t, got, "[2] https://two")
}

func TestGenerateAnalysts_EmptyThemes(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{}
	r := newTestResearcher(mock)
	got, err := r.GenerateAnalysts(context.Background(), testMarket(), nil, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, mock.CallCount(), "no completion call without themes")
}

func TestGenerateAnalysts_RanksAndTruncatesThemes(t *testing.T) {
	t.Parallel()

	var prompt string
	mock := &testutil.MockLLM{Script: func(req llm.CompletionRequest) (string, error) {
		prompt = req.Messages[0].Content
		return `{"analysts": [{"name": "A", "role": "r", "affiliation": "x", "description": "d"},
			{"name": "B", "role": "r", "affiliation": "x", "description": "d"}]}`, nil
	}}
	r := newTestResearcher(mock)

	themes := []Theme{
		{Topic: "minor", Confidence: 0.2},
		{Topic: "major", Confidence: 0.9},
		{Topic: "middling", Confidence: 0.5},
	}
	got, err := r.GenerateAnalysts(context.Background(), testMarket(), themes, nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.Contains(t, prompt, "major")
	assert.Contains(t, prompt, "middling")
	assert.NotContains(t, prompt, "minor", "only the top themes reach the prompt")
}

func TestSearchThemes(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockLLM{Script: func(req llm.CompletionRequest) (string, error) {
		content := req.Messages[0].Content
		if strings.Contains(content, "best web search query") {
			return `{"search_query": "incumbent election forecast"}`, nil
		}
		return `{"themes": [{"topic": "polling", "confidence": 0.8}]}`, nil
	}}
	r := newTestResearcher(mock)

	got, err := r.SearchThemes(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "polling", got[0].Topic)
}

func TestAnalystPersona(t *testing.T) {
	t.Parallel()

	a := Analyst{Name: "Ana", Role: "Pollster", Affiliation: "Inst", Description: "watches polls"}
	p := a.Persona()
	assert.Contains(t, p, "Name: Ana")
	assert.Contains(t, p, "Role: Pollster")
}
