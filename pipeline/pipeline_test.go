package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/testutil"
	"github.com/polymind-ai/polymind/trade"
	"github.com/polymind-ai/polymind/venue"
	"github.com/polymind-ai/polymind/workflow"
)

func testMarket() market.Market {
	return market.Market{
		ID:          "12345",
		ConditionID: "0xabc",
		Question:    "Will the incumbent win the election?",
		Description: "Resolves YES if the incumbent wins.",
		Outcomes:    market.StringList{"Yes", "No"},
		OutcomePrices: market.PriceList{
			decimal.NewFromFloat(0.40),
			decimal.NewFromFloat(0.60),
		},
		ClobTokenIDs: market.StringList{"tok-yes", "tok-no"},
		EndDate:      time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
	}
}

// runScript scripts every completion the pipeline requests, dispatching on
// the system prompt. Analyst-generation replies pop from a queue so a test
// can force empty batches before a successful one.
type runScript struct {
	analystBatches []string
	conviction     int
}

func defaultAnalysts() string {
	return `{"analysts":[
		{"name":"Dana Reeve","role":"Pollster","affiliation":"Field Research Co","description":"state-level polling"},
		{"name":"Omar Haddad","role":"Economist","affiliation":"Macro Desk","description":"economic fundamentals"}
	]}`
}

func (rs *runScript) reply(req llm.CompletionRequest) (string, error) {
	system := ""
	all := ""
	for _, m := range req.Messages {
		all += m.Content + "\n"
		if m.Role == llm.RoleSystem {
			system = m.Content
		}
	}
	switch {
	case strings.Contains(system, "best web search query"):
		return `{"search_query":"incumbent election polling"}`, nil
	case strings.Contains(system, "Given the following web search results"):
		return `{"themes":[{"topic":"polling averages","confidence":0.9},{"topic":"turnout models","confidence":0.7}]}`, nil
	case strings.Contains(system, "creating a set of AI analyst personas"):
		if len(rs.analystBatches) == 0 {
			return defaultAnalysts(), nil
		}
		batch := rs.analystBatches[0]
		rs.analystBatches = rs.analystBatches[1:]
		return batch, nil
	case strings.Contains(system, "interviewing an expert"):
		return "I'm Jordan, a reporter. What do the latest polls show?", nil
	case strings.Contains(system, "well-structured query"):
		return `{"search_query":"latest election polls"}`, nil
	case strings.Contains(system, "expert being interviewed"):
		return "Polling averages show a two-point lead [1].\n[1] https://example.com/polls", nil
	case strings.Contains(system, "expert technical writer"):
		// Personalize the section so each branch contributes a distinct one.
		title := "Polling Outlook"
		if strings.Contains(all, "economic fundamentals") {
			title = "Economic Outlook"
		}
		return `{"title":"` + title + `","summary":"The race is close [1].","sources":["https://example.com/polls"]}`, nil
	case strings.Contains(system, "creating a recommendation for a prediction market"):
		return `{"outcome_index":0,"conviction":` + strconv.Itoa(rs.conviction) + `,"reasoning":"odds misprice the lead"}`, nil
	default:
		return "", errors.New("unscripted prompt: " + system)
	}
}

type harness struct {
	graph   *workflow.Graph[RunState]
	store   *store.MemoryStore
	venue   *testutil.MockVenue
	balance *testutil.MockBalance
	llm     *testutil.MockLLM
}

func newHarness(t *testing.T, script *runScript, collateral int64) *harness {
	t.Helper()
	mockLLM := &testutil.MockLLM{Script: script.reply}
	mockSearch := &testutil.MockSearch{Results: []search.Result{
		{Title: "Poll tracker", URL: "https://example.com/polls", Content: "two-point lead"},
	}}
	mockVenue := &testutil.MockVenue{}
	mockBalance := &testutil.MockBalance{Collateral: decimal.NewFromInt(collateral)}

	researcher := research.NewResearcher(mockLLM, mockSearch,
		research.Config{MaxTurns: 1}, zap.NewNop())

	g, err := BuildGraph(Options{
		LLM:              mockLLM,
		Venue:            mockVenue,
		Balance:          mockBalance,
		Researcher:       researcher,
		Sizing:           trade.DefaultSizingConfig(),
		MaxTurns:         1,
		MaxRegenerations: 2,
		Logger:           zap.NewNop(),
	})
	require.NoError(t, err)

	return &harness{
		graph:   g,
		store:   store.NewMemoryStore(),
		venue:   mockVenue,
		balance: mockBalance,
		llm:     mockLLM,
	}
}

func (h *harness) executor() *workflow.Executor[RunState] {
	return workflow.NewExecutor(h.graph, h.store, zap.NewNop())
}

func TestRun_SubmitsAtHighConviction(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 85}, 1000)
	ctx := context.Background()

	final, err := h.executor().Run(ctx, "run-submit", RunState{
		Market: testMarket(), MaxAnalysts: 3,
	})
	require.NoError(t, err)

	require.Len(t, final.Sections, 2)
	report := final.Report()
	assert.Contains(t, report, "Polling Outlook")
	assert.Contains(t, report, "Economic Outlook")

	require.NotNil(t, final.Recommendation)
	assert.Equal(t, 85, final.Recommendation.Conviction)
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(1000)))

	assert.True(t, final.Execution.Submitted)
	assert.Equal(t, StatusSubmitted, final.Execution.Status)
	assert.NotEmpty(t, final.Execution.OrderID)

	require.Equal(t, 1, h.venue.Submissions())
	order := h.venue.Orders[0]
	assert.Equal(t, "tok-yes", order.TokenID)
	assert.True(t, order.Size.Equal(decimal.NewFromInt(250)), "size %s", order.Size)
	assert.True(t, order.Price.Equal(decimal.NewFromFloat(0.402)), "limit %s", order.Price)
	assert.Equal(t, venue.SideBuy, order.Side)
	assert.Equal(t, venue.OrderTypeGTC, order.Type)

	latest, err := h.store.Latest(ctx, "run-submit")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, latest.Status)
}

func TestRun_RecordsAttemptBeforeVenueCall(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 90}, 1000)
	ctx := context.Background()

	_, err := h.executor().Run(ctx, "run-marker", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.NoError(t, err)

	cps, err := h.store.List(ctx, "run-marker")
	require.NoError(t, err)

	// A running checkpoint with the attempt marker but no confirmation must
	// precede the final one.
	sawMarker := false
	for _, cp := range cps {
		var s RunState
		require.NoError(t, json.Unmarshal(cp.State, &s))
		if s.Execution.Attempted && !s.Execution.Submitted {
			sawMarker = true
			assert.Equal(t, store.StatusRunning, cp.Status)
		}
	}
	assert.True(t, sawMarker, "no pre-submission checkpoint found")
}

func TestRun_SkipsBelowExecutionThreshold(t *testing.T) {
	// Conviction 70 sizes a valid order (mid tier) but fails the gate.
	h := newHarness(t, &runScript{conviction: 70}, 1000)

	final, err := h.executor().Run(context.Background(), "run-gate", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.NoError(t, err)

	require.NotNil(t, final.Sizing.Order, "order should have been sized")
	assert.True(t, final.Sizing.Order.Size.Equal(decimal.NewFromInt(150)))

	assert.Equal(t, StatusSkipped, final.Execution.Status)
	assert.Contains(t, final.Execution.Detail, "low conviction")
	assert.False(t, final.Execution.Attempted)
	assert.Zero(t, h.venue.Submissions())
}

func TestRun_SkipsWhenSizingDeclines(t *testing.T) {
	// A 10 USDC balance sizes 2.50 at high tier, under the venue minimum.
	h := newHarness(t, &runScript{conviction: 85}, 10)

	final, err := h.executor().Run(context.Background(), "run-dust", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.NoError(t, err)

	assert.True(t, final.Sizing.Skipped())
	assert.Equal(t, StatusSkipped, final.Execution.Status)
	assert.Contains(t, final.Execution.Detail, "below venue minimum")
	assert.Zero(t, h.venue.Submissions())
}

func TestRun_RegeneratesThemesUntilAnalystsAppear(t *testing.T) {
	script := &runScript{
		conviction: 85,
		// First generation comes back empty; the second succeeds.
		analystBatches: []string{`{"analysts":[]}`, defaultAnalysts()},
	}
	h := newHarness(t, script, 1000)

	final, err := h.executor().Run(context.Background(), "run-regen", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, final.RegenerationCount)
	assert.Len(t, final.Analysts, 2)
	assert.True(t, final.Execution.Submitted)
}

func TestRun_FailsAfterRegenerationBound(t *testing.T) {
	script := &runScript{
		conviction:     85,
		analystBatches: []string{`{"analysts":[]}`, `{"analysts":[]}`},
	}
	h := newHarness(t, script, 1000)

	_, err := h.executor().Run(context.Background(), "run-exhausted", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analysts after 2 theme regenerations")
	assert.Zero(t, h.venue.Submissions())

	latest, err := h.store.Latest(context.Background(), "run-exhausted")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, latest.Status)
	assert.Equal(t, "create_analysts", latest.FailedStage)
}

func TestResume_AmbiguousSubmissionNeverResubmits(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 85}, 1000)
	h.venue.Err = errors.New("gateway timeout")
	ctx := context.Background()

	_, err := h.executor().Run(ctx, "run-ambiguous", RunState{
		Market: testMarket(), MaxAnalysts: 2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order submission")
	require.Equal(t, 1, h.venue.Submissions())

	// The failure checkpoint must carry the attempt marker.
	latest, err := h.store.Latest(ctx, "run-ambiguous")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, latest.Status)
	assert.Equal(t, "gate_and_execute", latest.FailedStage)
	var s RunState
	require.NoError(t, json.Unmarshal(latest.State, &s))
	assert.True(t, s.Execution.Attempted)
	assert.False(t, s.Execution.Submitted)

	// Even with the venue healthy again, resuming must refuse to resubmit.
	h.venue.Err = nil
	_, err = h.executor().Resume(ctx, "run-ambiguous")
	require.Error(t, err)
	assert.ErrorIs(t, err, trade.ErrAmbiguousSubmission)
	assert.Equal(t, 1, h.venue.Submissions(), "resume must not resubmit")
}

func TestManager_RunLifecycle(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 85}, 1000)
	mgr := NewManager(ManagerConfig{
		Graph:  h.graph,
		Store:  h.store,
		Logger: zap.NewNop(),
	})
	ctx := context.Background()

	runID, err := mgr.StartRun(ctx, testMarket(), 2)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	mgr.Wait()

	cp, err := mgr.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, cp.Status)
	assert.Equal(t, 1, h.venue.Submissions())

	err = mgr.Resume(ctx, runID)
	assert.ErrorIs(t, err, workflow.ErrRunCompleted)
}

func TestManager_RejectsInvalidMarket(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 85}, 1000)
	mgr := NewManager(ManagerConfig{Graph: h.graph, Store: h.store})

	_, err := mgr.StartRun(context.Background(), market.Market{}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market rejected")
	mgr.Wait()
	assert.Zero(t, h.venue.Submissions())
}

func TestManager_StatusUnknownRun(t *testing.T) {
	h := newHarness(t, &runScript{conviction: 85}, 1000)
	mgr := NewManager(ManagerConfig{Graph: h.graph, Store: h.store})

	_, err := mgr.Status(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)

	err = mgr.Resume(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)
}

func TestManager_ResumeAfterFailure(t *testing.T) {
	script := &runScript{
		conviction:     85,
		analystBatches: []string{`{"analysts":[]}`, `{"analysts":[]}`, defaultAnalysts()},
	}
	h := newHarness(t, script, 1000)
	mgr := NewManager(ManagerConfig{Graph: h.graph, Store: h.store, Logger: zap.NewNop()})
	ctx := context.Background()

	runID, err := mgr.StartRun(ctx, testMarket(), 2)
	require.NoError(t, err)
	mgr.Wait()

	cp, err := mgr.Status(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, cp.Status)

	// The next generation attempt succeeds, so the resumed run completes.
	require.NoError(t, mgr.Resume(ctx, runID))
	mgr.Wait()

	cp, err = mgr.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, cp.Status)
	assert.Equal(t, 1, h.venue.Submissions())
}
