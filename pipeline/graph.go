package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/internal/metrics"
	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/trade"
	"github.com/polymind-ai/polymind/venue"
	"github.com/polymind-ai/polymind/workflow"
)

// Stage names of the outer graph.
const (
	stageSearchThemes      = "search_themes"
	stageCreateAnalysts    = "create_analysts"
	stageConductInterviews = "conduct_interviews"
	stageWriteRec          = "write_recommendation"
	stageCheckBalance      = "check_balance"
	stageSizeOrder         = "size_order"
	stageGateAndExecute    = "gate_and_execute"
)

// Options collects everything the graph's stages depend on.
type Options struct {
	LLM     llm.Client
	Venue   venue.Client
	Balance venue.BalanceOracle

	Researcher *research.Researcher

	Sizing trade.SizingConfig
	// MaxTurns per interview.
	MaxTurns int
	// MaxRegenerations bounds the theme-search loop.
	MaxRegenerations int

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// builder carries the stage dependencies.
type builder struct {
	opts   Options
	logger *zap.Logger
}

func (b *builder) orderSkipped(reason string) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.OrderSkipped(reason)
	}
}

// BuildGraph assembles and compiles the outer run graph.
//
//	create_analysts --(no analysts)--> search_themes --> create_analysts
//	create_analysts --(analysts)----> conduct_interviews (fan-out)
//	conduct_interviews --> write_recommendation --> check_balance
//	  --> size_order --> gate_and_execute
func BuildGraph(opts Options) (*workflow.Graph[RunState], error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 2
	}
	b := &builder{opts: opts, logger: opts.Logger.With(zap.String("component", "pipeline"))}

	interview, err := opts.Researcher.NewInterviewGraph()
	if err != nil {
		return nil, err
	}

	g := workflow.NewGraph[RunState]("polymind")
	g.AddStage(stageSearchThemes, b.searchThemes).
		AddStage(stageCreateAnalysts, b.createAnalysts).
		AddStage(stageWriteRec, b.writeRecommendation).
		AddStage(stageCheckBalance, b.checkBalance).
		AddStage(stageSizeOrder, b.sizeOrder).
		AddStage(stageGateAndExecute, b.gateAndExecute).
		AddEdge(stageSearchThemes, stageCreateAnalysts).
		AddEdge(stageWriteRec, stageCheckBalance).
		AddEdge(stageCheckBalance, stageSizeOrder).
		AddEdge(stageSizeOrder, stageGateAndExecute).
		SetEntry(stageCreateAnalysts)

	g.AddRouter(stageCreateAnalysts,
		[]string{stageSearchThemes, stageConductInterviews}, b.routeAnalysts)

	workflow.AddFanout(g, stageConductInterviews, workflow.FanoutSpec[RunState, research.InterviewState]{
		Spawn: b.spawnInterviews,
		Sub:   interview,
		Join:  b.joinInterviews,
		Next:  stageWriteRec,
		Empty: stageSearchThemes,
	})

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}

// searchThemes runs the theme pre-search. It counts a regeneration; the
// router enforces the bound.
func (b *builder) searchThemes(ctx context.Context, s RunState) (RunState, error) {
	themes, err := b.opts.Researcher.SearchThemes(ctx, &s.Market)
	if err != nil {
		return s, err
	}
	s.Themes = themes
	s.RegenerationCount++
	return s, nil
}

func (b *builder) createAnalysts(ctx context.Context, s RunState) (RunState, error) {
	analysts, err := b.opts.Researcher.GenerateAnalysts(ctx, &s.Market, s.Themes, s.Analysts, s.MaxAnalysts)
	if err != nil {
		return s, err
	}
	s.Analysts = analysts
	return s, nil
}

// routeAnalysts loops back to theme search while analyst generation comes
// back empty, up to the regeneration bound.
func (b *builder) routeAnalysts(ctx context.Context, s RunState) (string, error) {
	if len(s.Analysts) > 0 {
		return stageConductInterviews, nil
	}
	if s.RegenerationCount >= b.opts.MaxRegenerations {
		return "", fmt.Errorf("no analysts after %d theme regenerations", s.RegenerationCount)
	}
	return stageSearchThemes, nil
}

func (b *builder) spawnInterviews(s RunState) []research.InterviewState {
	seeds := make([]research.InterviewState, 0, len(s.Analysts))
	for _, a := range s.Analysts {
		seeds = append(seeds, research.NewInterviewSeed(a, s.Market.Question, b.opts.MaxTurns))
	}
	return seeds
}

// joinInterviews merges each branch's section into the run state, deduped
// by content so a replayed branch can never double a section.
func (b *builder) joinInterviews(s RunState, children []research.InterviewState) RunState {
	union := workflow.AppendSetUnion(func(sec research.Section) string {
		return sec.Content()
	})
	for _, c := range children {
		s.Sections = union(s.Sections, []research.Section{c.Section})
	}
	return s
}

func (b *builder) writeRecommendation(ctx context.Context, s RunState) (RunState, error) {
	rec, err := trade.BuildRecommendation(ctx, b.opts.LLM, &s.Market, s.Report(), b.logger)
	if err != nil {
		return s, err
	}
	s.Recommendation = rec
	return s, nil
}

// checkBalance reads the live collateral. Failure fails the run; sizing
// must never fall back to a stale or default balance.
func (b *builder) checkBalance(ctx context.Context, s RunState) (RunState, error) {
	bal, err := b.opts.Balance.Balance(ctx)
	if err != nil {
		return s, fmt.Errorf("balance read: %w", err)
	}
	s.Balance = bal.Collateral
	b.logger.Info("balance checked", zap.String("collateral", bal.Collateral.String()))
	return s, nil
}

func (b *builder) sizeOrder(ctx context.Context, s RunState) (RunState, error) {
	if s.Recommendation == nil {
		return s, fmt.Errorf("no recommendation to size")
	}
	price, err := s.Market.Price(s.Recommendation.OutcomeIndex)
	if err != nil {
		return s, err
	}
	tokenID, err := s.Market.TokenID(s.Recommendation.OutcomeIndex)
	if err != nil {
		return s, err
	}
	sizing, err := trade.SizeOrder(b.opts.Sizing, s.Recommendation.Conviction, s.Balance, price, tokenID)
	if err != nil {
		return s, err
	}
	s.Sizing = sizing
	if sizing.Skipped() {
		b.logger.Info("sizing skipped trade", zap.String("reason", sizing.SkipReason))
	} else {
		b.logger.Info("order sized",
			zap.String("size", sizing.Order.Size.String()),
			zap.String("limit", sizing.Order.Price.String()),
		)
	}
	return s, nil
}

// gateAndExecute is the only stage that touches the venue. It checkpoints a
// submission marker before the call so that a crash between the request and
// the confirmation is detectable: a resumed run finding the marker without
// a result stops with ErrAmbiguousSubmission instead of resubmitting.
func (b *builder) gateAndExecute(ctx context.Context, s RunState) (RunState, error) {
	if s.Execution.Attempted && !s.Execution.Submitted {
		return s, trade.ErrAmbiguousSubmission
	}
	if s.Execution.Submitted {
		// Already confirmed on a previous attempt of this stage.
		return s, nil
	}

	if s.Sizing.Skipped() {
		s.Execution.Status = StatusSkipped
		s.Execution.Detail = s.Sizing.SkipReason
		b.orderSkipped("sizing")
		b.logger.Info("trade skipped", zap.String("reason", s.Execution.Detail))
		return s, nil
	}
	if s.Recommendation.Conviction < b.opts.Sizing.ExecutionThreshold {
		s.Execution.Status = StatusSkipped
		s.Execution.Detail = fmt.Sprintf("low conviction: %d below threshold %d",
			s.Recommendation.Conviction, b.opts.Sizing.ExecutionThreshold)
		b.orderSkipped("conviction")
		b.logger.Info("trade skipped", zap.String("reason", s.Execution.Detail))
		return s, nil
	}

	s.Execution.Attempted = true
	if err := workflow.CheckpointNow(ctx, s); err != nil {
		// Without the durable marker the venue call is not safe to make.
		return s, fmt.Errorf("pre-submission checkpoint: %w", err)
	}

	result, err := b.opts.Venue.PostOrder(ctx, *s.Sizing.Order)
	if err != nil {
		return s, fmt.Errorf("order submission: %w", err)
	}
	s.Execution.Submitted = true
	s.Execution.Status = StatusSubmitted
	s.Execution.OrderID = result.OrderID
	s.Execution.Detail = result.Status
	if b.opts.Metrics != nil {
		b.opts.Metrics.OrderSubmitted()
	}
	b.logger.Info("order submitted",
		zap.String("order_id", result.OrderID),
		zap.String("venue_status", result.Status),
	)
	return s, nil
}
