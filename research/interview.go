package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/workflow"
)

// NewInterviewSeed builds the initial branch state for one analyst.
func NewInterviewSeed(analyst Analyst, marketQuestion string, maxTurns int) InterviewState {
	return InterviewState{
		Analyst:        analyst,
		MarketQuestion: marketQuestion,
		MaxTurns:       maxTurns,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("So you said you were analyzing the following question: %s?", marketQuestion),
		}},
	}
}

// NewInterviewGraph builds the interview subflow: the analyst asks, the
// expert searches the web and answers from the evidence, and a router loops
// back for another turn until the budget is spent or the analyst signs off.
// The transcript and a cited report section are written at the end.
func (r *Researcher) NewInterviewGraph() (*workflow.Graph[InterviewState], error) {
	g := workflow.NewGraph[InterviewState]("interview")
	g.AddStage("ask_question", r.askQuestion).
		AddStage("search_evidence", r.searchEvidence).
		AddStage("answer_question", r.answerQuestion).
		AddStage("save_transcript", r.saveTranscript).
		AddStage("write_section", r.writeSection).
		AddEdge("ask_question", "search_evidence").
		AddEdge("search_evidence", "answer_question").
		AddEdge("save_transcript", "write_section").
		SetEntry("ask_question")
	g.AddRouter("answer_question", []string{"ask_question", "save_transcript"}, r.routeTurn)
	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Researcher) askQuestion(ctx context.Context, s InterviewState) (InterviewState, error) {
	comp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages: append([]llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(questionInstructions, s.Analyst.Persona()),
		}}, s.Messages...),
	})
	if err != nil {
		return s, fmt.Errorf("question generation: %w", err)
	}
	s.Messages = append(s.Messages, llm.Message{
		Role:    llm.RoleAssistant,
		Name:    s.Analyst.Name,
		Content: comp.Content,
	})
	return s, nil
}

func (r *Researcher) searchEvidence(ctx context.Context, s InterviewState) (InterviewState, error) {
	query, err := llm.Structured[searchQuery](ctx, r.llm, llm.CompletionRequest{
		Messages: append([]llm.Message{{
			Role:    llm.RoleSystem,
			Content: searchQueryInstructions,
		}}, s.Messages...),
	})
	if err != nil {
		return s, fmt.Errorf("search query generation: %w", err)
	}

	docs, err := r.search.Search(ctx, query.SearchQuery, r.cfg.EvidenceSearchResults)
	if err != nil {
		return s, fmt.Errorf("evidence search: %w", err)
	}
	r.logger.Debug("evidence gathered",
		zap.String("analyst", s.Analyst.Name),
		zap.String("query", query.SearchQuery),
		zap.Int("documents", len(docs)),
	)

	s.Evidence = append(s.Evidence, search.FormatEvidence(docs))
	return s, nil
}

func (r *Researcher) answerQuestion(ctx context.Context, s InterviewState) (InterviewState, error) {
	comp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages: append([]llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(answerInstructions, s.Analyst.Persona(), strings.Join(s.Evidence, "\n\n")),
		}}, s.Messages...),
	})
	if err != nil {
		return s, fmt.Errorf("answer generation: %w", err)
	}
	s.Messages = append(s.Messages, llm.Message{
		Role:    llm.RoleAssistant,
		Name:    expertName,
		Content: comp.Content,
	})
	return s, nil
}

// routeTurn ends the interview once the expert has answered MaxTurns times
// or the analyst's last question contained the sign-off phrase.
func (r *Researcher) routeTurn(ctx context.Context, s InterviewState) (string, error) {
	if s.answerCount() >= s.MaxTurns {
		return "save_transcript", nil
	}
	if strings.Contains(s.lastQuestion(), terminationPhrase) {
		return "save_transcript", nil
	}
	return "ask_question", nil
}

func (r *Researcher) saveTranscript(ctx context.Context, s InterviewState) (InterviewState, error) {
	var b strings.Builder
	for _, m := range s.Messages {
		speaker := m.Name
		if speaker == "" {
			speaker = string(m.Role)
		}
		fmt.Fprintf(&b, "%s: %s\n\n", speaker, m.Content)
	}
	s.Transcript = b.String()
	r.logger.Debug("transcript saved",
		zap.String("analyst", s.Analyst.Name),
		zap.Int("messages", len(s.Messages)),
	)
	return s, nil
}

func (r *Researcher) writeSection(ctx context.Context, s InterviewState) (InterviewState, error) {
	section, err := llm.Structured[Section](ctx, r.llm, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(sectionWriterInstructions, s.Analyst.Description)},
			{Role: llm.RoleUser, Content: "Use this source to write your section: " + strings.Join(s.Evidence, "\n\n")},
		},
	})
	if err != nil {
		return s, fmt.Errorf("section writing: %w", err)
	}
	section.Sources = dedupeSources(section.Sources)
	s.Section = section
	r.logger.Info("section written",
		zap.String("analyst", s.Analyst.Name),
		zap.String("title", section.Title),
		zap.Int("sources", len(section.Sources)),
	)
	return s, nil
}

func dedupeSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		key := strings.TrimSpace(src)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
