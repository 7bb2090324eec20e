package research

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/search"
)

// Config tunes the research stages.
type Config struct {
	// MaxTurns bounds how many times the expert answers in one interview.
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// ThemeSearchResults is the pre-search breadth for theme discovery.
	ThemeSearchResults int `yaml:"theme_search_results" env:"THEME_SEARCH_RESULTS"`
	// EvidenceSearchResults is the per-turn search breadth inside interviews.
	EvidenceSearchResults int `yaml:"evidence_search_results" env:"EVIDENCE_SEARCH_RESULTS"`
}

// DefaultConfig returns the research defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns:              2,
		ThemeSearchResults:    10,
		EvidenceSearchResults: 6,
	}
}

// Researcher runs the research stages against a completion service and a
// web-search service.
type Researcher struct {
	llm    llm.Client
	search search.Client
	cfg    Config
	logger *zap.Logger
}

// NewResearcher creates a researcher.
func NewResearcher(lc llm.Client, sc search.Client, cfg Config, logger *zap.Logger) *Researcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 2
	}
	if cfg.ThemeSearchResults <= 0 {
		cfg.ThemeSearchResults = 10
	}
	if cfg.EvidenceSearchResults <= 0 {
		cfg.EvidenceSearchResults = 6
	}
	return &Researcher{
		llm:    lc,
		search: sc,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "research")),
	}
}

type searchQuery struct {
	SearchQuery string `json:"search_query"`
}

type themeList struct {
	Themes []Theme `json:"themes"`
}

type perspectives struct {
	Analysts []Analyst `json:"analysts"`
}

// SearchThemes pre-searches the web for the market and distills ranked
// research themes from the results.
func (r *Researcher) SearchThemes(ctx context.Context, m *market.Market) ([]Theme, error) {
	r.logger.Info("searching web for themes", zap.String("question", m.Question))

	query, err := llm.Structured[searchQuery](ctx, r.llm, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(themeQueryInstructions, marketSummary(m)),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("theme query: %w", err)
	}

	docs, err := r.search.Search(ctx, query.SearchQuery, r.cfg.ThemeSearchResults)
	if err != nil {
		return nil, fmt.Errorf("theme search: %w", err)
	}

	themes, err := llm.Structured[themeList](ctx, r.llm, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(createThemesInstructions, marketSummary(m), search.FormatEvidence(docs)),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("theme distillation: %w", err)
	}

	r.logger.Info("themes discovered", zap.Int("count", len(themes.Themes)))
	return themes.Themes, nil
}

// GenerateAnalysts creates up to maxAnalysts personas, one per top theme.
// With no themes it returns an empty set; the caller routes back to theme
// search.
func (r *Researcher) GenerateAnalysts(ctx context.Context, m *market.Market, themes []Theme, existing []Analyst, maxAnalysts int) ([]Analyst, error) {
	if len(themes) == 0 {
		return nil, nil
	}
	if maxAnalysts <= 0 {
		maxAnalysts = 3
	}

	ranked := make([]Theme, len(themes))
	copy(ranked, themes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	if len(ranked) > maxAnalysts {
		ranked = ranked[:maxAnalysts]
	}

	prompt := fmt.Sprintf(analystInstructions,
		marketSummary(m), formatThemes(ranked), formatAnalysts(existing))

	out, err := llm.Structured[perspectives](ctx, r.llm, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: "Generate the set of analysts."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyst generation: %w", err)
	}

	analysts := out.Analysts
	if len(analysts) > maxAnalysts {
		analysts = analysts[:maxAnalysts]
	}
	r.logger.Info("analysts created", zap.Int("count", len(analysts)))
	return analysts, nil
}

func marketSummary(m *market.Market) string {
	return fmt.Sprintf("Question: %s\nDescription: %s\nOutcomes: %v\nEnd date: %s",
		m.Question, m.Description, []string(m.Outcomes), m.EndDate.Format("2006-01-02"))
}

func formatThemes(themes []Theme) string {
	out := ""
	for _, t := range themes {
		out += fmt.Sprintf("- %s (confidence %.2f)\n", t.Topic, t.Confidence)
	}
	if out == "" {
		out = "(none)"
	}
	return out
}

func formatAnalysts(analysts []Analyst) string {
	out := ""
	for _, a := range analysts {
		out += a.Persona() + "\n"
	}
	if out == "" {
		out = "(none)"
	}
	return out
}
