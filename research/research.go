// Package research generates analyst personas for a prediction market and
// runs each through a bounded interview with a web-searching expert,
// producing one cited report section per analyst.
package research

import (
	"fmt"

	"github.com/polymind-ai/polymind/llm"
)

// Analyst is a generated research persona.
type Analyst struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Affiliation string `json:"affiliation"`
	Description string `json:"description"`
}

// Persona renders the analyst for prompt injection.
func (a Analyst) Persona() string {
	return fmt.Sprintf("Name: %s\nRole: %s\nAffiliation: %s\nDescription: %s\n",
		a.Name, a.Role, a.Affiliation, a.Description)
}

// Theme is a research angle surfaced by the pre-search, ranked by how much
// it bears on the market question.
type Theme struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

// Section is one analyst's contribution to the final report.
type Section struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"` // numbered citations, [1] [2] ...
	Sources []string `json:"sources"` // deduped, ordered by first citation
}

// Content renders the section as markdown.
func (s Section) Content() string {
	out := fmt.Sprintf("## %s\n\n### Summary\n%s\n\n### Sources\n", s.Title, s.Summary)
	for i, src := range s.Sources {
		out += fmt.Sprintf("[%d] %s  \n", i+1, src)
	}
	return out
}

// expertName tags expert turns in the interview transcript; the router
// counts them to enforce the turn budget.
const expertName = "expert"

// terminationPhrase ends an interview early when the analyst says it.
const terminationPhrase = "Thank you so much for your help"

// InterviewState is the private state of one interview branch.
type InterviewState struct {
	Analyst        Analyst       `json:"analyst"`
	MarketQuestion string        `json:"market_question"`
	Messages       []llm.Message `json:"messages"`
	Evidence       []string      `json:"evidence"` // append-only formatted docs
	MaxTurns       int           `json:"max_turns"`
	Transcript     string        `json:"transcript"`
	Section        Section       `json:"section"`
}

// answerCount returns how many times the expert has answered.
func (s InterviewState) answerCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == llm.RoleAssistant && m.Name == expertName {
			n++
		}
	}
	return n
}

// lastQuestion returns the analyst message preceding the latest answer.
func (s InterviewState) lastQuestion() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == llm.RoleAssistant && m.Name != expertName {
			return m.Content
		}
	}
	return ""
}
