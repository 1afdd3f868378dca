package domain

import "time"

// LLMContextType unifies the original source's divergent LlmContextType
// and LlmContent.context_type enums into one concept (Open Question
// resolved in DESIGN.md): a work item may carry zero or more attached
// LLM-generated context snippets of a given type.
type LLMContextType string

const (
	LLMContextSummary    LLMContextType = "summary"
	LLMContextSuggestion LLMContextType = "suggestion"
	LLMContextRiskNote   LLMContextType = "risk_note"
)

func ParseLLMContextType(s string) (LLMContextType, bool) {
	switch LLMContextType(s) {
	case LLMContextSummary, LLMContextSuggestion, LLMContextRiskNote:
		return LLMContextType(s), true
	default:
		return "", false
	}
}

type LLMContent struct {
	ID          string
	WorkItemID  string
	ContextType LLMContextType
	Content     string
	CreatedAt   time.Time
}
