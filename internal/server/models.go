package server

import "github.com/kitab-ai/kitab/internal/rag"

// ChatRequest is the payload for full-book questions.
type ChatRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SelectionRequest is the payload for selected-text questions.
type SelectionRequest struct {
	Question       string `json:"question"`
	SelectedText   string `json:"selected_text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the answer envelope shared by both modes.
type ChatResponse struct {
	Answer         string               `json:"answer"`
	Citations      []rag.SourceCitation `json:"citations,omitempty"`
	IsCovered      bool                 `json:"is_covered"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// TranslationRequest carries the source text for a translation claim.
type TranslationRequest struct {
	Language   string `json:"language"`
	SourceText string `json:"source_text"`
}
