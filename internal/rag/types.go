package rag

import (
	"context"

	"github.com/kitab-ai/kitab/models"
)

// Mode distinguishes the two mutually exclusive evidence sources.
type Mode string

const (
	ModeFullBook     Mode = "full_book"
	ModeSelectedText Mode = "selected_text"
)

// Fixed fallback phrases returned verbatim when coverage is absent. They are
// never produced by the model.
const (
	NotCoveredMessage     = "Not covered in this book"
	NotInSelectionMessage = "Not in selected text"
)

// RetrievedFragment is a corpus fragment returned by the similarity index.
type RetrievedFragment struct {
	ID         string  `json:"id"`
	Section    string  `json:"section"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"` // 0.0 to 1.0
}

// CoverageDecision records whether the corpus covers a question. Exactly one
// decision exists per full-book query. Fragments are kept even when coverage
// is absent so callers can inspect the closest-but-insufficient context; the
// answer contract never exposes them in that case.
type CoverageDecision struct {
	Covered       bool
	Fragments     []RetrievedFragment
	MaxSimilarity float64
}

// SourceCitation points an answer back at a corpus section.
type SourceCitation struct {
	Section   string  `json:"section"`
	Relevance float64 `json:"relevance"`
}

// AnswerResult is the immutable outcome of a single query.
type AnswerResult struct {
	Text           string           `json:"text"`
	Citations      []SourceCitation `json:"citations"`
	IsCovered      bool             `json:"is_covered"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

// EvidenceContext is the bounded set of text a generation call may draw on.
// It is a tagged variant: full-book mode carries fragments and prior turns,
// selected-text mode carries the selection alone.
type EvidenceContext struct {
	Mode      Mode
	Fragments []RetrievedFragment
	Selection string
	History   []models.ChatMessage
}

// Embedder converts text into fixed-length vectors.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// SimilarityIndex returns the top-K nearest corpus fragments for a vector.
type SimilarityIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]RetrievedFragment, error)
}

// Generator produces text from a model-facing conversation.
type Generator interface {
	ChatCompletion(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// ConversationStore persists turn history keyed by conversation id.
type ConversationStore interface {
	Mode(ctx context.Context, id string) (string, bool, error)
	Create(ctx context.Context, userID, mode string) (string, error)
	History(ctx context.Context, id string, limit int) ([]models.ChatMessage, error)
	AppendExchange(ctx context.Context, id, question, answer string, citations []SourceCitation) error
}

// ProfileStore loads reader profiles for personalization.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (models.UserProfile, bool, error)
}
