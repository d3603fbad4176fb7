package rag

import (
	"context"

	"github.com/kitab-ai/kitab/internal/store"
	"github.com/kitab-ai/kitab/models"
)

// StoreIndex adapts the Postgres fragment table to the SimilarityIndex
// interface.
type StoreIndex struct {
	Store *store.Store
}

func (s StoreIndex) Search(ctx context.Context, vector []float32, topK int) ([]RetrievedFragment, error) {
	hits, err := s.Store.SearchFragments(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	fragments := make([]RetrievedFragment, 0, len(hits))
	for _, h := range hits {
		fragments = append(fragments, RetrievedFragment{
			ID:         h.ID,
			Section:    h.Section,
			Content:    h.Content,
			Similarity: h.Similarity,
		})
	}
	return fragments, nil
}

// StoreConversations adapts the Postgres conversation tables to the
// ConversationStore interface.
type StoreConversations struct {
	Store *store.Store
}

func (s StoreConversations) Mode(ctx context.Context, id string) (string, bool, error) {
	c, found, err := s.Store.GetConversation(ctx, id)
	if err != nil || !found {
		return "", found, err
	}
	return c.Mode, true, nil
}

func (s StoreConversations) Create(ctx context.Context, userID, mode string) (string, error) {
	return s.Store.CreateConversation(ctx, userID, mode)
}

func (s StoreConversations) History(ctx context.Context, id string, limit int) ([]models.ChatMessage, error) {
	return s.Store.ConversationHistory(ctx, id, limit)
}

func (s StoreConversations) AppendExchange(ctx context.Context, id, question, answer string, citations []SourceCitation) error {
	var citationsJSON []byte
	if len(citations) > 0 {
		b, err := store.MarshalCitations(citations)
		if err != nil {
			return err
		}
		citationsJSON = b
	}
	return s.Store.AppendTurns(ctx, id, []store.Turn{
		{Role: models.RoleUser, Content: question},
		{Role: models.RoleAssistant, Content: answer, Citations: citationsJSON},
	})
}
