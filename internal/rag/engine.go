package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/kitab-ai/kitab/models"
)

// Engine orchestrates coverage gating, evidence assembly, personalization,
// and answer generation for both query modes.
type Engine struct {
	gate          *Gate
	assembler     *Assembler
	answerer      *Answerer
	conversations ConversationStore
	profiles      ProfileStore
	maxHistory    int
	logger        *log.Logger
}

// New wires the engine from its collaborators.
func New(gate *Gate, assembler *Assembler, answerer *Answerer, conversations ConversationStore, profiles ProfileStore, maxHistory int, logger *log.Logger) *Engine {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	return &Engine{
		gate:          gate,
		assembler:     assembler,
		answerer:      answerer,
		conversations: conversations,
		profiles:      profiles,
		maxHistory:    maxHistory,
		logger:        logger,
	}
}

// AnswerFullBook answers a question against the whole corpus. When coverage
// is absent it returns the fixed fallback without invoking the generative
// backend. Turns are appended to the conversation store in submission order.
func (e *Engine) AnswerFullBook(ctx context.Context, question, conversationID, userID string) (AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AnswerResult{}, fmt.Errorf("question must not be empty")
	}

	decision, err := e.gate.Evaluate(ctx, question)
	if err != nil {
		return AnswerResult{}, err
	}
	e.logger.Printf("coverage decision: covered=%t max_similarity=%.3f fragments=%d", decision.Covered, decision.MaxSimilarity, len(decision.Fragments))

	convID, history, err := e.resolveConversation(ctx, conversationID, userID)
	if err != nil {
		return AnswerResult{}, err
	}

	if !decision.Covered {
		result := AnswerResult{
			Text:           NotCoveredMessage,
			IsCovered:      false,
			ConversationID: convID,
		}
		if err := e.conversations.AppendExchange(ctx, convID, question, result.Text, nil); err != nil {
			return AnswerResult{}, fmt.Errorf("append turns: %w", err)
		}
		return result, nil
	}

	instructions := InstructionsFor(ModeFullBook)
	if userID != "" {
		profile, found, err := e.profiles.GetUserProfile(ctx, userID)
		if err != nil {
			e.logger.Printf("profile load failed for %s, answering unpersonalized: %v", userID, err)
		} else if found {
			instructions = Decorate(instructions, &profile)
		}
	}

	evidence := e.assembler.FullBook(decision, history)
	text, err := e.answerer.Generate(ctx, question, evidence, instructions)
	if err != nil {
		return AnswerResult{}, err
	}

	citations := AttachCitations(text, decision.Fragments)
	result := AnswerResult{
		Text:           text,
		Citations:      citations,
		IsCovered:      true,
		ConversationID: convID,
	}
	if err := e.conversations.AppendExchange(ctx, convID, question, text, citations); err != nil {
		return AnswerResult{}, fmt.Errorf("append turns: %w", err)
	}
	return result, nil
}

// AnswerSelectedText answers a question from a user-selected span only. The
// conversation store and similarity index are never touched: the isolation is
// a guarantee, not an optimization. Answers are never personalized or cited.
func (e *Engine) AnswerSelectedText(ctx context.Context, question, selectedText, conversationID string) (AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AnswerResult{}, fmt.Errorf("question must not be empty")
	}

	evidence, err := e.assembler.Selection(selectedText)
	if err != nil {
		return AnswerResult{}, err
	}

	text, err := e.answerer.Generate(ctx, question, evidence, InstructionsFor(ModeSelectedText))
	if err != nil {
		return AnswerResult{}, err
	}

	return AnswerResult{
		Text:      text,
		IsCovered: text != NotInSelectionMessage,
		// Echoed untouched: selected-text exchanges are not persisted, so the
		// id is only a client-side correlation handle.
		ConversationID: conversationID,
	}, nil
}

// resolveConversation reuses the supplied conversation when it exists and is
// a full-book conversation; anything else (missing id, unknown id, or an id
// bound to selected-text mode) starts fresh. This is what resets
// conversational memory across mode transitions.
func (e *Engine) resolveConversation(ctx context.Context, conversationID, userID string) (string, []models.ChatMessage, error) {
	if conversationID != "" {
		mode, found, err := e.conversations.Mode(ctx, conversationID)
		if err != nil {
			return "", nil, fmt.Errorf("load conversation: %w", err)
		}
		if found && mode == string(ModeFullBook) {
			history, err := e.conversations.History(ctx, conversationID, e.maxHistory)
			if err != nil {
				return "", nil, fmt.Errorf("load history: %w", err)
			}
			return conversationID, history, nil
		}
	}
	id, err := e.conversations.Create(ctx, userID, string(ModeFullBook))
	if err != nil {
		return "", nil, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil, nil
}
