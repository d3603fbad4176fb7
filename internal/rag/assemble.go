package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kitab-ai/kitab/models"
)

// Assembler builds the evidence payload for a generation call. Exactly one of
// the two modes applies per query.
type Assembler struct {
	minSelectionChars int
	maxSelectionChars int
}

// NewAssembler builds the assembler with selection length bounds (defaults 10
// and 50000 characters).
func NewAssembler(minSelectionChars, maxSelectionChars int) *Assembler {
	if minSelectionChars <= 0 {
		minSelectionChars = 10
	}
	if maxSelectionChars <= 0 {
		maxSelectionChars = 50000
	}
	return &Assembler{minSelectionChars: minSelectionChars, maxSelectionChars: maxSelectionChars}
}

// FullBook assembles gated retrieval results plus prior turns. The caller is
// responsible for short-circuiting before this when coverage is absent.
func (a *Assembler) FullBook(decision CoverageDecision, history []models.ChatMessage) EvidenceContext {
	return EvidenceContext{
		Mode:      ModeFullBook,
		Fragments: decision.Fragments,
		History:   history,
	}
}

// Selection assembles an isolated selected-text context. Conversation history
// and the similarity index are deliberately not consulted; the selection is
// the entire evidence. Length bounds are checked before any external call.
// Bounds count characters, not bytes: Urdu selections are two bytes per
// letter and must not hit the limits early.
func (a *Assembler) Selection(selectedText string) (EvidenceContext, error) {
	trimmed := strings.TrimSpace(selectedText)
	runes := utf8.RuneCountInString(trimmed)
	if runes < a.minSelectionChars {
		return EvidenceContext{}, fmt.Errorf("%w: selection shorter than %d characters", ErrInvalidSelection, a.minSelectionChars)
	}
	if runes > a.maxSelectionChars {
		return EvidenceContext{}, fmt.Errorf("%w: selection longer than %d characters", ErrInvalidSelection, a.maxSelectionChars)
	}
	return EvidenceContext{
		Mode:      ModeSelectedText,
		Selection: trimmed,
	}, nil
}

// EvidenceBlock renders the evidence the model is permitted to draw on.
func (e EvidenceContext) EvidenceBlock() string {
	if e.Mode == ModeSelectedText {
		return fmt.Sprintf(`Here is the text that the user has selected and wants to discuss:

<selected_text>
%s
</selected_text>

Answer the question based ONLY on the selected text above. Do not use any
knowledge from outside the selection. If the question asks about something
not mentioned in it, reply with exactly: %q`, e.Selection, NotInSelectionMessage)
	}

	var parts []string
	for i, f := range e.Fragments {
		parts = append(parts, fmt.Sprintf("--- Source %d [%s] ---\n%s", i+1, f.Section, f.Content))
	}
	return fmt.Sprintf(`Here is the relevant content from the book for answering the question:

<book_context>
%s
</book_context>

Answer the question based ONLY on the context above and cite the source
sections you used. If the answer is not in the context, reply with exactly: %q`,
		strings.Join(parts, "\n\n"), NotCoveredMessage)
}
