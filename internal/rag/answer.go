package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kitab-ai/kitab/models"
)

// InstructionProfile is the model-facing instruction set. System carries the
// grounding constraint; Directives are additive decorations that may never
// alter or weaken it.
type InstructionProfile struct {
	System     string
	Directives []string
}

// Render joins the system constraint with any additive directives.
func (p InstructionProfile) Render() string {
	if len(p.Directives) == 0 {
		return p.System
	}
	return p.System + "\n\n" + strings.Join(p.Directives, "\n\n")
}

// InstructionsFor returns the base instruction set for a mode. The grounding
// constraint and the verbatim fallback phrase differ in wording only; the
// structure is identical.
func InstructionsFor(mode Mode) InstructionProfile {
	if mode == ModeSelectedText {
		return InstructionProfile{
			System: fmt.Sprintf(`You are an assistant helping a reader understand a passage they selected
from a technical book. Base your answers ONLY on the selected text supplied
with each question. If the selection does not contain enough information to
answer, reply with exactly: %q`, NotInSelectionMessage),
		}
	}
	return InstructionProfile{
		System: fmt.Sprintf(`You are an assistant answering questions about a technical book. Base your
answers ONLY on the book context supplied with each question and cite the
sections you used. If the context does not contain enough information to
answer, reply with exactly: %q`, NotCoveredMessage),
	}
}

// Answerer wraps the generative backend with mode-specific instructions.
type Answerer struct {
	generator  Generator
	maxHistory int
}

// NewAnswerer builds the answer service. maxHistory caps how many prior turns
// ride along for continuity (default 20).
func NewAnswerer(generator Generator, maxHistory int) *Answerer {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Answerer{generator: generator, maxHistory: maxHistory}
}

// Generate invokes the backend under the supplied evidence constraint. A
// backend error surfaces as a retryable typed failure, never as the fallback
// phrase: "not covered" and "service unavailable" must stay distinguishable.
func (a *Answerer) Generate(ctx context.Context, question string, evidence EvidenceContext, profile InstructionProfile) (string, error) {
	messages := []models.ChatMessage{{Role: models.RoleSystem, Content: profile.Render()}}

	history := evidence.History
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}
	messages = append(messages, history...)

	messages = append(messages, models.ChatMessage{
		Role:    models.RoleUser,
		Content: evidence.EvidenceBlock() + "\n\nQuestion: " + question,
	})

	text, err := a.generator.ChatCompletion(ctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return strings.TrimSpace(text), nil
}

// AttachCitations maps every evidence fragment whose content substantially
// overlaps the answer into a citation carrying its original similarity as
// relevance. Sections are deduplicated, keeping the highest relevance.
func AttachCitations(answer string, fragments []RetrievedFragment) []SourceCitation {
	answerTerms := significantTerms(answer)
	if len(answerTerms) == 0 {
		return nil
	}

	best := make(map[string]float64)
	var order []string
	for _, f := range fragments {
		if overlapCoefficient(answerTerms, significantTerms(f.Content)) < 0.3 {
			continue
		}
		if prev, ok := best[f.Section]; ok {
			if f.Similarity > prev {
				best[f.Section] = f.Similarity
			}
			continue
		}
		best[f.Section] = f.Similarity
		order = append(order, f.Section)
	}

	var citations []SourceCitation
	for _, section := range order {
		citations = append(citations, SourceCitation{Section: section, Relevance: best[section]})
	}
	return citations
}

// significantTerms lowercases the text and keeps distinct words longer than
// three characters.
func significantTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(word) > 3 {
			terms[word] = struct{}{}
		}
	}
	return terms
}

// overlapCoefficient is |A ∩ B| / min(|A|, |B|).
func overlapCoefficient(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var shared int
	for term := range small {
		if _, ok := large[term]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
