package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kitab-ai/kitab/models"
)

// ErrUnsupportedLanguage is returned for target languages the agent cannot
// produce.
var ErrUnsupportedLanguage = errors.New("unsupported target language")

// SupportedLanguages maps language codes to display names. Urdu is the only
// target shipped today.
var SupportedLanguages = map[string]string{
	"ur": "Urdu",
}

// Generator produces text from a model-facing conversation.
type Generator interface {
	ChatCompletion(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Agent translates book sections, chunking long content at paragraph
// boundaries to stay within backend limits.
type Agent struct {
	generator Generator
	chunkSize int
}

// NewAgent builds the translation agent. chunkSize defaults to 4000
// characters.
func NewAgent(generator Generator, chunkSize int) *Agent {
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	return &Agent{generator: generator, chunkSize: chunkSize}
}

func systemPrompt(language string) string {
	return fmt.Sprintf(`You are an expert translator specializing in translating technical book
content from English to %s. Produce natural, fluent %s while preserving code
blocks, technical terms, and markdown formatting. Output only the
translation, no explanations.`, language, language)
}

// Translate renders content in the target language. Content longer than the
// chunk size is split at paragraph boundaries, translated sequentially, and
// rejoined.
func (a *Agent) Translate(ctx context.Context, content, targetLanguage string) (string, error) {
	name, ok := SupportedLanguages[targetLanguage]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, targetLanguage)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}

	if len(content) <= a.chunkSize {
		return a.translateChunk(ctx, content, name)
	}

	chunks := splitParagraphs(content, a.chunkSize)
	translated := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out, err := a.translateChunk(ctx, chunk, name)
		if err != nil {
			return "", err
		}
		translated = append(translated, out)
	}
	return strings.Join(translated, "\n\n"), nil
}

func (a *Agent) translateChunk(ctx context.Context, content, languageName string) (string, error) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt(languageName)},
		{Role: models.RoleUser, Content: content},
	}
	out, err := a.generator.ChatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// splitParagraphs groups paragraphs into chunks of at most chunkSize
// characters, keeping paragraphs intact. A single paragraph longer than
// chunkSize becomes its own chunk.
func splitParagraphs(content string, chunkSize int) []string {
	paragraphs := strings.Split(content, "\n\n")
	var (
		chunks  []string
		current []string
		size    int
	)
	for _, para := range paragraphs {
		if size+len(para) > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = []string{para}
			size = len(para)
			continue
		}
		current = append(current, para)
		size += len(para)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}
