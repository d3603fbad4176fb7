package rag

import "errors"

// Failure taxonomy surfaced to the API layer. Infrastructure failures are
// never converted into the "not covered" fallback; that phrase is reserved
// for genuine coverage gaps.
var (
	ErrEmbeddingUnavailable  = errors.New("embedding backend unavailable")
	ErrIndexUnavailable      = errors.New("similarity index unavailable")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	ErrGenerationTimeout     = errors.New("generation backend timed out")
	ErrInvalidSelection      = errors.New("selected text outside allowed length bounds")
)
