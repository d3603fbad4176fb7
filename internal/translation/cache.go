package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kitab-ai/kitab/internal/store"
)

// ErrSourceMissing is returned when a translation is requested without source
// text for a key that needs generating.
var ErrSourceMissing = errors.New("translation source text missing")

// Job states reported to callers. StatusAbsent covers both never-requested
// keys and completed rows past their freshness deadline.
const (
	StatusAbsent     = "absent"
	StatusPending    = store.TranslationStatusPending
	StatusGenerating = store.TranslationStatusGenerating
	StatusCompleted  = store.TranslationStatusCompleted
	StatusFailed     = store.TranslationStatusFailed
)

// statusWriteTimeout bounds the terminal status write after a generation run.
const statusWriteTimeout = 30 * time.Second

// Best-effort remaining-time estimates per status; a heuristic, not a
// guarantee.
var etaSeconds = map[string]int{
	StatusPending:    60,
	StatusGenerating: 30,
}

// Status is the caller-facing view of a translation job.
type Status struct {
	SectionID    string  `json:"section_id"`
	Language     string  `json:"language"`
	Status       string  `json:"status"`
	Content      string  `json:"content,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	ETASeconds   *int    `json:"eta_seconds,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

// JobStore is the persistence surface of the state machine. The claim must be
// a single atomic conditional write.
type JobStore interface {
	GetTranslation(ctx context.Context, sectionID, language string) (store.TranslationJob, bool, error)
	ClaimTranslation(ctx context.Context, sectionID, language, sourceHash string) (bool, error)
	MarkTranslationGenerating(ctx context.Context, sectionID, language string) error
	CompleteTranslation(ctx context.Context, sectionID, language, content string, expiresAt time.Time) error
	FailTranslation(ctx context.Context, sectionID, language, errMsg string) error
}

// Translator renders source text in a target language.
type Translator interface {
	Translate(ctx context.Context, content, targetLanguage string) (string, error)
}

// Cache is the translation cache state machine. For every (section, language)
// key it enforces at most one in-flight generation: concurrent requests for
// the same key observe the same job instead of spawning duplicates.
//
// States: absent -> pending -> generating -> {completed, failed};
// completed -> absent on expiry; failed -> pending on the next claim.
type Cache struct {
	jobs       JobStore
	translator Translator
	ttl        time.Duration
	genTimeout time.Duration
	logger     *log.Logger

	wg sync.WaitGroup

	now func() time.Time
}

// NewCache builds the cache. ttl bounds how long completed content stays
// fresh; genTimeout bounds a single generation run.
func NewCache(jobs JobStore, translator Translator, ttl, genTimeout time.Duration, logger *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if genTimeout <= 0 {
		genTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[XLATE] ", log.LstdFlags)
	}
	return &Cache{
		jobs:       jobs,
		translator: translator,
		ttl:        ttl,
		genTimeout: genTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Get reports the current job state without driving a generation. An expired
// completed row is reported as absent; stale content is never served.
func (c *Cache) Get(ctx context.Context, sectionID, language string) (Status, error) {
	if _, ok := SupportedLanguages[language]; !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	job, found, err := c.jobs.GetTranslation(ctx, sectionID, language)
	if err != nil {
		return Status{}, fmt.Errorf("load translation: %w", err)
	}
	if !found || job.Expired(c.now()) {
		return Status{SectionID: sectionID, Language: language, Status: StatusAbsent}, nil
	}
	return c.statusFromJob(job), nil
}

// Request returns cached content when fresh, reports in-flight jobs for
// polling, or claims the key and starts a generation. Only the first of N
// concurrent claimants proceeds to generation; the rest observe the claimed
// job.
func (c *Cache) Request(ctx context.Context, sectionID, language, sourceText string) (Status, error) {
	if _, ok := SupportedLanguages[language]; !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	if sectionID == "" {
		return Status{}, fmt.Errorf("section id must not be empty")
	}

	job, found, err := c.jobs.GetTranslation(ctx, sectionID, language)
	if err != nil {
		return Status{}, fmt.Errorf("load translation: %w", err)
	}
	if found {
		switch {
		case job.Status == store.TranslationStatusCompleted && !job.Expired(c.now()):
			return c.statusFromJob(job), nil
		case job.Status == store.TranslationStatusPending, job.Status == store.TranslationStatusGenerating:
			return c.statusFromJob(job), nil
		}
	}

	// Key is absent, failed, or expired: try to claim it.
	if strings.TrimSpace(sourceText) == "" {
		return Status{}, fmt.Errorf("%w: section %s", ErrSourceMissing, sectionID)
	}
	claimed, err := c.jobs.ClaimTranslation(ctx, sectionID, language, hashSource(sourceText))
	if err != nil {
		return Status{}, fmt.Errorf("claim translation: %w", err)
	}
	if !claimed {
		// Lost the race; report whatever the winner's job looks like now. The
		// row can vanish between claim and re-read (sweeper, manual delete),
		// in which case the key is simply absent again.
		job, found, err := c.jobs.GetTranslation(ctx, sectionID, language)
		if err != nil {
			return Status{}, fmt.Errorf("load translation: %w", err)
		}
		if !found {
			return Status{SectionID: sectionID, Language: language, Status: StatusAbsent}, nil
		}
		return c.statusFromJob(job), nil
	}

	if err := c.jobs.MarkTranslationGenerating(ctx, sectionID, language); err != nil {
		return Status{}, fmt.Errorf("mark generating: %w", err)
	}

	// Detached from the request context: an abandoned poller must not cancel
	// a generation other callers may be waiting on.
	c.wg.Add(1)
	go c.generate(sectionID, language, sourceText)

	eta := etaSeconds[StatusGenerating]
	return Status{
		SectionID:  sectionID,
		Language:   language,
		Status:     StatusGenerating,
		ETASeconds: &eta,
	}, nil
}

// Flush blocks until all in-flight generations finish.
func (c *Cache) Flush() { c.wg.Wait() }

func (c *Cache) generate(sectionID, language, sourceText string) {
	defer c.wg.Done()
	genCtx, cancel := context.WithTimeout(context.Background(), c.genTimeout)
	content, err := c.translator.Translate(genCtx, sourceText, language)
	cancel()

	// The generation context may already be done (timeout is the common
	// failure here) and database/sql refuses writes on a done context. The
	// status transition must land regardless, or the key stays generating
	// forever and can never be reclaimed.
	writeCtx, writeCancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer writeCancel()

	if err != nil {
		c.logger.Printf("generation failed for %s/%s: %v", sectionID, language, err)
		if failErr := c.jobs.FailTranslation(writeCtx, sectionID, language, err.Error()); failErr != nil {
			c.logger.Printf("record failure for %s/%s: %v", sectionID, language, failErr)
		}
		return
	}
	if err := c.jobs.CompleteTranslation(writeCtx, sectionID, language, content, c.now().Add(c.ttl)); err != nil {
		c.logger.Printf("persist translation for %s/%s: %v", sectionID, language, err)
	}
}

func (c *Cache) statusFromJob(job store.TranslationJob) Status {
	s := Status{
		SectionID: job.SectionID,
		Language:  job.Language,
		Status:    job.Status,
	}
	switch job.Status {
	case store.TranslationStatusCompleted:
		s.Content = job.Content.String
		if job.CompletedAt.Valid {
			formatted := job.CompletedAt.Time.UTC().Format(time.RFC3339)
			s.CompletedAt = &formatted
		}
	case store.TranslationStatusFailed:
		// Failed attempts keep their error for diagnostics; the key itself is
		// reclaimable on the next request.
		s.ErrorMessage = job.ErrorMessage.String
	}
	if eta, ok := etaSeconds[job.Status]; ok {
		etaCopy := eta
		s.ETASeconds = &etaCopy
	}
	return s
}

func hashSource(sourceText string) string {
	sum := sha256.Sum256([]byte(sourceText))
	return hex.EncodeToString(sum[:])
}
