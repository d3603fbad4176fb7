package translation

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitab-ai/kitab/internal/store"
)

// memJobs is an in-memory JobStore with the same claim semantics the SQL
// upsert enforces: the conditional write succeeds only for absent, failed, or
// completed-but-expired keys, atomically.
type memJobs struct {
	mu   sync.Mutex
	rows map[string]*store.TranslationJob
	now  func() time.Time
}

func newMemJobs(now func() time.Time) *memJobs {
	return &memJobs{rows: map[string]*store.TranslationJob{}, now: now}
}

func key(sectionID, language string) string { return sectionID + "/" + language }

func (m *memJobs) GetTranslation(ctx context.Context, sectionID, language string) (store.TranslationJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key(sectionID, language)]
	if !ok {
		return store.TranslationJob{}, false, nil
	}
	return *row, true, nil
}

func (m *memJobs) ClaimTranslation(ctx context.Context, sectionID, language, sourceHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key(sectionID, language)]
	if ok {
		reclaimable := row.Status == store.TranslationStatusFailed || row.Expired(m.now())
		if !reclaimable {
			return false, nil
		}
	}
	m.rows[key(sectionID, language)] = &store.TranslationJob{
		SectionID:  sectionID,
		Language:   language,
		Status:     store.TranslationStatusPending,
		SourceHash: sourceHash,
		CreatedAt:  m.now(),
		UpdatedAt:  m.now(),
	}
	return true, nil
}

func (m *memJobs) MarkTranslationGenerating(ctx context.Context, sectionID, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[key(sectionID, language)]; ok && row.Status == store.TranslationStatusPending {
		row.Status = store.TranslationStatusGenerating
	}
	return nil
}

func (m *memJobs) CompleteTranslation(ctx context.Context, sectionID, language, content string, expiresAt time.Time) error {
	// database/sql refuses writes on a done context; mirror that
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[key(sectionID, language)]
	row.Status = store.TranslationStatusCompleted
	row.Content = sql.NullString{String: content, Valid: true}
	row.ErrorMessage = sql.NullString{}
	row.CompletedAt = sql.NullTime{Time: m.now(), Valid: true}
	row.ExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
	return nil
}

func (m *memJobs) FailTranslation(ctx context.Context, sectionID, language, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[key(sectionID, language)]
	row.Status = store.TranslationStatusFailed
	row.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	return nil
}

type countingTranslator struct {
	calls int32
	err   error
	delay time.Duration
}

func (c *countingTranslator) Translate(ctx context.Context, content, targetLanguage string) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return "", c.err
	}
	return "ترجمہ: " + content, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(translator Translator, ttl time.Duration) (*Cache, *memJobs, *clock) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	jobs := newMemJobs(clk.Now)
	c := NewCache(jobs, translator, ttl, time.Minute, log.New(io.Discard, "", 0))
	c.now = clk.Now
	return c, jobs, clk
}

func TestRequestGeneratesAndCompletes(t *testing.T) {
	translator := &countingTranslator{}
	cache, _, _ := newTestCache(translator, time.Hour)

	status, err := cache.Request(context.Background(), "ch1", "ur", "some chapter text")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if status.Status != StatusGenerating {
		t.Fatalf("status = %s, want generating", status.Status)
	}
	if status.ETASeconds == nil || *status.ETASeconds != 30 {
		t.Fatalf("eta = %v, want 30", status.ETASeconds)
	}

	cache.Flush()

	got, err := cache.Get(context.Background(), "ch1", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Content != "ترجمہ: some chapter text" {
		t.Fatalf("content = %q", got.Content)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed status must carry completed_at")
	}
}

func TestConcurrentRequestsSingleGeneration(t *testing.T) {
	translator := &countingTranslator{delay: 10 * time.Millisecond}
	cache, _, _ := newTestCache(translator, time.Hour)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Request(context.Background(), "ch2", "ur", "chapter two text"); err != nil {
				t.Errorf("Request: %v", err)
			}
		}()
	}
	wg.Wait()
	cache.Flush()

	if got := atomic.LoadInt32(&translator.calls); got != 1 {
		t.Fatalf("translator calls = %d, want exactly 1 for %d concurrent requests", got, n)
	}
	status, err := cache.Get(context.Background(), "ch2", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", status.Status)
	}
}

func TestCompletedServedWithoutRegeneration(t *testing.T) {
	translator := &countingTranslator{}
	cache, _, _ := newTestCache(translator, time.Hour)

	if _, err := cache.Request(context.Background(), "ch3", "ur", "text"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	cache.Flush()

	status, err := cache.Request(context.Background(), "ch3", "ur", "text")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed from cache", status.Status)
	}
	if got := atomic.LoadInt32(&translator.calls); got != 1 {
		t.Fatalf("translator calls = %d, want 1", got)
	}
}

func TestExpiredCompletedReportedAbsentAndReclaimable(t *testing.T) {
	translator := &countingTranslator{}
	cache, _, clk := newTestCache(translator, time.Hour)

	if _, err := cache.Request(context.Background(), "ch4", "ur", "text"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	cache.Flush()

	clk.Advance(2 * time.Hour)

	status, err := cache.Get(context.Background(), "ch4", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusAbsent {
		t.Fatalf("status = %s, want absent after expiry", status.Status)
	}
	if status.Content != "" {
		t.Fatal("stale content must never be served")
	}

	if _, err := cache.Request(context.Background(), "ch4", "ur", "text"); err != nil {
		t.Fatalf("Request after expiry: %v", err)
	}
	cache.Flush()
	if got := atomic.LoadInt32(&translator.calls); got != 2 {
		t.Fatalf("translator calls = %d, want a second generation after expiry", got)
	}
}

func TestFailedJobRetainsErrorAndReclaims(t *testing.T) {
	translator := &countingTranslator{err: errors.New("model unavailable")}
	cache, _, _ := newTestCache(translator, time.Hour)

	if _, err := cache.Request(context.Background(), "ch5", "ur", "text"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	cache.Flush()

	status, err := cache.Get(context.Background(), "ch5", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", status.Status)
	}
	if status.ErrorMessage != "model unavailable" {
		t.Fatalf("error_message = %q, want the diagnostic retained", status.ErrorMessage)
	}

	translator.err = nil
	if _, err := cache.Request(context.Background(), "ch5", "ur", "text"); err != nil {
		t.Fatalf("Request after failure: %v", err)
	}
	cache.Flush()

	status, err = cache.Get(context.Background(), "ch5", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed after reclaim", status.Status)
	}
}

// blockingTranslator holds until the generation context expires, the way a
// hung backend does.
type blockingTranslator struct{}

func (blockingTranslator) Translate(ctx context.Context, content, targetLanguage string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestTimedOutGenerationTransitionsToFailed(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	jobs := newMemJobs(clk.Now)
	cache := NewCache(jobs, blockingTranslator{}, time.Hour, 20*time.Millisecond, log.New(io.Discard, "", 0))
	cache.now = clk.Now

	if _, err := cache.Request(context.Background(), "ch9", "ur", "text"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	cache.Flush()

	status, err := cache.Get(context.Background(), "ch9", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusFailed {
		t.Fatalf("status = %s, want failed after a timed-out generation", status.Status)
	}
	if status.ErrorMessage == "" {
		t.Fatal("timed-out job must retain a diagnostic")
	}

	// the key must be reclaimable, not stuck generating
	claimed, err := jobs.ClaimTranslation(context.Background(), "ch9", "ur", "h")
	if err != nil || !claimed {
		t.Fatalf("claimed = %t, err = %v; timed-out key must be reclaimable", claimed, err)
	}
}

// vanishingJobs loses every claim and reports the row gone on re-read.
type vanishingJobs struct{ memJobs }

func (v *vanishingJobs) ClaimTranslation(ctx context.Context, sectionID, language, sourceHash string) (bool, error) {
	return false, nil
}

func (v *vanishingJobs) GetTranslation(ctx context.Context, sectionID, language string) (store.TranslationJob, bool, error) {
	return store.TranslationJob{}, false, nil
}

func TestLostClaimWithVanishedRowReportsAbsent(t *testing.T) {
	jobs := &vanishingJobs{}
	cache := NewCache(jobs, &countingTranslator{}, time.Hour, time.Minute, log.New(io.Discard, "", 0))

	status, err := cache.Request(context.Background(), "ch10", "ur", "text")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if status.Status != StatusAbsent {
		t.Fatalf("status = %q, want absent when the row vanished after a lost claim", status.Status)
	}
	if status.SectionID != "ch10" || status.Language != "ur" {
		t.Fatalf("status = %+v, want the key echoed", status)
	}
}

func TestRequestWithoutSourceText(t *testing.T) {
	cache, _, _ := newTestCache(&countingTranslator{}, time.Hour)
	_, err := cache.Request(context.Background(), "ch6", "ur", "   ")
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
}

func TestUnsupportedLanguageRejectedUpFront(t *testing.T) {
	cache, _, _ := newTestCache(&countingTranslator{}, time.Hour)
	if _, err := cache.Get(context.Background(), "ch7", "fr"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("Get err = %v, want ErrUnsupportedLanguage", err)
	}
	if _, err := cache.Request(context.Background(), "ch7", "fr", "text"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("Request err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestGetNeverStartsGeneration(t *testing.T) {
	translator := &countingTranslator{}
	cache, _, _ := newTestCache(translator, time.Hour)

	status, err := cache.Get(context.Background(), "ch8", "ur")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status.Status != StatusAbsent {
		t.Fatalf("status = %s, want absent", status.Status)
	}
	cache.Flush()
	if atomic.LoadInt32(&translator.calls) != 0 {
		t.Fatal("Get must not drive a generation")
	}
}
