package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestClaimTranslationWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
INSERT INTO translations (section_id, language, status, source_hash, created_at, updated_at)
VALUES ($1,$2,'pending',$3,NOW(),NOW())
ON CONFLICT (section_id, language) DO UPDATE SET
  status        = 'pending',
  content       = NULL,
  error_message = NULL,
  source_hash   = EXCLUDED.source_hash,
  created_at    = NOW(),
  updated_at    = NOW(),
  completed_at  = NULL,
  expires_at    = NULL
WHERE translations.status = 'failed'
   OR (translations.status = 'completed' AND translations.expires_at IS NOT NULL AND translations.expires_at <= NOW())
RETURNING true
`)
	mock.ExpectQuery(query).
		WithArgs("ch1", "ur", "hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

	claimed, err := st.ClaimTranslation(context.Background(), "ch1", "ur", "hash-1")
	if err != nil {
		t.Fatalf("ClaimTranslation: %v", err)
	}
	if !claimed {
		t.Fatal("claimed = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimTranslationLosesWithoutError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	// the conditional upsert returns no row when another claimant holds the key
	mock.ExpectQuery("INSERT INTO translations").
		WithArgs("ch1", "ur", "hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}))

	claimed, err := st.ClaimTranslation(context.Background(), "ch1", "ur", "hash-1")
	if err != nil {
		t.Fatalf("losing a claim must not be an error: %v", err)
	}
	if claimed {
		t.Fatal("claimed = true, want false")
	}
}

func TestClaimTranslationValidatesKey(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	if _, err := st.ClaimTranslation(context.Background(), "", "ur", "h"); err == nil {
		t.Fatal("empty section_id must be rejected")
	}
}

func TestSearchFragments(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
SELECT id, section, content, 1 - (embedding <=> $1::vector) AS similarity
FROM fragments
ORDER BY embedding <=> $1::vector
LIMIT $2
`)
	mock.ExpectQuery(query).
		WithArgs("[0.1,0.2]", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section", "content", "similarity"}).
			AddRow("f1", "ch1", "goroutines", 0.91).
			AddRow("f2", "ch2", "channels", 0.84))

	hits, err := st.SearchFragments(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("SearchFragments: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Section != "ch1" || hits[0].Similarity != 0.91 {
		t.Fatalf("first hit = %+v", hits[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchFragmentsEmptyVector(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	if _, err := st.SearchFragments(context.Background(), nil, 5); err == nil {
		t.Fatal("empty vector must be rejected")
	}
}

func TestGetTranslationAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery("SELECT section_id, language, status").
		WithArgs("ch1", "ur").
		WillReturnRows(sqlmock.NewRows([]string{
			"section_id", "language", "status", "content", "error_message",
			"source_hash", "created_at", "updated_at", "completed_at", "expires_at",
		}))

	_, found, err := st.GetTranslation(context.Background(), "ch1", "ur")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if found {
		t.Fatal("found = true for a missing key")
	}
}

func TestAppendTurnsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	insert := regexp.QuoteMeta(`
INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())
`)
	mock.ExpectBegin()
	mock.ExpectPrepare(insert)
	mock.ExpectExec(insert).
		WithArgs(sqlmock.AnyArg(), "conv-1", "user", "question", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs(sqlmock.AnyArg(), "conv-1", "assistant", "answer", []byte(`[{"section":"ch1","relevance":0.9}]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	turns := []Turn{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer", Citations: []byte(`[{"section":"ch1","relevance":0.9}]`)},
	}
	if err := st.AppendTurns(context.Background(), "conv-1", turns); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteExpiredTranslations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec("DELETE FROM translations").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := st.DeleteExpiredTranslations(context.Background())
	if err != nil {
		t.Fatalf("DeleteExpiredTranslations: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}

func TestTranslationJobExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fresh := TranslationJob{Status: TranslationStatusCompleted}
	fresh.ExpiresAt.Valid = true
	fresh.ExpiresAt.Time = now.Add(time.Hour)
	if fresh.Expired(now) {
		t.Fatal("job with a future deadline must not be expired")
	}

	stale := fresh
	stale.ExpiresAt.Time = now.Add(-time.Hour)
	if !stale.Expired(now) {
		t.Fatal("job past its deadline must be expired")
	}

	pending := TranslationJob{Status: TranslationStatusPending}
	if pending.Expired(now) {
		t.Fatal("only completed jobs expire")
	}
}
