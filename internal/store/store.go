package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kitab-ai/kitab/models"
)

// Store wraps the Postgres connection shared by the engine and the
// translation cache.
type Store struct {
	DB *sql.DB
}

// Translation job statuses persisted in the translations table. A key with no
// row is implicitly "absent".
const (
	TranslationStatusPending    = "pending"
	TranslationStatusGenerating = "generating"
	TranslationStatusCompleted  = "completed"
	TranslationStatusFailed     = "failed"
)

// Conversation modes. A conversation is bound to exactly one mode for its
// whole lifetime; presenting its id under the other mode starts a new one.
const (
	ModeFullBook     = "full_book"
	ModeSelectedText = "selected_text"
)

// FragmentHit is a corpus fragment returned by the similarity index with its
// score already converted from cosine distance to similarity in [0,1].
type FragmentHit struct {
	ID         string
	Section    string
	Content    string
	Similarity float64
}

// Conversation is a persisted exchange keyed by id.
type Conversation struct {
	ID        string
	UserID    sql.NullString
	Mode      string
	CreatedAt time.Time
}

// Turn is a single persisted message within a conversation.
type Turn struct {
	Role      string
	Content   string
	Citations []byte
}

// TranslationJob is a row of the translations table.
type TranslationJob struct {
	SectionID    string
	Language     string
	Status       string
	Content      sql.NullString
	ErrorMessage sql.NullString
	SourceHash   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  sql.NullTime
	ExpiresAt    sql.NullTime
}

// Expired reports whether a completed job has outlived its freshness deadline.
func (j TranslationJob) Expired(now time.Time) bool {
	return j.Status == TranslationStatusCompleted && j.ExpiresAt.Valid && !j.ExpiresAt.Time.After(now)
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Fragment index operations

// UpsertFragment stores one corpus fragment with its embedding. The ingestion
// tool is the only writer; the engine treats the table as read-only.
func (s *Store) UpsertFragment(ctx context.Context, id, section, content string, vector []float32) error {
	if id == "" {
		id = uuid.NewString()
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO fragments (id, section, content, embedding, created_at)
VALUES ($1,$2,$3,$4::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  section   = EXCLUDED.section,
  content   = EXCLUDED.content,
  embedding = EXCLUDED.embedding;
`, id, section, content, vecLiteral)
	return err
}

// SearchFragments returns the closest fragments for the supplied vector,
// ordered by descending similarity. Ties keep the index order (stable sort
// in SQL via the distance ordering itself).
func (s *Store) SearchFragments(ctx context.Context, vector []float32, topK int) ([]FragmentHit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, section, content, 1 - (embedding <=> $1::vector) AS similarity
FROM fragments
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vecLiteral, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []FragmentHit
	for rows.Next() {
		var h FragmentHit
		if err := rows.Scan(&h.ID, &h.Section, &h.Content, &h.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// encodeVectorLiteral renders a float32 slice as a pgvector literal like
// [0.1,0.2,0.3].
func encodeVectorLiteral(vector []float32) (string, error) {
	if len(vector) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// Conversation operations

// GetConversation fetches a conversation by id. The second return value
// reports whether it exists.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, bool, error) {
	var c Conversation
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, mode, created_at FROM conversations WHERE id = $1
`, id).Scan(&c.ID, &c.UserID, &c.Mode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, err
	}
	return c, true, nil
}

// CreateConversation inserts a new conversation and returns its id.
func (s *Store) CreateConversation(ctx context.Context, userID, mode string) (string, error) {
	id := uuid.NewString()
	var uid sql.NullString
	if userID != "" {
		uid = sql.NullString{String: userID, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO conversations (id, user_id, mode, created_at) VALUES ($1,$2,$3,NOW())
`, id, uid, mode)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ConversationHistory returns the most recent turns of a conversation in
// submission order, capped at limit.
func (s *Store) ConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT role, content FROM (
  SELECT role, content, created_at FROM messages
  WHERE conversation_id = $1
  ORDER BY created_at DESC
  LIMIT $2
) recent ORDER BY created_at ASC
`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// AppendTurns persists the supplied turns in one transaction, preserving the
// submission order within the conversation.
func (s *Store) AppendTurns(ctx context.Context, conversationID string, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())
`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range turns {
		var citations interface{}
		if len(t.Citations) > 0 {
			citations = t.Citations
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), conversationID, t.Role, t.Content, citations); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Translation operations

// GetTranslation fetches a translation job by its (section, language) key.
func (s *Store) GetTranslation(ctx context.Context, sectionID, language string) (TranslationJob, bool, error) {
	var j TranslationJob
	err := s.DB.QueryRowContext(ctx, `
SELECT section_id, language, status, content, error_message, source_hash, created_at, updated_at, completed_at, expires_at
FROM translations
WHERE section_id = $1 AND language = $2
`, sectionID, language).Scan(
		&j.SectionID, &j.Language, &j.Status, &j.Content, &j.ErrorMessage,
		&j.SourceHash, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt, &j.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return TranslationJob{}, false, nil
	}
	if err != nil {
		return TranslationJob{}, false, err
	}
	return j, true, nil
}

// ClaimTranslation attempts to take exclusive generation rights for a
// (section, language) key. The upsert succeeds only when the key is absent,
// failed, or completed-but-expired; exactly one of N concurrent claimants
// observes true.
func (s *Store) ClaimTranslation(ctx context.Context, sectionID, language, sourceHash string) (bool, error) {
	if sectionID == "" || language == "" {
		return false, fmt.Errorf("section_id and language must be provided")
	}
	var claimed bool
	err := s.DB.QueryRowContext(ctx, `
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
`, sectionID, language, sourceHash).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// MarkTranslationGenerating moves a claimed (pending) job into generating.
func (s *Store) MarkTranslationGenerating(ctx context.Context, sectionID, language string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE translations SET status = 'generating', updated_at = NOW()
WHERE section_id = $1 AND language = $2 AND status = 'pending'
`, sectionID, language)
	return err
}

// CompleteTranslation stores the generated content with a freshness deadline.
func (s *Store) CompleteTranslation(ctx context.Context, sectionID, language, content string, expiresAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE translations SET
  status       = 'completed',
  content      = $3,
  error_message = NULL,
  updated_at   = NOW(),
  completed_at = NOW(),
  expires_at   = $4
WHERE section_id = $1 AND language = $2
`, sectionID, language, content, expiresAt)
	return err
}

// FailTranslation marks a job failed, retaining the error for diagnostics.
// A failed key is reclaimable on the next request.
func (s *Store) FailTranslation(ctx context.Context, sectionID, language, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE translations SET
  status        = 'failed',
  error_message = $3,
  updated_at    = NOW()
WHERE section_id = $1 AND language = $2
`, sectionID, language, errMsg)
	return err
}

// DeleteExpiredTranslations removes completed rows past their freshness
// deadline. The read path already treats them as absent; this is hygiene.
func (s *Store) DeleteExpiredTranslations(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
DELETE FROM translations
WHERE status = 'completed' AND expires_at IS NOT NULL AND expires_at <= NOW()
`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// User profile operations

// GetUserProfile loads a reader's profile. Missing profiles report found=false
// rather than an error so anonymous flows stay error-free.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (models.UserProfile, bool, error) {
	var (
		p        models.UserProfile
		sections pq.StringArray
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT user_id, experience_level, preferred_language, sections_read, updated_at
FROM user_profiles
WHERE user_id = $1
`, userID).Scan(&p.UserID, (*string)(&p.ExperienceLevel), &p.PreferredLanguage, &sections, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, false, nil
	}
	if err != nil {
		return models.UserProfile{}, false, err
	}
	p.SectionsRead = []string(sections)
	return p, true, nil
}

// MarkSectionRead appends a section to the reader's history if not present.
func (s *Store) MarkSectionRead(ctx context.Context, userID, sectionID string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE user_profiles SET
  sections_read = array_append(sections_read, $2),
  updated_at    = NOW()
WHERE user_id = $1 AND NOT ($2 = ANY(sections_read))
`, userID, sectionID)
	return err
}

// MarshalCitations renders a citation list for jsonb storage.
func MarshalCitations(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal citations: %w", err)
	}
	return b, nil
}
