package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/deepresearch/config"
)

// Session lifecycle statuses.
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusError     = "error"
)

// DefaultEmbeddingDimensions indicates the expected length of vectors stored
// in pgvector columns.
const DefaultEmbeddingDimensions = 1536

// Store is the durable record of research runs: sessions, scraped sources
// with their analyses and embeddings, reports, and the content-addressed
// embedding cache.
type Store struct {
	DB *sql.DB
}

// SessionRecord is one end-to-end research run.
type SessionRecord struct {
	ID        string
	Query     string
	Status    string
	Metadata  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSummary is a session with aggregate child counts, for listings.
type SessionSummary struct {
	SessionRecord
	SourceCount int
	ReportCount int
}

// SourceRecord is a scraped source plus its analysis and optional embedding.
type SourceRecord struct {
	ID          string
	SessionID   string
	URL         string
	Domain      string
	Title       string
	Description string
	Content     string
	WordCount   int
	SearchTerm  string
	Relevance   int
	Credibility int
	Summary     string
	KeyPoints   []string
	Insights    []string
	Topics      []string
	Embedding   []float32
	ScrapedAt   time.Time
	CreatedAt   time.Time
}

// ReportRecord is the final narrative artifact of a successful session.
type ReportRecord struct {
	ID            string
	SessionID     string
	Query         string
	Title         string
	Content       string
	SourceCount   int
	AnalysisCount int
	CreatedAt     time.Time
}

// EmbeddingCacheRecord maps a text fingerprint to a previously computed
// vector. Upserts are last-writer-wins so a model migration can overwrite
// stale vectors under the same fingerprint.
type EmbeddingCacheRecord struct {
	Fingerprint string
	Vector      []float32
	Preview     string
	Model       string
	UpdatedAt   time.Time
}

// SourceSearchResult is one nearest-neighbor hit over stored source
// embeddings. Similarity is 1 - cosine distance.
type SourceSearchResult struct {
	SourceID   string
	SessionID  string
	URL        string
	Title      string
	Summary    string
	Similarity float64
	CreatedAt  time.Time
}

// SessionDetail is a session with all of its children.
type SessionDetail struct {
	Session SessionRecord
	Sources []SourceRecord
	Reports []ReportRecord
}

// New constructs the Store from storage configuration.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
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

// CreateSession inserts a new pending research session.
func (s *Store) CreateSession(ctx context.Context, id, query string, metadata map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("session id required")
	}
	metaBytes, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO research_sessions (id, query, status, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW())
`, id, query, SessionStatusPending, metaBytes)
	return err
}

// UpdateSessionStatus sets a session's status and merges the given metadata
// into the stored document (new keys win).
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string, metadata map[string]interface{}) error {
	metaBytes, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE research_sessions
SET status = $2, metadata = metadata || $3, updated_at = NOW()
WHERE id = $1
`, id, status, metaBytes)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// InsertSource persists one scraped source with its analysis and optional
// embedding, returning the generated id.
func (s *Store) InsertSource(ctx context.Context, rec SourceRecord) (string, error) {
	if rec.SessionID == "" {
		return "", fmt.Errorf("session_id required")
	}
	keyPoints, err := json.Marshal(orEmpty(rec.KeyPoints))
	if err != nil {
		return "", err
	}
	insights, err := json.Marshal(orEmpty(rec.Insights))
	if err != nil {
		return "", err
	}
	topics, err := json.Marshal(orEmpty(rec.Topics))
	if err != nil {
		return "", err
	}

	var vectorLiteral interface{}
	if len(rec.Embedding) > 0 {
		lit, err := encodeVectorLiteral(rec.Embedding)
		if err != nil {
			return "", err
		}
		vectorLiteral = lit
	}

	var id string
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO scraped_sources
  (session_id, url, domain, title, description, content, word_count, search_term,
   relevance, credibility, summary, key_points, insights, topics, embedding, scraped_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::vector,$16,NOW())
RETURNING id
`, rec.SessionID, rec.URL, rec.Domain, rec.Title, rec.Description, rec.Content, rec.WordCount,
		rec.SearchTerm, rec.Relevance, rec.Credibility, rec.Summary, keyPoints, insights, topics,
		vectorLiteral, rec.ScrapedAt).Scan(&id)
	return id, err
}

// InsertReport persists the session's final report.
func (s *Store) InsertReport(ctx context.Context, rec ReportRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("report id required")
	}
	if rec.SessionID == "" {
		return fmt.Errorf("session_id required")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_reports (id, session_id, query, title, content, source_count, analysis_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
`, rec.ID, rec.SessionID, rec.Query, rec.Title, rec.Content, rec.SourceCount, rec.AnalysisCount)
	return err
}

// LookupEmbedding returns the cached vector for a fingerprint, or nil on a
// cache miss.
func (s *Store) LookupEmbedding(ctx context.Context, fingerprint string) (*EmbeddingCacheRecord, error) {
	var (
		rec        EmbeddingCacheRecord
		vectorText string
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT fingerprint, embedding::text, preview, model, updated_at
FROM embedding_cache
WHERE fingerprint = $1
`, fingerprint).Scan(&rec.Fingerprint, &vectorText, &rec.Preview, &rec.Model, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Vector, err = decodeVectorLiteral(vectorText)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertEmbedding stores a vector under its fingerprint. The write is an
// idempotent last-writer-wins upsert: concurrent writers racing on the same
// key are safe because the value is reproducible from the same input text.
func (s *Store) UpsertEmbedding(ctx context.Context, rec EmbeddingCacheRecord) error {
	if rec.Fingerprint == "" {
		return fmt.Errorf("fingerprint required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("embedding vector required")
	}
	vectorLiteral, err := encodeVectorLiteral(rec.Vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO embedding_cache (fingerprint, embedding, preview, model, updated_at)
VALUES ($1,$2::vector,$3,$4,NOW())
ON CONFLICT (fingerprint) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  preview = EXCLUDED.preview,
  model = EXCLUDED.model,
  updated_at = NOW();
`, rec.Fingerprint, vectorLiteral, rec.Preview, rec.Model)
	return err
}

// SearchSources returns the closest stored source embeddings for the
// supplied vector, filtered by a minimum similarity threshold.
func (s *Store) SearchSources(ctx context.Context, vector []float32, topK int, threshold float64) ([]SourceSearchResult, error) {
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
SELECT id, session_id, url, title, summary, 1 - (embedding <=> $1::vector) AS similarity, created_at
FROM scraped_sources
WHERE embedding IS NOT NULL
  AND 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SourceSearchResult
	for rows.Next() {
		var res SourceSearchResult
		if err := rows.Scan(&res.SourceID, &res.SessionID, &res.URL, &res.Title, &res.Summary, &res.Similarity, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListSessions returns sessions newest-first with aggregate child counts.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT s.id, s.query, s.status, s.metadata, s.created_at, s.updated_at,
       COUNT(DISTINCT src.id) AS source_count,
       COUNT(DISTINCT rep.id) AS report_count
FROM research_sessions s
LEFT JOIN scraped_sources src ON src.session_id = s.id
LEFT JOIN research_reports rep ON rep.session_id = s.id
GROUP BY s.id
ORDER BY s.created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum       SessionSummary
			metaBytes []byte
		)
		if err := rows.Scan(&sum.ID, &sum.Query, &sum.Status, &metaBytes, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.SourceCount, &sum.ReportCount); err != nil {
			return nil, err
		}
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &sum.Metadata)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetSession fetches one session with all of its sources and reports.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	var (
		detail    SessionDetail
		metaBytes []byte
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, query, status, metadata, created_at, updated_at
FROM research_sessions WHERE id = $1
`, id).Scan(&detail.Session.ID, &detail.Session.Query, &detail.Session.Status, &metaBytes,
		&detail.Session.CreatedAt, &detail.Session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &detail.Session.Metadata)
	}

	srcRows, err := s.DB.QueryContext(ctx, `
SELECT id, url, domain, title, description, word_count, search_term,
       relevance, credibility, summary, key_points, insights, topics, scraped_at, created_at
FROM scraped_sources WHERE session_id = $1 ORDER BY created_at
`, id)
	if err != nil {
		return nil, err
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var (
			rec                        SourceRecord
			keyPoints, insights, topic []byte
		)
		if err := srcRows.Scan(&rec.ID, &rec.URL, &rec.Domain, &rec.Title, &rec.Description,
			&rec.WordCount, &rec.SearchTerm, &rec.Relevance, &rec.Credibility, &rec.Summary,
			&keyPoints, &insights, &topic, &rec.ScrapedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SessionID = id
		_ = json.Unmarshal(keyPoints, &rec.KeyPoints)
		_ = json.Unmarshal(insights, &rec.Insights)
		_ = json.Unmarshal(topic, &rec.Topics)
		detail.Sources = append(detail.Sources, rec)
	}
	if err := srcRows.Err(); err != nil {
		return nil, err
	}

	repRows, err := s.DB.QueryContext(ctx, `
SELECT id, query, title, content, source_count, analysis_count, created_at
FROM research_reports WHERE session_id = $1 ORDER BY created_at
`, id)
	if err != nil {
		return nil, err
	}
	defer repRows.Close()
	for repRows.Next() {
		var rec ReportRecord
		if err := repRows.Scan(&rec.ID, &rec.Query, &rec.Title, &rec.Content,
			&rec.SourceCount, &rec.AnalysisCount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SessionID = id
		detail.Reports = append(detail.Reports, rec)
	}
	return &detail, repRows.Err()
}

// encodeVectorLiteral renders a float32 slice as a pgvector literal
// ("[0.1,0.2]").
func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("empty vector")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// decodeVectorLiteral parses a pgvector text literal back into floats.
func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if len(lit) < 2 || lit[0] != '[' || lit[len(lit)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}
	inner := lit[1 : len(lit)-1]
	if inner == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	parts := strings.Split(inner, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector literal: %w", err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func marshalMeta(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
