package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestCreateSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
INSERT INTO research_sessions (id, query, status, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW())
`)
	mock.ExpectExec(query).
		WithArgs("sess-1", "what is pgvector", SessionStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.CreateSession(context.Background(), "sess-1", "what is pgvector", map[string]interface{}{"maxSources": 10}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSessionStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
UPDATE research_sessions
SET status = $2, metadata = metadata || $3, updated_at = NOW()
WHERE id = $1
`)
	mock.ExpectExec(query).
		WithArgs("missing", SessionStatusError, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.UpdateSessionStatus(context.Background(), "missing", SessionStatusError, map[string]interface{}{"error": "boom"}); err == nil {
		t.Fatalf("expected error for unknown session")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertEmbedding(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	rec := EmbeddingCacheRecord{
		Fingerprint: "abc123",
		Vector:      []float32{0.1, 0.2},
		Preview:     "preview text",
		Model:       "text-embedding-3-small",
	}

	query := regexp.QuoteMeta(`
INSERT INTO embedding_cache (fingerprint, embedding, preview, model, updated_at)
VALUES ($1,$2::vector,$3,$4,NOW())
ON CONFLICT (fingerprint) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  preview = EXCLUDED.preview,
  model = EXCLUDED.model,
  updated_at = NOW();
`)
	mock.ExpectExec(query).
		WithArgs(rec.Fingerprint, "[0.1,0.2]", rec.Preview, rec.Model).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertEmbedding(context.Background(), rec); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertEmbeddingValidation(t *testing.T) {
	st := &Store{}
	if err := st.UpsertEmbedding(context.Background(), EmbeddingCacheRecord{Vector: []float32{1}}); err == nil {
		t.Fatalf("expected error for missing fingerprint")
	}
	if err := st.UpsertEmbedding(context.Background(), EmbeddingCacheRecord{Fingerprint: "x"}); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}

func TestLookupEmbeddingMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
SELECT fingerprint, embedding::text, preview, model, updated_at
FROM embedding_cache
WHERE fingerprint = $1
`)
	mock.ExpectQuery(query).WithArgs("nope").WillReturnRows(sqlmock.NewRows(
		[]string{"fingerprint", "embedding", "preview", "model", "updated_at"}))

	rec, err := st.LookupEmbedding(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LookupEmbedding: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil on cache miss, got %+v", rec)
	}
}

func TestLookupEmbeddingHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
SELECT fingerprint, embedding::text, preview, model, updated_at
FROM embedding_cache
WHERE fingerprint = $1
`)
	mock.ExpectQuery(query).WithArgs("abc").WillReturnRows(sqlmock.NewRows(
		[]string{"fingerprint", "embedding", "preview", "model", "updated_at"}).
		AddRow("abc", "[0.5,-0.25]", "preview", "model-x", time.Now()))

	rec, err := st.LookupEmbedding(context.Background(), "abc")
	if err != nil {
		t.Fatalf("LookupEmbedding: %v", err)
	}
	if rec == nil || len(rec.Vector) != 2 || rec.Vector[0] != 0.5 || rec.Vector[1] != -0.25 {
		t.Fatalf("vector not decoded: %+v", rec)
	}
}

func TestSearchSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
SELECT id, session_id, url, title, summary, 1 - (embedding <=> $1::vector) AS similarity, created_at
FROM scraped_sources
WHERE embedding IS NOT NULL
  AND 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`)
	mock.ExpectQuery(query).
		WithArgs("[1,0]", 0.7, 5).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "session_id", "url", "title", "summary", "similarity", "created_at"}).
			AddRow("src-1", "sess-1", "https://example.com", "Title", "Summary", 0.91, time.Now()))

	results, err := st.SearchSources(context.Background(), []float32{1, 0}, 5, 0.7)
	if err != nil {
		t.Fatalf("SearchSources: %v", err)
	}
	if len(results) != 1 || results[0].Similarity != 0.91 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	t.Parallel()
	got, err := encodeVectorLiteral([]float32{0.1, -2, 3.5})
	if err != nil {
		t.Fatalf("encodeVectorLiteral: %v", err)
	}
	if got != "[0.1,-2,3.5]" {
		t.Fatalf("got %q", got)
	}
	if _, err := encodeVectorLiteral(nil); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}

func TestDecodeVectorLiteral(t *testing.T) {
	t.Parallel()
	vec, err := decodeVectorLiteral("[0.1, -2, 3.5]")
	if err != nil {
		t.Fatalf("decodeVectorLiteral: %v", err)
	}
	if len(vec) != 3 || vec[1] != -2 {
		t.Fatalf("got %v", vec)
	}
	for _, bad := range []string{"", "[]", "0.1,0.2", "[a,b]"} {
		if _, err := decodeVectorLiteral(bad); err == nil {
			t.Errorf("decodeVectorLiteral(%q) expected error", bad)
		}
	}
}
