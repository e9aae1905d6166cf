package sqliteDB

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/rag/lexical"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	jurisdiction_id TEXT NOT NULL,
	sequence_index  INTEGER NOT NULL,
	page_number     INTEGER,
	paragraph_index INTEGER NOT NULL,
	text            TEXT NOT NULL,
	original_text   TEXT,
	source_language TEXT NOT NULL,
	file_name       TEXT NOT NULL,
	source_uri      TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding       BLOB NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_jurisdiction ON chunks(jurisdiction_id);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, sequence_index);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	jurisdiction_id UNINDEXED,
	text,
	tokenize = 'unicode61'
);

CREATE TABLE IF NOT EXISTS jurisdiction_index (
	jurisdiction_id TEXT PRIMARY KEY,
	dimension       INTEGER NOT NULL,
	embedding_model TEXT NOT NULL
);
`

const chunkColumns = `id, document_id, jurisdiction_id, sequence_index, page_number, paragraph_index, text,
	original_text, source_language, file_name, source_uri, embedding_model, embedding, created_at`

// Store is the embedded chunk index used for local runs, the CLI and tests. Dense search is a
// brute force cosine scan over the jurisdiction, lexical search is FTS5 bm25.
type Store struct {
	db     *sql.DB
	logger *logger_i.Logger
}

// Open opens (or creates) the database at path. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	logger := logger_i.NewLogger("sqlite chunk store")
	logger.Info("sqlite chunk store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertChunks(ctx context.Context, documentId string, chunks []commonModels.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := vectorDB.UniformDimension(chunks)
	if dim <= 0 {
		return fmt.Errorf("%w: chunks of document %s carry mixed or missing embeddings", ragErrors.ErrDimensionMismatch, documentId)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	byJurisdiction := make(map[string]string)
	for _, c := range chunks {
		if c.DocumentId != documentId {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", c.Id, c.DocumentId, documentId)
		}
		byJurisdiction[c.JurisdictionId] = c.EmbeddingModel
	}
	for jurisdictionId, model := range byJurisdiction {
		if err := claimDimension(ctx, tx, jurisdictionId, dim, model); err != nil {
			return err
		}
	}

	insertChunk, err := tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertChunk.Close()
	insertFts, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (chunk_id, jurisdiction_id, text) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer insertFts.Close()

	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err = insertChunk.ExecContext(ctx, c.Id, c.DocumentId, c.JurisdictionId, c.SequenceIndex, nullableInt(c.PageNumber),
			c.ParagraphIndex, c.Text, nullableString(c.OriginalText), c.SourceLanguage, c.FileName, c.SourceUri,
			c.EmbeddingModel, encodeVector(c.Embedding), created.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.Id, err)
		}
		if _, err = insertFts.ExecContext(ctx, c.Id, c.JurisdictionId, c.Text); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.Id, err)
		}
	}
	return tx.Commit()
}

// claimDimension pins the vector space of a jurisdiction on first insert and rejects anything else.
func claimDimension(ctx context.Context, tx *sql.Tx, jurisdictionId string, dim int, model string) error {
	var existingDim int
	var existingModel string
	err := tx.QueryRowContext(ctx, `SELECT dimension, embedding_model FROM jurisdiction_index WHERE jurisdiction_id = ?`, jurisdictionId).
		Scan(&existingDim, &existingModel)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `INSERT INTO jurisdiction_index (jurisdiction_id, dimension, embedding_model) VALUES (?,?,?)`,
			jurisdictionId, dim, model)
		return err
	}
	if err != nil {
		return err
	}
	if existingDim != dim || existingModel != model {
		return fmt.Errorf("%w: jurisdiction %s is indexed with %s (%d), got %s (%d)",
			ragErrors.ErrDimensionMismatch, jurisdictionId, existingModel, existingDim, model, dim)
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentId string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var jurisdictions []string
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT jurisdiction_id FROM chunks WHERE document_id = ?`, documentId)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var j string
		if err := rows.Scan(&j); err != nil {
			rows.Close()
			return 0, err
		}
		jurisdictions = append(jurisdictions, j)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, documentId); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentId)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()

	// an emptied jurisdiction may be re-indexed with another embedding model
	for _, j := range jurisdictions {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jurisdiction_index WHERE jurisdiction_id = ?
			AND NOT EXISTS (SELECT 1 FROM chunks WHERE jurisdiction_id = ?)`, j, j); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(deleted), nil
}

func (s *Store) FindByDocument(ctx context.Context, documentId string) ([]commonModels.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY sequence_index`, documentId)
	if err != nil {
		return nil, err
	}
	return scanChunks(rows)
}

func (s *Store) FindByJurisdiction(ctx context.Context, jurisdictionId string, text string, limit int) ([]commonModels.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	if strings.TrimSpace(text) == "" {
		rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE jurisdiction_id = ?
			ORDER BY document_id, sequence_index LIMIT ?`, jurisdictionId, limit)
		if err != nil {
			return nil, err
		}
		return scanChunks(rows)
	}
	hits, err := s.SearchLexical(ctx, jurisdictionId, vectorDB.LexicalQuery{Terms: lexical.Tokenize(text)}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]commonModels.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out, nil
}

func (s *Store) CountByJurisdiction(ctx context.Context, jurisdictionId string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE jurisdiction_id = ?`, jurisdictionId).Scan(&n)
	return n, err
}

func (s *Store) SearchDense(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM jurisdiction_index WHERE jurisdiction_id = ?`, jurisdictionId).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dim != len(vector) {
		return nil, fmt.Errorf("%w: jurisdiction %s has dimension %d, query has %d", ragErrors.ErrDimensionMismatch, jurisdictionId, dim, len(vector))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE jurisdiction_id = ?`, jurisdictionId)
	if err != nil {
		return nil, err
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	scored := make([]commonModels.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, commonModels.ScoredChunk{Chunk: c, Score: vectorDB.CosineSimilarity(vector, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Id < scored[j].Chunk.Id
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *Store) SearchLexical(ctx context.Context, jurisdictionId string, query vectorDB.LexicalQuery, limit int) ([]commonModels.ScoredChunk, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.document_id, c.jurisdiction_id, c.sequence_index, c.page_number,
			c.paragraph_index, c.text, c.original_text, c.source_language, c.file_name, c.source_uri, c.embedding_model,
			c.embedding, c.created_at, bm25(chunks_fts) AS rank
		FROM chunks_fts JOIN chunks c ON c.id = chunks_fts.chunk_id
		WHERE chunks_fts MATCH ? AND chunks_fts.jurisdiction_id = ?
		ORDER BY rank, c.id LIMIT ?`, match, jurisdictionId, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []commonModels.ScoredChunk
	for rows.Next() {
		var rank float64
		c, err := scanChunk(rows, &rank)
		if err != nil {
			return nil, err
		}
		// bm25() is lower-is-better and negative for matches
		out = append(out, commonModels.ScoredChunk{Chunk: c, Score: -rank})
	}
	return out, rows.Err()
}

// ftsQuery quotes every term so user input can never inject FTS5 syntax.
func ftsQuery(q vectorDB.LexicalQuery) string {
	parts := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted := `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
		if q.Prefix {
			quoted += "*"
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, " OR ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner, extra ...any) (commonModels.Chunk, error) {
	var c commonModels.Chunk
	var page sql.NullInt64
	var original sql.NullString
	var blob []byte
	var created int64
	dest := []any{&c.Id, &c.DocumentId, &c.JurisdictionId, &c.SequenceIndex, &page, &c.ParagraphIndex, &c.Text,
		&original, &c.SourceLanguage, &c.FileName, &c.SourceUri, &c.EmbeddingModel, &blob, &created}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return c, err
	}
	if page.Valid {
		p := int(page.Int64)
		c.PageNumber = &p
	}
	if original.Valid {
		o := original.String
		c.OriginalText = &o
	}
	c.Embedding = decodeVector(blob)
	c.CreatedAt = time.UnixMilli(created).UTC()
	return c, nil
}

func scanChunks(rows *sql.Rows) ([]commonModels.Chunk, error) {
	defer rows.Close()
	var out []commonModels.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
