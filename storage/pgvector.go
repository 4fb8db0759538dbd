package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"videorag/core"
	"videorag/logger"
)

// VectorIndex is an optional DB-backed similarity index mirrored from the
// embedding table. The blob table stays the source of truth for chunk ids
// and dedup; an index only accelerates query-time ranking.
type VectorIndex interface {
	Upsert(ctx context.Context, rows []core.EmbeddingRow) error
	Search(ctx context.Context, title string, vector []float32, topK int) ([]core.Hit, error)
}

// PgVectorIndex keeps chunk rows in Postgres with a pgvector column.
type PgVectorIndex struct {
	conn *pgx.Conn
	dim  int
	log  *logger.Logger
}

func NewPgVectorIndex(ctx context.Context, url string, dim int, log *logger.Logger) (*PgVectorIndex, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	idx := &PgVectorIndex{conn: conn, dim: dim, log: log.With("component", "pgvector")}
	if err := idx.ensureTable(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return idx, nil
}

func (s *PgVectorIndex) ensureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS video_chunks (
			chunk_id   BIGINT PRIMARY KEY,
			title      TEXT NOT NULL,
			start_time FLOAT8 NOT NULL,
			end_time   FLOAT8 NOT NULL,
			text       TEXT NOT NULL,
			embedding  vector(%d),
			UNIQUE(title, start_time)
		);`, s.dim)
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create video_chunks table: %w", err)
	}
	if _, err := s.conn.Exec(ctx,
		"CREATE INDEX IF NOT EXISTS idx_video_chunks_title ON video_chunks(title);"); err != nil {
		return fmt.Errorf("create title index: %w", err)
	}
	return nil
}

func (s *PgVectorIndex) Upsert(ctx context.Context, rows []core.EmbeddingRow) error {
	for _, r := range rows {
		_, err := s.conn.Exec(ctx, `
			INSERT INTO video_chunks (chunk_id, title, start_time, end_time, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (title, start_time) DO NOTHING
		`, r.ChunkID, r.Title, r.Start, r.End, r.Text, pgvector.NewVector(r.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", r.ChunkID, err)
		}
	}
	return nil
}

func (s *PgVectorIndex) Search(ctx context.Context, title string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 3
	}
	hits, err := s.search(ctx, title, vector, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && title != "" {
		// Recall over precision: no rows for this title, search everything.
		s.log.Warn("no chunks for title, searching whole index", "title", title)
		return s.search(ctx, "", vector, topK)
	}
	return hits, nil
}

func (s *PgVectorIndex) search(ctx context.Context, title string, vector []float32, topK int) ([]core.Hit, error) {
	vec := pgvector.NewVector(vector)
	query := `
		SELECT chunk_id, title, start_time, end_time, text,
		       1 - (embedding <=> $1) AS similarity
		FROM video_chunks`
	args := []any{vec}
	if title != "" {
		query += " WHERE title = $2 ORDER BY embedding <=> $1 LIMIT $3"
		args = append(args, title, topK)
	} else {
		query += " ORDER BY embedding <=> $1 LIMIT $2"
		args = append(args, topK)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var h core.Hit
		if err := rows.Scan(&h.Row.ChunkID, &h.Row.Title, &h.Row.Start, &h.Row.End, &h.Row.Text, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorIndex) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
