package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"videorag/core"
	"videorag/logger"
)

// Embedder computes one vector per input text, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingTable is the shared append-only table of embedded transcript
// chunks, persisted as a single JSON blob and rewritten whole on every
// upsert. One table serves all videos; queries filter by title.
//
// Writes are serialized by a store-level mutex: concurrent pipelines would
// otherwise race on the load-append-rewrite cycle and lose rows.
type EmbeddingTable struct {
	path     string
	embedder Embedder
	log      *logger.Logger

	mu    sync.Mutex // serializes load-modify-write
	cache atomic.Pointer[tableSnapshot]
}

type tableSnapshot struct {
	rows    []core.EmbeddingRow
	modTime time.Time
}

func NewEmbeddingTable(path string, embedder Embedder, log *logger.Logger) *EmbeddingTable {
	return &EmbeddingTable{
		path:     path,
		embedder: embedder,
		log:      log.With("component", "embedding_table"),
	}
}

// DedupKey identifies a chunk within the table. A chunk already present is
// never re-embedded.
func DedupKey(title string, start float64) string {
	return title + "__" + strconv.FormatFloat(start, 'g', -1, 64)
}

// Upsert embeds the transcript chunks not yet present in the table and
// appends them. Chunk ids continue from max(existing)+1 and are never
// reused, even after deletions. Returns the number of rows added.
func (t *EmbeddingTable) Upsert(ctx context.Context, tr *core.Transcript, title string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.readAll()
	if err != nil {
		return 0, err
	}

	nextID := 0
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[DedupKey(r.Title, r.Start)] = struct{}{}
		if r.ChunkID >= nextID {
			nextID = r.ChunkID + 1
		}
	}

	var pending []core.TranscriptChunk
	for _, c := range tr.Chunks {
		if _, ok := seen[DedupKey(title, c.Start)]; ok {
			continue
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		t.log.Info("no new chunks to embed", "title", title)
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Text
	}
	vectors, err := t.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %d chunks: %w", len(pending), err)
	}

	for i, c := range pending {
		rows = append(rows, core.EmbeddingRow{
			ChunkID:   nextID,
			Title:     title,
			Start:     c.Start,
			End:       c.End,
			Text:      c.Text,
			Embedding: vectors[i],
		})
		nextID++
	}

	if err := t.persist(rows); err != nil {
		return 0, err
	}
	t.log.Info("embedding table updated", "title", title, "added", len(pending), "total", len(rows))
	return len(pending), nil
}

// Rows returns the current table contents. The on-disk blob's modification
// time is checked first; an unchanged file reuses the in-memory snapshot,
// otherwise the table reloads and the snapshot pointer swaps atomically.
func (t *EmbeddingTable) Rows() ([]core.EmbeddingRow, error) {
	info, err := os.Stat(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if snap := t.cache.Load(); snap != nil && snap.modTime.Equal(info.ModTime()) {
		return snap.rows, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another goroutine may have loaded while we waited.
	if snap := t.cache.Load(); snap != nil && snap.modTime.Equal(info.ModTime()) {
		return snap.rows, nil
	}

	t.log.Info("reloading embedding table", "path", t.path)
	rows, err := t.readAll()
	if err != nil {
		return nil, err
	}
	info, err = os.Stat(t.path)
	if err != nil {
		return nil, err
	}
	t.cache.Store(&tableSnapshot{rows: rows, modTime: info.ModTime()})
	return rows, nil
}

// RowsForTitle filters the table to one video's chunks.
func (t *EmbeddingTable) RowsForTitle(title string) ([]core.EmbeddingRow, error) {
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	var out []core.EmbeddingRow
	for _, r := range rows {
		if r.Title == title {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *EmbeddingTable) readAll() ([]core.EmbeddingRow, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []core.EmbeddingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse embedding table %s: %w", t.path, err)
	}
	return rows, nil
}

func (t *EmbeddingTable) persist(rows []core.EmbeddingRow) error {
	if err := core.SaveJSONAtomic(t.path, rows); err != nil {
		return fmt.Errorf("persist embedding table: %w", err)
	}
	info, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	t.cache.Store(&tableSnapshot{rows: rows, modTime: info.ModTime()})
	return nil
}
