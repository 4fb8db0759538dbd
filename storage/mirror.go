package storage

import (
	"context"

	"videorag/core"
	"videorag/logger"
)

// MirroredUpserter writes to the embedding table (source of truth) and
// then mirrors the video's rows into the configured vector index. The
// mirror is best-effort: an index failure degrades query acceleration,
// never the pipeline.
type MirroredUpserter struct {
	table *EmbeddingTable
	index VectorIndex
	log   *logger.Logger
}

func NewMirroredUpserter(table *EmbeddingTable, index VectorIndex, log *logger.Logger) *MirroredUpserter {
	return &MirroredUpserter{table: table, index: index, log: log.With("component", "embedding_mirror")}
}

func (m *MirroredUpserter) Upsert(ctx context.Context, tr *core.Transcript, title string) (int, error) {
	added, err := m.table.Upsert(ctx, tr, title)
	if err != nil {
		return 0, err
	}
	if m.index != nil && added > 0 {
		rows, err := m.table.RowsForTitle(title)
		if err == nil {
			err = m.index.Upsert(ctx, rows)
		}
		if err != nil {
			m.log.Warn("vector index mirror failed", "title", title, "error", err)
		}
	}
	return added, nil
}
