package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videorag/core"
	"videorag/logger"
)

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func newTestTable(t *testing.T) (*EmbeddingTable, *fakeEmbedder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.json")
	emb := &fakeEmbedder{}
	return NewEmbeddingTable(path, emb, logger.NewNop()), emb, path
}

func transcript(title string, texts ...string) *core.Transcript {
	tr := &core.Transcript{}
	start := 0.0
	for _, txt := range texts {
		tr.Chunks = append(tr.Chunks, core.TranscriptChunk{
			Number: "0", Title: title, Start: start, End: start + 10, Text: txt,
		})
		start += 10
	}
	return tr
}

func TestUpsertAssignsSequentialIDs(t *testing.T) {
	table, _, _ := newTestTable(t)
	ctx := context.Background()

	added, err := table.Upsert(ctx, transcript("alpha", "one", "two"), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = table.Upsert(ctx, transcript("beta", "three"), "beta")
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	rows, err := table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{rows[0].ChunkID, rows[1].ChunkID, rows[2].ChunkID})
}

func TestUpsertSkipsExistingChunks(t *testing.T) {
	table, emb, _ := newTestTable(t)
	ctx := context.Background()

	_, err := table.Upsert(ctx, transcript("alpha", "one", "two"), "alpha")
	require.NoError(t, err)

	// Re-running the same transcript embeds nothing.
	added, err := table.Upsert(ctx, transcript("alpha", "one", "two"), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, emb.calls, 1)

	// A partially-overlapping transcript embeds only the new chunk.
	tr := transcript("alpha", "one", "two", "three")
	added, err = table.Upsert(ctx, tr, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"three"}, emb.calls[1])
}

func TestChunkIDsNeverReusedAfterDeletion(t *testing.T) {
	table, _, path := newTestTable(t)
	ctx := context.Background()

	_, err := table.Upsert(ctx, transcript("alpha", "one", "two", "three"), "alpha")
	require.NoError(t, err)

	// Simulate an external edit that removed the middle rows.
	rows, err := table.Rows()
	require.NoError(t, err)
	require.NoError(t, core.SaveJSONAtomic(path, rows[2:]))

	_, err = table.Upsert(ctx, transcript("beta", "four"), "beta")
	require.NoError(t, err)

	rows, err = table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[1].ChunkID, "id continues past the historical max")
}

func TestRowsForTitle(t *testing.T) {
	table, _, _ := newTestTable(t)
	ctx := context.Background()

	_, err := table.Upsert(ctx, transcript("alpha", "one"), "alpha")
	require.NoError(t, err)
	_, err = table.Upsert(ctx, transcript("beta", "two", "three"), "beta")
	require.NoError(t, err)

	rows, err := table.RowsForTitle("beta")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "beta", r.Title)
	}

	rows, err = table.RowsForTitle("missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRowsOnMissingFile(t *testing.T) {
	table, _, path := newTestTable(t)
	require.NoFileExists(t, path)
	_ = os.Remove(path)

	rows, err := table.Rows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}
