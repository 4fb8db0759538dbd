package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

// vecEmbedder returns a fixed vector per text so similarity is controlled
// by the test.
type vecEmbedder struct {
	vectors map[string][]float32
}

func (e *vecEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v, ok := e.vectors[txt]
		if !ok {
			return nil, errors.New("no vector for " + txt)
		}
		out[i] = v
	}
	return out, nil
}

type scriptedChat struct {
	replies map[string]string // keyed by system prompt
	err     error
}

func (c *scriptedChat) Complete(_ context.Context, system, _ string, _ int, _ float32) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.replies[system], nil
}

func seedTable(t *testing.T, emb storage.Embedder, rows []core.EmbeddingRow) *storage.EmbeddingTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, core.SaveJSONAtomic(path, rows))
	return storage.NewEmbeddingTable(path, emb, logger.NewNop())
}

func TestSearchRanksByCosine(t *testing.T) {
	emb := &vecEmbedder{vectors: map[string][]float32{
		"question": {1, 0},
	}}
	rows := []core.EmbeddingRow{
		{ChunkID: 0, Title: "talk", Text: "off topic", Embedding: []float32{0, 1}},
		{ChunkID: 1, Title: "talk", Text: "exact match", Embedding: []float32{1, 0}},
		{ChunkID: 2, Title: "talk", Text: "close match", Embedding: []float32{1, 0.5}},
	}
	engine := NewEngine(nil, nil, emb, &scriptedChat{}, logger.NewNop())

	hits, err := engine.Search(context.Background(), rows, "question", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact match", hits[0].Row.Text)
	assert.Equal(t, "close match", hits[1].Row.Text)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestAnswerUsesTitleRows(t *testing.T) {
	emb := &vecEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	table := seedTable(t, emb, []core.EmbeddingRow{
		{ChunkID: 0, Title: "talk", Start: 10, End: 40, Text: "the relevant part", Embedding: []float32{1, 0}},
		{ChunkID: 1, Title: "other", Start: 0, End: 30, Text: "unrelated video", Embedding: []float32{1, 0}},
	})
	chat := &scriptedChat{replies: map[string]string{
		"You are a video content analysis assistant.":        "The talk covers it at 00:10.",
		"You refine timestamp windows for video segments.":   "15, 35",
	}}
	engine := NewEngine(table, nil, emb, chat, logger.NewNop())

	ans, err := engine.Answer(context.Background(), "talk", "q")
	require.NoError(t, err)
	assert.Equal(t, "The talk covers it at 00:10.", ans.Text)
	assert.Equal(t, 15.0, ans.Start)
	assert.Equal(t, 35.0, ans.End)
	require.Len(t, ans.Hits, 1)
	assert.Equal(t, "the relevant part", ans.Hits[0].Row.Text)
}

func TestAnswerFallsBackToWholeTable(t *testing.T) {
	emb := &vecEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	table := seedTable(t, emb, []core.EmbeddingRow{
		{ChunkID: 0, Title: "other", Start: 5, End: 25, Text: "from another video", Embedding: []float32{1, 0}},
	})
	chat := &scriptedChat{err: errors.New("chat down")}
	engine := NewEngine(table, nil, emb, chat, logger.NewNop())

	ans, err := engine.Answer(context.Background(), "missing_title", "q")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "from another video")
	assert.Equal(t, 5.0, ans.Start)
}

func TestAnswerNoContent(t *testing.T) {
	emb := &vecEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	table := seedTable(t, emb, []core.EmbeddingRow{})

	engine := NewEngine(table, nil, emb, &scriptedChat{}, logger.NewNop())
	_, err := engine.Answer(context.Background(), "talk", "q")
	assert.Error(t, err)
}

func TestRefinementKeepsWindowOnBadReply(t *testing.T) {
	emb := &vecEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	table := seedTable(t, emb, []core.EmbeddingRow{
		{ChunkID: 0, Title: "talk", Start: 100, End: 160, Text: "segment", Embedding: []float32{1, 0}},
	})
	for _, reply := range []string{"not numbers", "50, 170", "140, 120", "90, 150"} {
		chat := &scriptedChat{replies: map[string]string{
			"You refine timestamp windows for video segments.": reply,
			"You are a video content analysis assistant.":      "answer",
		}}
		engine := NewEngine(table, nil, emb, chat, logger.NewNop())
		ans, err := engine.Answer(context.Background(), "talk", "q")
		require.NoError(t, err)
		assert.Equal(t, 100.0, ans.Start, "reply %q", reply)
		assert.Equal(t, 160.0, ans.End, "reply %q", reply)
	}
}

func TestSynthesizeSimpleTruncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	out := synthesizeSimple([]core.Hit{
		{Row: core.EmbeddingRow{Start: 65, Text: string(long)}},
	})
	assert.Contains(t, out, "01:05")
	assert.Contains(t, out, "...")
	assert.Less(t, len(out), 300)
}
