package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videorag/core"
	"videorag/logger"
)

// MilvusIndex keeps chunk rows in a Milvus collection with an HNSW cosine
// index on the embedding field.
type MilvusIndex struct {
	mc   client.Client
	coll string
	dim  int
	log  *logger.Logger
}

func NewMilvusIndex(ctx context.Context, addr, coll string, dim int, log *logger.Logger) (*MilvusIndex, error) {
	if addr == "" {
		addr = "localhost:19530"
	}
	if coll == "" {
		coll = "video_chunks"
	}
	mc, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	idx := &MilvusIndex{mc: mc, coll: coll, dim: dim, log: log.With("component", "milvus")}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return idx, nil
}

func (s *MilvusIndex) ensureCollection(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema().WithName(s.coll)
		schema.WithField(entity.NewField().WithName("chunk_id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("title").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Upsert(ctx context.Context, rows []core.EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rows))
	titles := make([]string, 0, len(rows))
	starts := make([]float64, 0, len(rows))
	ends := make([]float64, 0, len(rows))
	texts := make([]string, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, int64(r.ChunkID))
		titles = append(titles, r.Title)
		starts = append(starts, r.Start)
		ends = append(ends, r.End)
		texts = append(texts, r.Text)
		vectors = append(vectors, r.Embedding)
	}
	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnInt64("chunk_id", ids),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Search(ctx context.Context, title string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 3
	}
	filter := ""
	if title != "" {
		filter = fmt.Sprintf("title == %q", strings.ReplaceAll(title, `"`, `\"`))
	}
	hits, err := s.search(ctx, filter, vector, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && filter != "" {
		s.log.Warn("no chunks for title, searching whole collection", "title", title)
		return s.search(ctx, "", vector, topK)
	}
	return hits, nil
}

func (s *MilvusIndex) search(ctx context.Context, filter string, vector []float32, topK int) ([]core.Hit, error) {
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("hnsw search param: %w", err)
	}
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter,
		[]string{"chunk_id", "title", "start", "end", "text"},
		[]entity.Vector{entity.FloatVector(vector)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var h core.Hit
			h.Score = float64(r.Scores[i])
			if c, ok := cols["chunk_id"].(*entity.ColumnInt64); ok && i < len(c.Data()) {
				h.Row.ChunkID = int(c.Data()[i])
			}
			if c, ok := cols["title"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.Row.Title = c.Data()[i]
			}
			if c, ok := cols["start"].(*entity.ColumnDouble); ok && i < len(c.Data()) {
				h.Row.Start = c.Data()[i]
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok && i < len(c.Data()) {
				h.Row.End = c.Data()[i]
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.Row.Text = c.Data()[i]
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}
