// Package rag answers natural-language questions against a video's
// embedded transcript chunks, with timestamp attribution.
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

// ChatClient runs a single generative-text call.
type ChatClient interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// Answer is the result of one query.
type Answer struct {
	Text  string     `json:"answer"`
	Start float64    `json:"timestamp_start"`
	End   float64    `json:"timestamp_end"`
	Hits  []core.Hit `json:"hits"`
}

// Engine ranks a video's chunks against a question and synthesizes an
// answer. The question is embedded with the same model as the corpus;
// mixing models would invalidate the similarity space.
type Engine struct {
	table    *storage.EmbeddingTable
	index    storage.VectorIndex // optional DB-backed index, may be nil
	embedder storage.Embedder
	chat     ChatClient
	log      *logger.Logger
}

func NewEngine(table *storage.EmbeddingTable, index storage.VectorIndex, embedder storage.Embedder, chat ChatClient, log *logger.Logger) *Engine {
	return &Engine{
		table:    table,
		index:    index,
		embedder: embedder,
		chat:     chat,
		log:      log.With("component", "rag"),
	}
}

// Search ranks candidate rows by cosine similarity to the question,
// descending, and returns the top k.
func (e *Engine) Search(ctx context.Context, rows []core.EmbeddingRow, question string, topK int) ([]core.Hit, error) {
	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return rankRows(rows, vecs[0], topK), nil
}

// Answer runs the full query path for one video, identified by its base
// name. A video with no matching rows falls back to the whole shared
// table, which may surface cross-video content.
func (e *Engine) Answer(ctx context.Context, title, question string) (*Answer, error) {
	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	qvec := vecs[0]

	const topK = 3
	var hits []core.Hit
	if e.index != nil {
		hits, err = e.index.Search(ctx, title, qvec, topK)
		if err != nil {
			return nil, err
		}
	} else {
		rows, err := e.table.RowsForTitle(title)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			e.log.Warn("no chunks for title, searching whole table", "title", title)
			rows, err = e.table.Rows()
			if err != nil {
				return nil, err
			}
		}
		hits = rankRows(rows, qvec, topK)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("no embedded content available for %q", title)
	}

	top := &hits[0]
	top.Row.Start, top.Row.End = e.refineWindow(ctx, top.Row)

	text := e.synthesize(ctx, question, hits)
	return &Answer{Text: text, Start: top.Row.Start, End: top.Row.End, Hits: hits}, nil
}

func rankRows(rows []core.EmbeddingRow, qvec []float32, topK int) []core.Hit {
	if topK <= 0 {
		topK = 3
	}
	hits := make([]core.Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, core.Hit{Score: cosine(qvec, r.Embedding), Row: r})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// refineWindow asks the model to narrow the top chunk's time boundaries.
// Best effort: any failure or out-of-range result keeps the originals.
func (e *Engine) refineWindow(ctx context.Context, row core.EmbeddingRow) (float64, float64) {
	user := fmt.Sprintf(
		"Transcript segment (spans %.1f to %.1f seconds):\n%s\n\n"+
			"Reply with only the refined start and end seconds for the core of this segment, "+
			"as two numbers separated by a comma.",
		row.Start, row.End, row.Text)
	out, err := e.chat.Complete(ctx, "You refine timestamp windows for video segments.", user, 32, 0)
	if err != nil {
		e.log.Warn("timestamp refinement failed, keeping original window", "error", err)
		return row.Start, row.End
	}
	start, end, ok := parseWindow(out)
	if !ok || start < row.Start || end > row.End || start >= end {
		e.log.Warn("timestamp refinement returned unusable window", "reply", out)
		return row.Start, row.End
	}
	return start, end
}

func parseWindow(s string) (float64, float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	end, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

// synthesize formats the top hits into a natural-language answer. A failed
// chat call degrades to a concatenation of times and snippets.
func (e *Engine) synthesize(ctx context.Context, question string, hits []core.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "Segment %d [%s - %s]: %s\n\n",
			i+1, core.FormatTime(h.Row.Start), core.FormatTime(h.Row.End), h.Row.Text)
	}
	user := fmt.Sprintf(
		"Retrieved video segments:\n%sQuestion: %s\n\n"+
			"Answer based on the segments above and cite the relevant time points. "+
			"If the segments are insufficient, say what is missing.",
		b.String(), question)

	out, err := e.chat.Complete(ctx,
		"You are a video content analysis assistant.", user, 1000, 0.3)
	if err != nil || out == "" {
		e.log.Warn("answer synthesis failed, using simple fallback", "error", err)
		return synthesizeSimple(hits)
	}
	return out
}

func synthesizeSimple(hits []core.Hit) string {
	times := make([]string, 0, len(hits))
	snips := make([]string, 0, len(hits))
	for _, h := range hits {
		times = append(times, core.FormatTime(h.Row.Start))
		text := h.Row.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		snips = append(snips, text)
	}
	return "Relevant segments at: " + strings.Join(times, ", ") + ". " + strings.Join(snips, " ")
}
