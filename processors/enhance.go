package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"

	"videorag/logger"
)

// ChatClient runs a single generative-text call.
type ChatClient interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// Enhancer expands a raw transcript into long-form educational prose. The
// rich path parallelizes chunk expansion across a bounded worker pool and
// re-validates fenced code blocks; when the rich path fails for any reason
// the caller degrades to Beautify, which never fails.
type Enhancer struct {
	chat ChatClient
	log  *logger.Logger

	MaxTokens       int
	OverlapTokens   int
	Workers         int
	CodeRepairLimit int
	ExcerptChars    int
}

func NewEnhancer(chat ChatClient, log *logger.Logger, maxTokens, overlapTokens, workers, codeRepairLimit int) *Enhancer {
	return &Enhancer{
		chat:            chat,
		log:             log.With("component", "enhancer"),
		MaxTokens:       maxTokens,
		OverlapTokens:   overlapTokens,
		Workers:         workers,
		CodeRepairLimit: codeRepairLimit,
		ExcerptChars:    6000,
	}
}

// Enhance produces the full enhanced document: expanded chunks reassembled
// in original order, a closing summary with key takeaways, and repaired
// code blocks.
func (e *Enhancer) Enhance(ctx context.Context, raw string) (string, error) {
	chunks := SplitByTokens(raw, e.MaxTokens, e.OverlapTokens)
	if len(chunks) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}
	e.log.Info("enhancing transcript", "chunks", len(chunks), "workers", e.Workers)

	// Expansion calls complete in any order; parts is indexed by chunk so
	// reassembly follows the original order.
	parts := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			expanded, err := e.expand(gctx, chunk)
			if err != nil {
				return fmt.Errorf("expand chunk %d: %w", i+1, err)
			}
			parts[i] = expanded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	closing, err := e.closing(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("closing summary: %w", err)
	}

	doc := strings.Join(parts, "\n\n") + "\n\n" + closing
	return e.repairCodeBlocks(ctx, doc), nil
}

// Beautify is the degraded path: one cleanup call per chunk, sequential,
// and a chunk whose call fails keeps its original text. Never errors.
func (e *Enhancer) Beautify(ctx context.Context, raw string) string {
	chunks := SplitByTokens(raw, e.MaxTokens, 0)
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		out, err := e.chat.Complete(ctx,
			"You clean up raw speech transcripts. Fix punctuation and paragraphing. Do not summarize, do not add content.",
			chunk, 2048, 0.3)
		if err != nil || strings.TrimSpace(out) == "" {
			e.log.Warn("beautify call failed, keeping raw chunk", "chunk", i+1, "error", err)
			out = chunk
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Enhancer) expand(ctx context.Context, chunk string) (string, error) {
	system := "You turn lecture transcript excerpts into well-structured educational prose with headings. " +
		"Preserve every technical detail and code example. Write in complete sentences."
	return e.chat.Complete(ctx, system, chunk, 4096, 0.4)
}

func (e *Enhancer) closing(ctx context.Context, raw string) (string, error) {
	excerpt := raw
	if len(excerpt) > e.ExcerptChars {
		excerpt = excerpt[:e.ExcerptChars]
	}
	system := "You write closing sections for study documents."
	user := "Based on this transcript excerpt, write a short closing summary followed by an enumerated list of key takeaways:\n\n" + excerpt
	return e.chat.Complete(ctx, system, user, 1024, 0.4)
}

var fencedBlock = regexp.MustCompile("(?s)```[^\n]*\n.*?```")

// repairCodeBlocks re-validates up to CodeRepairLimit fenced code blocks
// through a further generative call. A failed repair keeps the original
// block; this step degrades quality, never availability.
func (e *Enhancer) repairCodeBlocks(ctx context.Context, doc string) string {
	repaired := 0
	return fencedBlock.ReplaceAllStringFunc(doc, func(block string) string {
		if repaired >= e.CodeRepairLimit {
			return block
		}
		repaired++
		out, err := e.chat.Complete(ctx,
			"You repair code blocks extracted from generated documents. Return only a single fenced code block, "+
				"made self-contained and syntactically valid. If it already is, return it unchanged.",
			block, 2048, 0.2)
		if err != nil {
			e.log.Warn("code block repair failed, keeping original", "error", err)
			return block
		}
		if m := fencedBlock.FindString(out); m != "" {
			return m
		}
		return block
	})
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts BPE tokens, falling back to a chars/4 estimate when
// the encoding is unavailable (e.g. offline).
func CountTokens(s string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(s, nil, nil))
	}
	return len(s)/4 + 1
}

// SplitByTokens splits text into token-bounded chunks on word boundaries,
// with each chunk after the first starting with roughly overlapTokens of
// trailing context from its predecessor.
func SplitByTokens(text string, maxTokens, overlapTokens int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	var current []string
	currentTokens := 0
	fresh := false // current holds words not yet emitted

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
		// Seed the next chunk with trailing overlap.
		if overlapTokens > 0 {
			kept := 0
			var overlap []string
			for i := len(current) - 1; i >= 0 && kept < overlapTokens; i-- {
				overlap = append([]string{current[i]}, overlap...)
				kept += CountTokens(current[i] + " ")
			}
			current = overlap
			currentTokens = kept
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for _, w := range words {
		wt := CountTokens(w + " ")
		if currentTokens+wt > maxTokens && len(current) > 0 {
			flush()
			fresh = false
		}
		current = append(current, w)
		currentTokens += wt
		fresh = true
	}
	if fresh && len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
