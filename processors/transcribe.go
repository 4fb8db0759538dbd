package processors

import (
	"context"
	"fmt"
	"os"
	"strings"

	"videorag/core"
	"videorag/logger"
)

// ASRClient sends one audio segment to the speech-to-text service.
type ASRClient interface {
	Transcribe(ctx context.Context, audioPath string) (core.ASRResult, error)
}

// DurationProbe measures a media file's true duration. Variable so tests
// run without ffprobe installed.
type DurationProbe func(path string) (float64, error)

// Transcriber merges segment-level transcriptions into one per-video
// transcript with video-absolute timestamps.
type Transcriber struct {
	asr   ASRClient
	probe DurationProbe
	log   *logger.Logger
}

func NewTranscriber(asr ASRClient, probe DurationProbe, log *logger.Logger) *Transcriber {
	if probe == nil {
		probe = core.ProbeDuration
	}
	return &Transcriber{asr: asr, probe: probe, log: log.With("component", "transcriber")}
}

// Build transcribes segments strictly in order. Each segment's spans are
// shifted by the cumulative measured duration of all prior segments, then
// the segment file is removed (successful or not) so disk usage stays
// bounded. Unconsumed segments are left for a retry to re-split over.
// The transcript is returned only when every segment succeeded; callers
// persist it in a single atomic write.
func (t *Transcriber) Build(ctx context.Context, segmentPaths []string, title string) (*core.Transcript, error) {
	tr := &core.Transcript{}
	var fullText strings.Builder
	offset := 0.0

	for i, segPath := range segmentPaths {
		if err := t.transcribeSegment(ctx, tr, &fullText, segPath, title, &offset, i, len(segmentPaths)); err != nil {
			return nil, err
		}
	}

	tr.Text = strings.TrimSpace(fullText.String())
	if len(tr.Chunks) == 0 {
		return nil, fmt.Errorf("transcription produced no chunks for %s", title)
	}
	return tr, nil
}

// transcribeSegment exists so the segment file removal is scoped to one
// iteration: the defer fires on the error path too.
func (t *Transcriber) transcribeSegment(ctx context.Context, tr *core.Transcript, fullText *strings.Builder, segPath, title string, offset *float64, i, total int) error {
	defer func() {
		if err := os.Remove(segPath); err != nil && !os.IsNotExist(err) {
			t.log.Warn("could not remove segment file", "path", segPath, "error", err)
		}
	}()

	t.log.Info("transcribing segment", "segment", i+1, "of", total, "path", segPath)

	// Measure the true duration before the file is consumed; the requested
	// segment length is not trustworthy for the final (short) segment.
	duration, err := t.probe(segPath)
	if err != nil {
		return fmt.Errorf("probe segment %d: %w", i+1, err)
	}

	res, err := t.asr.Transcribe(ctx, segPath)
	if err != nil {
		return fmt.Errorf("transcribe segment %d: %w", i+1, err)
	}

	for _, span := range res.Spans {
		tr.Chunks = append(tr.Chunks, core.TranscriptChunk{
			Number: "0",
			Title:  title,
			Start:  span.Start + *offset,
			End:    span.End + *offset,
			Text:   span.Text,
		})
	}
	if fullText.Len() > 0 {
		fullText.WriteString(" ")
	}
	fullText.WriteString(strings.TrimSpace(res.Text))

	*offset += duration
	return nil
}
