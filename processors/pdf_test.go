package processors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

type memRecords struct {
	videos map[uint]*storage.Video
	pdfs   map[uint]*storage.PDF
}

func newMemRecords() *memRecords {
	return &memRecords{videos: map[uint]*storage.Video{}, pdfs: map[uint]*storage.PDF{}}
}

func (m *memRecords) GetVideo(id uint) (*storage.Video, error) {
	v, ok := m.videos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memRecords) GetPDF(videoID uint) (*storage.PDF, error) {
	p, ok := m.pdfs[videoID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRecords) UpsertPDF(p *storage.PDF) error {
	cp := *p
	m.pdfs[p.VideoID] = &cp
	return nil
}

type stubRenderer struct {
	calls int
}

func (r *stubRenderer) Render(_, body, outPath string) error {
	r.calls++
	return os.WriteFile(outPath, []byte("%PDF "+body), 0o644)
}

func pdfTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{DataRoot: t.TempDir()}
	require.NoError(t, os.MkdirAll(cfg.JSONsDir(), 0o755))
	return cfg
}

func writeTestTranscript(t *testing.T, path, text string) {
	t.Helper()
	tr := &core.Transcript{
		Chunks: []core.TranscriptChunk{{Number: "0", Title: "talk", Start: 0, End: 10, Text: text}},
		Text:   text,
	}
	require.NoError(t, core.SaveJSONAtomic(path, tr))
}

func newPDFGenerator(cfg *config.Config, records PDFRecords, renderer Renderer) *PDFGenerator {
	enhancer := NewEnhancer(&echoChat{}, logger.NewNop(), 0, 0, 1, 0)
	return NewPDFGenerator(cfg, records, enhancer, renderer, logger.NewNop())
}

func TestGenerateWritesPDFAndRecord(t *testing.T) {
	cfg := pdfTestConfig(t)
	records := newMemRecords()
	records.videos[1] = &storage.Video{ID: 1, FileName: "My Talk.mp4", Status: core.StatusCompleted}
	writeTestTranscript(t, cfg.TranscriptPath("my_talk"), "the transcript body")

	renderer := &stubRenderer{}
	gen := newPDFGenerator(cfg, records, renderer)

	pdf, err := gen.Generate(context.Background(), 1, false)
	require.NoError(t, err)
	assert.FileExists(t, pdf.FilePath)
	assert.Equal(t, "My Talk.pdf", filepath.Base(pdf.FilePath))
	assert.Positive(t, pdf.FileSizeBytes)
	assert.Equal(t, 1, renderer.calls)
}

func TestGenerateShortCircuitsOnExistingPDF(t *testing.T) {
	cfg := pdfTestConfig(t)
	records := newMemRecords()
	records.videos[1] = &storage.Video{ID: 1, FileName: "talk.mp4", Status: core.StatusCompleted}
	writeTestTranscript(t, cfg.TranscriptPath("talk"), "body")

	renderer := &stubRenderer{}
	gen := newPDFGenerator(cfg, records, renderer)

	first, err := gen.Generate(context.Background(), 1, false)
	require.NoError(t, err)

	second, err := gen.Generate(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, first.FilePath, second.FilePath)
	assert.Equal(t, 1, renderer.calls, "existing PDF is returned without rendering")

	_, err = gen.Generate(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, renderer.calls, "refresh forces regeneration")
}

func TestGenerateRejectsUnreadyVideo(t *testing.T) {
	cfg := pdfTestConfig(t)
	records := newMemRecords()
	records.videos[1] = &storage.Video{ID: 1, FileName: "talk.mp4", Status: core.StatusFailed}

	gen := newPDFGenerator(cfg, records, &stubRenderer{})
	_, err := gen.Generate(context.Background(), 1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestFindTranscriptGlobFallback(t *testing.T) {
	cfg := pdfTestConfig(t)
	odd := filepath.Join(cfg.JSONsDir(), "legacy_my_talk_export.json")
	writeTestTranscript(t, odd, "body")

	path, err := FindTranscript(cfg, "my_talk")
	require.NoError(t, err)
	assert.Equal(t, odd, path)

	_, err = FindTranscript(cfg, "nothing_here")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}
