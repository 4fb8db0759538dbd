package processors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

var ErrTranscriptNotFound = errors.New("transcript not found")

// Renderer lays out a title and body into a PDF file. The rendering
// library sits behind this boundary; the pipeline only depends on the
// produced artifact.
type Renderer interface {
	Render(title, body, outPath string) error
}

// PDFRecords is the slice of the record store the generator needs.
type PDFRecords interface {
	GetVideo(id uint) (*storage.Video, error)
	GetPDF(videoID uint) (*storage.PDF, error)
	UpsertPDF(p *storage.PDF) error
}

// PDFGenerator turns a video's transcript into an AI-enhanced document.
type PDFGenerator struct {
	cfg      *config.Config
	records  PDFRecords
	enhancer *Enhancer
	renderer Renderer
	log      *logger.Logger
}

func NewPDFGenerator(cfg *config.Config, records PDFRecords, enhancer *Enhancer, renderer Renderer, log *logger.Logger) *PDFGenerator {
	if renderer == nil {
		renderer = FPDFRenderer{}
	}
	return &PDFGenerator{
		cfg:      cfg,
		records:  records,
		enhancer: enhancer,
		renderer: renderer,
		log:      log.With("component", "pdf"),
	}
}

// Generate builds (or rebuilds, when refresh is set) the PDF for a video.
// Callable mid-pipeline (status processing) and after completion.
func (g *PDFGenerator) Generate(ctx context.Context, videoID uint, refresh bool) (*storage.PDF, error) {
	video, err := g.records.GetVideo(videoID)
	if err != nil {
		return nil, err
	}
	if video.Status != core.StatusCompleted && video.Status != core.StatusProcessing {
		return nil, fmt.Errorf("video status must be completed or processing, found: %s", video.Status)
	}

	if !refresh {
		if existing, err := g.records.GetPDF(videoID); err == nil && core.FileExists(existing.FilePath) {
			g.log.Info("PDF already exists", "video_id", videoID, "path", existing.FilePath)
			return existing, nil
		}
	}

	base := core.BaseName(video.FileName)
	jsonPath, err := FindTranscript(g.cfg, base)
	if err != nil {
		return nil, err
	}
	tr, err := core.LoadTranscript(jsonPath)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(tr.Text)
	if raw == "" {
		return nil, fmt.Errorf("no text in transcript %s", jsonPath)
	}

	body, err := g.enhancer.Enhance(ctx, raw)
	if err != nil {
		g.log.Warn("enhanced path failed, falling back to beautify", "video_id", videoID, "error", err)
		body = g.enhancer.Beautify(ctx, raw)
	}

	title := core.DisplayTitle(base)
	outPath := filepath.Join(g.cfg.PDFsDir(), title+".pdf")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	if err := g.renderer.Render(title, body, outPath); err != nil {
		return nil, fmt.Errorf("render PDF: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, err
	}
	pdf := &storage.PDF{VideoID: videoID, FilePath: outPath, FileSizeBytes: info.Size()}
	if err := g.records.UpsertPDF(pdf); err != nil {
		return nil, err
	}
	g.log.Info("PDF generated", "video_id", videoID, "path", outPath, "bytes", info.Size())
	return pdf, nil
}

// FindTranscript locates a video's transcript JSON, falling back to a
// partial base-name match when the expected path is missing.
func FindTranscript(cfg *config.Config, base string) (string, error) {
	path := cfg.TranscriptPath(base)
	if core.FileExists(path) {
		return path, nil
	}
	matches, err := filepath.Glob(filepath.Join(cfg.JSONsDir(), "*"+base+"*.json"))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrTranscriptNotFound, base)
}

// FPDFRenderer is the default Renderer.
type FPDFRenderer struct{}

func (FPDFRenderer) Render(title, body, outPath string) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.AddPage()
	// fpdf core fonts are cp1252-only; drop what cannot be encoded.
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetFont("Helvetica", "B", 16)
	doc.MultiCell(0, 8, tr(title), "", "L", false)
	doc.Ln(4)
	doc.SetFont("Helvetica", "", 11)
	doc.MultiCell(0, 5, tr(body), "", "L", false)
	return doc.OutputFileAndClose(outPath)
}
