// Package pipeline drives the per-video processing state machine:
// uploaded → audio_converted → transcribed → embedded → pdf_generated.
package pipeline

import (
	"context"
	"fmt"

	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

// VideoStore persists Video records.
type VideoStore interface {
	GetVideo(id uint) (*storage.Video, error)
	SaveVideo(v *storage.Video) error
}

// Transcoder converts a video to audio and splits audio into segments.
type Transcoder interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	SplitSegments(ctx context.Context, audioPath, chunksDir, base string) ([]string, error)
}

// TranscriptBuilder merges segment transcriptions into one transcript.
type TranscriptBuilder interface {
	Build(ctx context.Context, segmentPaths []string, title string) (*core.Transcript, error)
}

// EmbeddingUpserter adds a transcript's chunks to the embedding store.
type EmbeddingUpserter interface {
	Upsert(ctx context.Context, tr *core.Transcript, title string) (int, error)
}

// DocumentGenerator produces the PDF artifact.
type DocumentGenerator interface {
	Generate(ctx context.Context, videoID uint, refresh bool) (*storage.PDF, error)
}

// Pipeline runs every stage of one video strictly in order. Each stage is
// idempotent through output-existence checks, so re-invoking the pipeline
// on a partially processed video resumes where it left off.
type Pipeline struct {
	cfg         *config.Config
	store       VideoStore
	transcoder  Transcoder
	transcriber TranscriptBuilder
	embeddings  EmbeddingUpserter
	documents   DocumentGenerator
	probe       func(path string) (float64, error)
	exec        Executor
	log         *logger.Logger
}

func New(cfg *config.Config, store VideoStore, transcoder Transcoder, transcriber TranscriptBuilder,
	embeddings EmbeddingUpserter, documents DocumentGenerator, exec Executor, log *logger.Logger) *Pipeline {
	if exec == nil {
		exec = AsyncExecutor{}
	}
	return &Pipeline{
		cfg:         cfg,
		store:       store,
		transcoder:  transcoder,
		transcriber: transcriber,
		embeddings:  embeddings,
		documents:   documents,
		probe:       core.ProbeDuration,
		exec:        exec,
		log:         log.With("component", "pipeline"),
	}
}

// Process launches the pipeline for a video and returns immediately. The
// caller never blocks on completion; failures land on the Video record.
func (p *Pipeline) Process(videoID uint) {
	p.exec.Go(func() {
		_ = p.Run(context.Background(), videoID)
	})
}

// Run executes the pipeline synchronously. Any stage error marks the video
// failed with the error message preserved verbatim; artifacts written so
// far stay on disk for the next attempt's idempotency checks.
func (p *Pipeline) Run(ctx context.Context, videoID uint) error {
	video, err := p.store.GetVideo(videoID)
	if err != nil {
		p.log.Error("video not found for processing", "video_id", videoID, "error", err)
		return err
	}
	p.log.Info("starting video processing", "video_id", videoID, "file", video.FileName)

	if err := p.execute(ctx, video); err != nil {
		p.log.Error("video processing failed", "video_id", videoID, "error", err)
		video.Status = core.StatusFailed
		video.ErrorMessage = err.Error()
		if saveErr := p.store.SaveVideo(video); saveErr != nil {
			p.log.Error("could not persist failure", "video_id", videoID, "error", saveErr)
		}
		return err
	}
	p.log.Info("video processing completed", "video_id", videoID)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, video *storage.Video) error {
	video.Status = core.StatusProcessing
	stage := core.StageUploaded
	for {
		// The attempted stage is persisted before its work starts, so a
		// crash leaves the record pointing at the stage that was running.
		video.ProcessingStage = string(stage)
		if err := p.store.SaveVideo(video); err != nil {
			return fmt.Errorf("persist stage %s: %w", stage, err)
		}
		if err := p.runStage(ctx, video, stage); err != nil {
			return err
		}
		next, ok := core.NextStage(stage)
		if !ok {
			break
		}
		stage = next
	}
	video.Status = core.StatusCompleted
	return p.store.SaveVideo(video)
}

func (p *Pipeline) runStage(ctx context.Context, video *storage.Video, stage core.Stage) error {
	base := core.BaseName(video.FileName)
	switch stage {
	case core.StageUploaded:
		return nil

	case core.StageAudioConverted:
		audioPath := p.cfg.AudioPath(base)
		if core.FileExists(audioPath) {
			p.log.Info("audio already exists, skipping conversion", "video_id", video.ID, "path", audioPath)
		} else if err := p.transcoder.ExtractAudio(ctx, video.FilePath, audioPath); err != nil {
			return fmt.Errorf("convert audio: %w", err)
		}
		video.AudioPath = audioPath
		if video.DurationSeconds == nil {
			if d, err := p.probe(audioPath); err == nil {
				video.DurationSeconds = &d
			}
		}
		return nil

	case core.StageTranscribed:
		jsonPath := p.cfg.TranscriptPath(base)
		if core.FileExists(jsonPath) {
			p.log.Info("transcript already exists, skipping transcription", "video_id", video.ID, "path", jsonPath)
		} else {
			segments, err := p.transcoder.SplitSegments(ctx, video.AudioPath, p.cfg.ChunksDir(), base)
			if err != nil {
				return fmt.Errorf("split audio: %w", err)
			}
			tr, err := p.transcriber.Build(ctx, segments, base)
			if err != nil {
				return err
			}
			if err := core.SaveJSONAtomic(jsonPath, tr); err != nil {
				return fmt.Errorf("save transcript: %w", err)
			}
		}
		video.JSONPath = jsonPath
		return nil

	case core.StageEmbedded:
		tr, err := core.LoadTranscript(p.cfg.TranscriptPath(base))
		if err != nil {
			return fmt.Errorf("load transcript for embedding: %w", err)
		}
		if _, err := p.embeddings.Upsert(ctx, tr, base); err != nil {
			return err
		}
		return nil

	case core.StagePDFGenerated:
		if _, err := p.documents.Generate(ctx, video.ID, false); err != nil {
			return fmt.Errorf("generate PDF: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown stage %q", stage)
}
