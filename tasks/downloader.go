package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/storage"
)

// VideoCreator persists new video records.
type VideoCreator interface {
	CreateVideo(v *storage.Video) error
}

// Processor kicks off the processing pipeline for a stored video.
type Processor interface {
	Process(videoID uint)
}

// Runner schedules background work.
type Runner interface {
	Go(fn func())
}

type goRunner struct{}

func (goRunner) Go(fn func()) { go fn() }

// Downloader fetches remote videos, registers them, and hands them to the
// pipeline. Every failure is recorded on the task; nothing is raised to
// the HTTP caller, who only ever sees the task id.
type Downloader struct {
	cfg      *config.Config
	registry *Registry
	fetcher  Fetcher
	store    VideoCreator
	pipeline Processor
	runner   Runner
	log      *logger.Logger
}

func NewDownloader(cfg *config.Config, registry *Registry, fetcher Fetcher, store VideoCreator,
	pipeline Processor, log *logger.Logger) *Downloader {
	return &Downloader{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetcher,
		store:    store,
		pipeline: pipeline,
		runner:   goRunner{},
		log:      log.With("component", "downloader"),
	}
}

// Start registers a task for the URL and begins the download in the
// background. It returns the task id immediately. A non-empty customTitle
// overrides the title the fetcher resolves from the source.
func (d *Downloader) Start(url, customTitle string) string {
	taskID := d.registry.Create(customTitle)
	d.runner.Go(func() {
		if err := d.run(context.Background(), taskID, url, customTitle); err != nil {
			d.log.Error("youtube download failed", "task_id", taskID, "url", url, "error", err)
			d.registry.MarkFailed(taskID, err)
		}
	})
	return taskID
}

func (d *Downloader) run(ctx context.Context, taskID, url, customTitle string) error {
	staging := filepath.Join(d.cfg.DataRoot, "downloads")
	path, title, err := d.fetcher.Fetch(ctx, url, staging, func(pct int) {
		d.registry.SetProgress(taskID, pct)
	})
	if err != nil {
		return err
	}
	if customTitle != "" {
		title = customTitle
	}
	d.registry.MarkDownloaded(taskID, title)

	fileName := filepath.Base(path)
	dest := filepath.Join(d.cfg.VideosDir(), fileName)
	if err := moveFile(path, dest); err != nil {
		return fmt.Errorf("move download into videos dir: %w", err)
	}

	video := &storage.Video{
		Title:      title,
		FileName:   fileName,
		FilePath:   dest,
		UploadDate: time.Now().UTC(),
		Status:     core.StatusProcessing,
		YouTubeURL: url,
	}
	if err := d.store.CreateVideo(video); err != nil {
		return fmt.Errorf("create video record: %w", err)
	}
	d.registry.MarkProcessing(taskID, video.ID)
	d.pipeline.Process(video.ID)
	return nil
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
