package processors

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"videorag/logger"
)

// FFmpegTranscoder converts videos to normalized audio and splits audio
// into fixed-length segments by shelling out to ffmpeg.
type FFmpegTranscoder struct {
	SegmentSeconds int
	log            *logger.Logger
}

func NewFFmpegTranscoder(segmentSeconds int, log *logger.Logger) *FFmpegTranscoder {
	return &FFmpegTranscoder{SegmentSeconds: segmentSeconds, log: log.With("component", "transcoder")}
}

// ExtractAudio converts a video file to a single mp3 at audioPath.
func (t *FFmpegTranscoder) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return err
	}
	t.log.Info("converting video to audio", "video", videoPath, "audio", audioPath)
	return runFFmpeg(ctx, "-y", "-i", videoPath, "-vn", audioPath)
}

// SplitSegments cuts the audio into SegmentSeconds-long pieces with stream
// copy (no re-encode) and returns the produced segment paths in order.
func (t *FFmpegTranscoder) SplitSegments(ctx context.Context, audioPath, chunksDir, base string) ([]string, error) {
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return nil, err
	}
	pattern := filepath.Join(chunksDir, base+"_part_%03d.mp3")
	err := runFFmpeg(ctx, "-y", "-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", t.SegmentSeconds),
		"-c", "copy",
		pattern)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(chunksDir, base+"_part_*.mp3"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments for %s", audioPath)
	}
	t.log.Info("audio split into segments", "audio", audioPath, "segments", len(matches))
	return matches, nil
}

func runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %v: %w: %s", args, err, tail(out, 400))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
