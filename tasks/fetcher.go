package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"videorag/logger"
)

// Fetcher downloads a remote video into destDir and reports progress
// percentages through the callback. It returns the downloaded file path
// and the video's title.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string, progress func(pct int)) (path, title string, err error)
}

var progressRe = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)

// YTDLPFetcher shells out to yt-dlp. The binary must be on PATH.
type YTDLPFetcher struct {
	log *logger.Logger
}

func NewYTDLPFetcher(log *logger.Logger) *YTDLPFetcher {
	return &YTDLPFetcher{log: log.With("component", "ytdlp")}
}

func (f *YTDLPFetcher) Fetch(ctx context.Context, url, destDir string, progress func(pct int)) (string, string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", err
	}
	title, err := f.probeTitle(ctx, url)
	if err != nil {
		return "", "", err
	}

	outTemplate := filepath.Join(destDir, "%(title)s.%(ext)s")
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--newline",
		"-f", "mp4/bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", outTemplate,
		url,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start yt-dlp: %w", err)
	}

	var lastLine string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		lastLine = line
		if m := progressRe.FindStringSubmatch(line); m != nil {
			if pct, perr := strconv.ParseFloat(m[1], 64); perr == nil && progress != nil {
				progress(int(pct))
			}
		}
	}
	if err := cmd.Wait(); err != nil {
		f.log.Error("yt-dlp failed", "url", url, "last_line", lastLine)
		return "", "", fmt.Errorf("yt-dlp: %w", err)
	}

	path, err := f.findOutput(ctx, url, destDir)
	if err != nil {
		return "", "", err
	}
	return path, title, nil
}

func (f *YTDLPFetcher) probeTitle(ctx context.Context, url string) (string, error) {
	out, err := exec.CommandContext(ctx, "yt-dlp", "--get-title", "--no-playlist", url).Output()
	if err != nil {
		return "", fmt.Errorf("resolve title: %w", err)
	}
	title := strings.TrimSpace(string(out))
	if title == "" {
		return "", fmt.Errorf("empty title for %s", url)
	}
	return title, nil
}

func (f *YTDLPFetcher) findOutput(ctx context.Context, url, destDir string) (string, error) {
	out, err := exec.CommandContext(ctx, "yt-dlp",
		"--get-filename",
		"-f", "mp4/bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(destDir, "%(title)s.%(ext)s"),
		url,
	).Output()
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	path := strings.TrimSpace(string(out))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("downloaded file missing: %w", err)
	}
	return path, nil
}
