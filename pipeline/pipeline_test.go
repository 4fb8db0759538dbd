package pipeline

import (
	"context"
	"errors"
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

type memVideoStore struct {
	videos map[uint]*storage.Video
	stages []string
}

func (m *memVideoStore) GetVideo(id uint) (*storage.Video, error) {
	v, ok := m.videos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (m *memVideoStore) SaveVideo(v *storage.Video) error {
	m.videos[v.ID] = v
	m.stages = append(m.stages, v.ProcessingStage)
	return nil
}

type stubTranscoder struct {
	extracts int
	splits   int
	segments []string
	err      error
}

func (s *stubTranscoder) ExtractAudio(_ context.Context, _, audioPath string) error {
	s.extracts++
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(audioPath, []byte("mp3"), 0o644)
}

func (s *stubTranscoder) SplitSegments(_ context.Context, _, _, _ string) ([]string, error) {
	s.splits++
	return s.segments, s.err
}

type stubBuilder struct {
	builds int
	err    error
}

func (s *stubBuilder) Build(_ context.Context, _ []string, title string) (*core.Transcript, error) {
	s.builds++
	if s.err != nil {
		return nil, s.err
	}
	return &core.Transcript{
		Chunks: []core.TranscriptChunk{{Number: "0", Title: title, Start: 0, End: 10, Text: "hello"}},
		Text:   "hello",
	}, nil
}

type stubUpserter struct {
	upserts int
	titles  []string
}

func (s *stubUpserter) Upsert(_ context.Context, _ *core.Transcript, title string) (int, error) {
	s.upserts++
	s.titles = append(s.titles, title)
	return 1, nil
}

type stubDocs struct {
	generates int
	err       error
}

func (s *stubDocs) Generate(_ context.Context, _ uint, _ bool) (*storage.PDF, error) {
	s.generates++
	if s.err != nil {
		return nil, s.err
	}
	return &storage.PDF{VideoID: 1, FilePath: "out.pdf"}, nil
}

type fixture struct {
	cfg        *config.Config
	store      *memVideoStore
	transcoder *stubTranscoder
	builder    *stubBuilder
	upserter   *stubUpserter
	docs       *stubDocs
	pipe       *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{DataRoot: t.TempDir()}
	require.NoError(t, os.MkdirAll(cfg.AudiosDir(), 0o755))
	require.NoError(t, os.MkdirAll(cfg.JSONsDir(), 0o755))

	f := &fixture{
		cfg:   cfg,
		store: &memVideoStore{videos: map[uint]*storage.Video{}},
		transcoder: &stubTranscoder{
			segments: []string{filepath.Join(cfg.ChunksDir(), "talk_part_000.mp3")},
		},
		builder:  &stubBuilder{},
		upserter: &stubUpserter{},
		docs:     &stubDocs{},
	}
	f.pipe = New(cfg, f.store, f.transcoder, f.builder, f.upserter, f.docs, SyncExecutor{}, logger.NewNop())
	f.pipe.probe = func(string) (float64, error) { return 123.0, nil }

	f.store.videos[1] = &storage.Video{
		ID:       1,
		FileName: "talk.mp4",
		FilePath: filepath.Join(cfg.VideosDir(), "talk.mp4"),
		Status:   core.StatusUploading,
	}
	return f
}

func TestProcessRunsAllStages(t *testing.T) {
	f := newFixture(t)
	f.pipe.Process(1)

	video := f.store.videos[1]
	assert.Equal(t, core.StatusCompleted, video.Status)
	assert.Equal(t, string(core.StagePDFGenerated), video.ProcessingStage)
	assert.Equal(t, f.cfg.AudioPath("talk"), video.AudioPath)
	assert.Equal(t, f.cfg.TranscriptPath("talk"), video.JSONPath)
	require.NotNil(t, video.DurationSeconds)
	assert.Equal(t, 123.0, *video.DurationSeconds)

	assert.Equal(t, 1, f.transcoder.extracts)
	assert.Equal(t, 1, f.builder.builds)
	assert.Equal(t, []string{"talk"}, f.upserter.titles)
	assert.Equal(t, 1, f.docs.generates)

	// Each stage is persisted before its work runs.
	assert.Equal(t, []string{
		string(core.StageUploaded),
		string(core.StageAudioConverted),
		string(core.StageTranscribed),
		string(core.StageEmbedded),
		string(core.StagePDFGenerated),
		string(core.StagePDFGenerated), // final completed save
	}, f.store.stages)

	assert.FileExists(t, f.cfg.TranscriptPath("talk"))
}

func TestProcessSkipsExistingArtifacts(t *testing.T) {
	f := newFixture(t)

	// Artifacts from an earlier run.
	require.NoError(t, os.WriteFile(f.cfg.AudioPath("talk"), []byte("mp3"), 0o644))
	writeTranscript(t, f.cfg.TranscriptPath("talk"))

	f.pipe.Process(1)

	video := f.store.videos[1]
	assert.Equal(t, core.StatusCompleted, video.Status)
	assert.Equal(t, 0, f.transcoder.extracts, "existing audio skips conversion")
	assert.Equal(t, 0, f.transcoder.splits, "existing transcript skips splitting")
	assert.Equal(t, 0, f.builder.builds)
	assert.Equal(t, 1, f.upserter.upserts, "embedding always re-checks the table")
}

func TestProcessFailureMarksVideo(t *testing.T) {
	f := newFixture(t)
	f.builder.err = errors.New("transcribe segment 2: asr unavailable")

	f.pipe.Process(1)

	video := f.store.videos[1]
	assert.Equal(t, core.StatusFailed, video.Status)
	assert.Equal(t, "transcribe segment 2: asr unavailable", video.ErrorMessage)
	assert.Equal(t, string(core.StageTranscribed), video.ProcessingStage,
		"stage points at the work that was running")
	assert.Equal(t, 0, f.upserter.upserts)
	assert.Equal(t, 0, f.docs.generates)
}

func TestRunUnknownVideo(t *testing.T) {
	f := newFixture(t)
	err := f.pipe.Run(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func writeTranscript(t *testing.T, path string) {
	t.Helper()
	tr := &core.Transcript{
		Chunks: []core.TranscriptChunk{{Number: "0", Title: "talk", Start: 0, End: 10, Text: "hello"}},
		Text:   "hello",
	}
	require.NoError(t, core.SaveJSONAtomic(path, tr))
}
