package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videorag/core"
	"videorag/logger"
)

func openTestRecords(t *testing.T) *RecordStore {
	t.Helper()
	s, err := OpenRecords(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestVideoCRUD(t *testing.T) {
	s := openTestRecords(t)

	v := &Video{
		Title:      "My Talk",
		FileName:   "my_talk.mp4",
		FilePath:   "/data/videos/my_talk.mp4",
		UploadDate: time.Now().UTC(),
		Status:     core.StatusUploading,
	}
	require.NoError(t, s.CreateVideo(v))
	require.NotZero(t, v.ID)

	got, err := s.GetVideo(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "My Talk", got.Title)

	got.Status = core.StatusCompleted
	got.ProcessingStage = string(core.StagePDFGenerated)
	require.NoError(t, s.SaveVideo(got))

	got, err = s.GetVideo(v.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)

	list, err := s.ListVideos()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteVideo(v.ID))
	_, err = s.GetVideo(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryHistory(t *testing.T) {
	s := openTestRecords(t)

	v := &Video{Title: "t", FileName: "t.mp4", Status: core.StatusCompleted}
	require.NoError(t, s.CreateVideo(v))

	start, end := 5.0, 25.0
	require.NoError(t, s.CreateQuery(&Query{
		VideoID: v.ID, Question: "q1", Answer: "a1",
		TimestampStart: &start, TimestampEnd: &end, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.CreateQuery(&Query{
		VideoID: v.ID + 1, Question: "other video", Answer: "a", CreatedAt: time.Now().UTC(),
	}))

	queries, err := s.ListQueries(v.ID)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "q1", queries[0].Question)
	require.NotNil(t, queries[0].TimestampStart)
	assert.Equal(t, 5.0, *queries[0].TimestampStart)
}

func TestUpsertPDFOverwrites(t *testing.T) {
	s := openTestRecords(t)

	v := &Video{Title: "t", FileName: "t.mp4", Status: core.StatusCompleted}
	require.NoError(t, s.CreateVideo(v))

	require.NoError(t, s.UpsertPDF(&PDF{VideoID: v.ID, FilePath: "/pdfs/a.pdf", FileSizeBytes: 10}))
	require.NoError(t, s.UpsertPDF(&PDF{VideoID: v.ID, FilePath: "/pdfs/b.pdf", FileSizeBytes: 20}))

	got, err := s.GetPDF(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "/pdfs/b.pdf", got.FilePath)
	assert.Equal(t, int64(20), got.FileSizeBytes)

	_, err = s.GetPDF(v.ID + 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
