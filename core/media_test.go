package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0_lecture.mp3.json")

	tr := &Transcript{
		Chunks: []TranscriptChunk{
			{Number: "0", Title: "lecture", Start: 0, End: 12.5, Text: "hello"},
			{Number: "0", Title: "lecture", Start: 12.5, End: 30, Text: "world"},
		},
		Text: "hello world",
	}
	require.NoError(t, SaveJSONAtomic(path, tr))
	assert.True(t, FileExists(path))

	got, err := LoadTranscript(path)
	require.NoError(t, err)
	assert.Equal(t, tr, got)
}

func TestLoadTranscriptMissing(t *testing.T) {
	_, err := LoadTranscript(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
