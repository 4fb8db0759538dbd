package core

// Video lifecycle status.
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Stage is one discrete step of the processing pipeline. The Video record
// persists the stage being attempted, so stages are monotonically
// non-decreasing except on failure.
type Stage string

const (
	StageUploaded       Stage = "uploaded"
	StageAudioConverted Stage = "audio_converted"
	StageTranscribed    Stage = "transcribed"
	StageEmbedded       Stage = "embedded"
	StagePDFGenerated   Stage = "pdf_generated"
)

var stageOrder = []Stage{
	StageUploaded,
	StageAudioConverted,
	StageTranscribed,
	StageEmbedded,
	StagePDFGenerated,
}

// NextStage returns the stage that follows s, or false when s is terminal
// or unknown.
func NextStage(s Stage) (Stage, bool) {
	for i, st := range stageOrder {
		if st == s {
			if i+1 < len(stageOrder) {
				return stageOrder[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// Stages returns the ordered stage sequence.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// TranscriptChunk is a contiguous, time-bounded span of transcript text.
// Start/End are video-absolute seconds. The field set matches the persisted
// transcript JSON format and must stay stable.
type TranscriptChunk struct {
	Number string  `json:"number"`
	Title  string  `json:"title"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text"`
}

// Transcript is the per-video transcript artifact: ordered chunks plus the
// concatenated full text. Written once during transcription, never mutated.
type Transcript struct {
	Chunks []TranscriptChunk `json:"chunks"`
	Text   string            `json:"text"`
}

// EmbeddingRow is one row of the shared append-only embedding table.
// ChunkID is globally unique and strictly increasing; rows are deduplicated
// by the (Title, Start) pair.
type EmbeddingRow struct {
	ChunkID   int       `json:"chunk_id"`
	Title     string    `json:"title"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Hit is a scored retrieval result.
type Hit struct {
	Score float64      `json:"score"`
	Row   EmbeddingRow `json:"row"`
}

// Span is a segment-relative timestamped piece of recognized speech, as
// returned by the speech-to-text service before offset accounting.
type Span struct {
	Start float64
	End   float64
	Text  string
}

// ASRResult is the outcome of transcribing a single audio segment.
type ASRResult struct {
	Text  string
	Spans []Span
}

// ChatTurn is one message of an ad-hoc chat conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
