// Package tasks tracks ephemeral download jobs. Tasks live only in memory;
// a restart forgets them, and the durable state stays on the Video record.
package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusDownloaded  = "downloaded"
	StatusProcessing  = "processing"
	StatusFailed      = "failed"
)

// Task is a snapshot of one download job.
type Task struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Progress  int       `json:"progress"`
	VideoID   *uint     `json:"video_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry holds active tasks behind a mutex.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Create registers a new queued task and returns its id. A non-empty
// title is the caller's chosen name for the eventual video.
func (r *Registry) Create(title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.tasks[id] = &Task{
		TaskID:    id,
		Status:    StatusQueued,
		Message:   "download queued",
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	return id
}

// Get returns a copy of the task, or false if the id is unknown.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// SetProgress updates download progress. Progress never moves backwards;
// yt-dlp re-emits low percentages when it switches between format streams.
func (r *Registry) SetProgress(id string, pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	if pct > 100 {
		pct = 100
	}
	t.Status = StatusDownloading
	if pct > t.Progress {
		t.Progress = pct
	}
	t.Message = "downloading"
}

// MarkDownloaded records the fetched title before processing starts.
func (r *Registry) MarkDownloaded(id, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = StatusDownloaded
		t.Progress = 100
		t.Title = title
		t.Message = "download finished"
	}
}

// MarkProcessing attaches the created video record and hands off to the
// processing pipeline.
func (r *Registry) MarkProcessing(id string, videoID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = StatusProcessing
		t.VideoID = &videoID
		t.Message = "processing started"
	}
}

func (r *Registry) MarkFailed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = StatusFailed
		t.Error = err.Error()
		t.Message = "download failed"
	}
}
