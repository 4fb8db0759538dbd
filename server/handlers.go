package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"videorag/core"
	"videorag/processors"
	"videorag/storage"
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// ValidateVideoFile rejects uploads by extension and size before any bytes
// hit the pipeline.
func ValidateVideoFile(filename string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q", ext)
	}
	if size > maxBytes {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d", size, maxBytes)
	}
	return nil
}

// IsYouTubeURL accepts only youtube.com and youtu.be links.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == "youtube.com" || host == "youtu.be" || host == "m.youtube.com"
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if err := ValidateVideoFile(header.Filename, header.Size, s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fileName := filepath.Base(header.Filename)
	destPath := filepath.Join(s.cfg.VideosDir(), fileName)
	out, err := os.Create(destPath)
	if err != nil {
		s.log.Error("could not create upload target", "path", destPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(destPath)
		s.writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if err := out.Close(); err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	video := &storage.Video{
		Title:      core.DisplayTitle(core.BaseName(fileName)),
		FileName:   fileName,
		FilePath:   destPath,
		UploadDate: time.Now().UTC(),
		Status:     core.StatusUploading,
	}
	if err := s.records.CreateVideo(video); err != nil {
		s.log.Error("could not create video record", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not create video record")
		return
	}
	s.pipeline.Process(video.ID)
	s.log.Info("video uploaded", "video_id", video.ID, "file", fileName, "size", header.Size)

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":       video.ID,
		"title":    video.Title,
		"status":   video.Status,
		"message":  "upload accepted, processing started",
		"filename": fileName,
	})
}

func (s *Server) handleYouTubeUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !IsYouTubeURL(req.URL) {
		s.writeError(w, http.StatusBadRequest, "not a valid YouTube URL")
		return
	}
	taskID := s.downloader.Start(req.URL, strings.TrimSpace(req.Title))
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": taskID,
		"status":  "queued",
	})
}

func (s *Server) handleYouTubeStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		s.writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	task, ok := s.tasks.Get(taskID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	videos, err := s.records.ListVideos()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not list videos")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	resp := map[string]any{
		"id":               video.ID,
		"title":            video.Title,
		"status":           video.Status,
		"processing_stage": video.ProcessingStage,
		"upload_date":      video.UploadDate,
	}
	if video.DurationSeconds != nil {
		resp["duration_seconds"] = *video.DurationSeconds
	}
	if video.ErrorMessage != "" {
		resp["error"] = video.ErrorMessage
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	if video.Status != core.StatusCompleted {
		s.writeError(w, http.StatusConflict, "video is not ready for querying")
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.engine.Answer(r.Context(), core.BaseName(video.FileName), req.Question)
	if err != nil {
		s.log.Error("query failed", "video_id", video.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not answer question")
		return
	}

	record := &storage.Query{
		VideoID:        video.ID,
		Question:       req.Question,
		Answer:         answer.Text,
		TimestampStart: &answer.Start,
		TimestampEnd:   &answer.End,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.records.CreateQuery(record); err != nil {
		s.log.Warn("could not save query record", "video_id", video.ID, "error", err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":          answer.Text,
		"timestamp_start": answer.Start,
		"timestamp_end":   answer.End,
		"timestamp":       fmt.Sprintf("%s - %s", core.FormatTime(answer.Start), core.FormatTime(answer.End)),
	})
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	queries, err := s.records.ListQueries(video.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not list queries")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

func (s *Server) handleAIChat(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	if video.Status != core.StatusCompleted {
		s.writeError(w, http.StatusConflict, "video is not ready for chat")
		return
	}
	var req struct {
		Message string          `json:"message"`
		History []core.ChatTurn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	tr, err := core.LoadTranscript(s.cfg.TranscriptPath(core.BaseName(video.FileName)))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "transcript not available")
		return
	}
	reply, err := s.chat.Reply(r.Context(), video.Title, tr.Text, req.Message, req.History)
	if err != nil {
		s.log.Error("ai chat failed", "video_id", video.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "chat request failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"
	pdf, err := s.pdfs.Generate(r.Context(), video.ID, refresh)
	if err != nil {
		s.log.Error("pdf generation failed", "video_id", video.ID, "error", err)
		if errors.Is(err, processors.ErrTranscriptNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(pdf.FilePath)))
	http.ServeFile(w, r, pdf.FilePath)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	base := core.BaseName(video.FileName)
	for _, path := range []string{
		video.FilePath,
		s.cfg.AudioPath(base),
		s.cfg.TranscriptPath(base),
	} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not remove artifact", "path", path, "error", err)
		}
	}
	if pdf, err := s.records.GetPDF(video.ID); err == nil {
		if err := os.Remove(pdf.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not remove pdf", "path", pdf.FilePath, "error", err)
		}
	}
	if err := s.records.DeleteVideo(video.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not delete video")
		return
	}
	s.log.Info("video deleted", "video_id", video.ID)
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": video.ID})
}

func (s *Server) videoFromPath(w http.ResponseWriter, r *http.Request) (*storage.Video, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid video id")
		return nil, false
	}
	video, err := s.records.GetVideo(uint(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "video not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, "could not load video")
		}
		return nil, false
	}
	return video, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("could not encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
