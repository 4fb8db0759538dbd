// Package server exposes the HTTP API for uploads, processing status,
// transcript queries, chat, and PDF retrieval.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/rag"
	"videorag/storage"
	"videorag/tasks"
)

// Records is the slice of the record store the API needs.
type Records interface {
	CreateVideo(v *storage.Video) error
	GetVideo(id uint) (*storage.Video, error)
	ListVideos() ([]storage.Video, error)
	DeleteVideo(id uint) error
	CreateQuery(q *storage.Query) error
	ListQueries(videoID uint) ([]storage.Query, error)
	GetPDF(videoID uint) (*storage.PDF, error)
}

// Processor starts the background pipeline for a video.
type Processor interface {
	Process(videoID uint)
}

// QueryEngine answers questions against a video's transcript.
type QueryEngine interface {
	Answer(ctx context.Context, title, question string) (*rag.Answer, error)
}

// ChatService holds a free-form conversation grounded on a transcript.
type ChatService interface {
	Reply(ctx context.Context, videoTitle, transcriptText, message string, history []core.ChatTurn) (string, error)
}

// PDFService produces (or refreshes) the PDF for a video.
type PDFService interface {
	Generate(ctx context.Context, videoID uint, refresh bool) (*storage.PDF, error)
}

// DownloadService starts a background fetch and returns a task id.
type DownloadService interface {
	Start(url, customTitle string) string
}

// TaskLookup resolves download task snapshots.
type TaskLookup interface {
	Get(id string) (tasks.Task, bool)
}

type Server struct {
	cfg        *config.Config
	records    Records
	pipeline   Processor
	engine     QueryEngine
	chat       ChatService
	pdfs       PDFService
	downloader DownloadService
	tasks      TaskLookup
	log        *logger.Logger
}

func New(cfg *config.Config, records Records, pipeline Processor, engine QueryEngine,
	chat ChatService, pdfs PDFService, downloader DownloadService, tasks TaskLookup,
	log *logger.Logger) *Server {
	return &Server{
		cfg:        cfg,
		records:    records,
		pipeline:   pipeline,
		engine:     engine,
		chat:       chat,
		pdfs:       pdfs,
		downloader: downloader,
		tasks:      tasks,
		log:        log.With("component", "server"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Route("/api/videos", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Post("/upload_youtube", s.handleYouTubeUpload)
		r.Get("/youtube_status", s.handleYouTubeStatus)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/query", s.handleQuery)
			r.Get("/queries", s.handleQueryHistory)
			r.Post("/ai_chat", s.handleAIChat)
			r.Get("/pdf", s.handlePDF)
			r.Delete("/", s.handleDelete)
		})
	})
	return r
}

func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.cfg.ListenAddr)
	return http.ListenAndServe(s.cfg.ListenAddr, s.Router())
}
