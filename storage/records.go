package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"videorag/core"
	"videorag/logger"
)

// Video is the persistent record of an uploaded or fetched video.
type Video struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `json:"title"`
	FileName        string    `json:"file_name"`
	FilePath        string    `json:"file_path"`
	UploadDate      time.Time `gorm:"autoCreateTime" json:"upload_date"`
	Status          string    `json:"status"`
	ProcessingStage string    `json:"processing_stage"`
	DurationSeconds *float64  `json:"duration_seconds"`
	ErrorMessage    string    `json:"error_message"`
	AudioPath       string    `json:"audio_path"`
	JSONPath        string    `json:"json_path"`
	YouTubeURL      string    `json:"youtube_url"`
}

// Query is one entry of the append-only question/answer log.
type Query struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	VideoID        uint      `gorm:"index" json:"video_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	TimestampStart *float64  `json:"timestamp_start"`
	TimestampEnd   *float64  `json:"timestamp_end"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PDF is the generated document record, one per completed video.
type PDF struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	VideoID       uint      `gorm:"uniqueIndex" json:"video_id"`
	FilePath      string    `json:"file_path"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	GeneratedAt   time.Time `gorm:"autoCreateTime" json:"generated_at"`
}

var ErrNotFound = errors.New("record not found")

// RecordStore persists Video, Query and PDF records in SQLite.
type RecordStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func OpenRecords(path string, log *logger.Logger) (*RecordStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Video{}, &Query{}, &PDF{}); err != nil {
		return nil, fmt.Errorf("migrate records: %w", err)
	}
	return &RecordStore{db: db, log: log.With("component", "records")}, nil
}

func (s *RecordStore) CreateVideo(v *Video) error {
	if v.Status == "" {
		v.Status = core.StatusUploading
	}
	if v.ProcessingStage == "" {
		v.ProcessingStage = string(core.StageUploaded)
	}
	return s.db.Create(v).Error
}

func (s *RecordStore) GetVideo(id uint) (*Video, error) {
	var v Video
	if err := s.db.First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *RecordStore) SaveVideo(v *Video) error {
	return s.db.Save(v).Error
}

func (s *RecordStore) ListVideos() ([]Video, error) {
	var videos []Video
	err := s.db.Order("upload_date desc").Find(&videos).Error
	return videos, err
}

func (s *RecordStore) DeleteVideo(id uint) error {
	if err := s.db.Where("video_id = ?", id).Delete(&PDF{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("video_id = ?", id).Delete(&Query{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&Video{}, id).Error
}

func (s *RecordStore) CreateQuery(q *Query) error {
	return s.db.Create(q).Error
}

func (s *RecordStore) ListQueries(videoID uint) ([]Query, error) {
	var queries []Query
	err := s.db.Where("video_id = ?", videoID).Order("created_at desc").Find(&queries).Error
	return queries, err
}

func (s *RecordStore) GetPDF(videoID uint) (*PDF, error) {
	var p PDF
	if err := s.db.Where("video_id = ?", videoID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertPDF creates the record on first generation and overwrites it on
// explicit refresh.
func (s *RecordStore) UpsertPDF(p *PDF) error {
	existing, err := s.GetPDF(p.VideoID)
	if errors.Is(err, ErrNotFound) {
		return s.db.Create(p).Error
	}
	if err != nil {
		return err
	}
	p.ID = existing.ID
	p.GeneratedAt = time.Now()
	return s.db.Save(p).Error
}
