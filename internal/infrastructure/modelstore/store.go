package modelstore

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yachty66/vimagine/internal/domain/generation"
)

// Store persists model configurations and generation jobs in SQLite.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&generation.ModelConfig{}, &generation.Job{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing GORM handle. Used by tests with an in-memory DB.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&generation.ModelConfig{}, &generation.Job{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// ModelByName loads a model's provider configuration.
func (s *Store) ModelByName(name string) (generation.ModelConfig, error) {
	var cfg generation.ModelConfig
	err := s.db.Where("name = ?", name).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return generation.ModelConfig{}, generation.ErrModelNotFound
	}
	if err != nil {
		return generation.ModelConfig{}, err
	}
	return cfg, nil
}

// SaveModel inserts or updates a model configuration by name.
func (s *Store) SaveModel(cfg *generation.ModelConfig) error {
	var existing generation.ModelConfig
	err := s.db.Where("name = ?", cfg.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(cfg).Error
	}
	if err != nil {
		return err
	}
	cfg.ID = existing.ID
	return s.db.Save(cfg).Error
}

// CreateJob records a new generation job.
func (s *Store) CreateJob(job *generation.Job) error {
	return s.db.Create(job).Error
}

// JobByID loads a generation job.
func (s *Store) JobByID(id string) (generation.Job, error) {
	var job generation.Job
	err := s.db.Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return generation.Job{}, generation.ErrJobNotFound
	}
	if err != nil {
		return generation.Job{}, err
	}
	return job, nil
}

// MarkJobSucceeded stores the result URL and flips the job to succeeded.
func (s *Store) MarkJobSucceeded(id, resultURL string) error {
	return s.db.Model(&generation.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     generation.JobSucceeded,
		"result_url": resultURL,
	}).Error
}

// MarkJobFailed stores the failure message and flips the job to failed.
func (s *Store) MarkJobFailed(id, message string) error {
	return s.db.Model(&generation.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":        generation.JobFailed,
		"error_message": message,
	}).Error
}
