// Package store keeps finished runs in a SQLite database next to the JSON
// output, so several runs can be queried together.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/go-scripts/examcrawl/internal/types"
)

// Store is a SQLite sink for run documents
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Run{}, &Question{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores doc and its questions in one transaction
func (s *Store) SaveRun(doc *types.Document) error {
	m := doc.Metadata
	run := Run{
		RunID:               m.RunID,
		Source:              m.Source,
		ScrapeDate:          m.ScrapeDate,
		StartedAt:           m.StartedAt,
		FinishedAt:          m.FinishedAt,
		TotalQuestions:      m.TotalQuestions,
		QuestionsWithImages: m.QuestionsWithImages,
		TotalImages:         m.TotalImages,
		ImagesFolder:        m.ImagesFolder,
		PagesFetched:        m.PagesFetched,
		PagesSkipped:        m.PagesSkipped,
	}

	questions := make([]Question, len(doc.Questions))
	for i, q := range doc.Questions {
		questions[i] = Question{
			RunID:          m.RunID,
			QuestionID:     q.ID,
			Position:       i,
			SourceURL:      q.SourceURL,
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.QuestionText,
			QuestionHTML:   q.QuestionHTML,
			AnswerText:     q.AnswerText,
			AnswerHTML:     q.AnswerHTML,
			Marks:          q.Marks,
			Difficulty:     q.Difficulty,
			Topic:          q.Topic,
			Images:         q.Images,
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(questions, 100).Error; err != nil {
			return fmt.Errorf("failed to save questions: %w", err)
		}
		return nil
	})
}

// LoadRun rebuilds the document of a stored run
func (s *Store) LoadRun(runID string) (*types.Document, error) {
	var run Run
	err := s.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	doc := &types.Document{
		Metadata: types.RunMetadata{
			Source:              run.Source,
			TotalQuestions:      run.TotalQuestions,
			QuestionsWithImages: run.QuestionsWithImages,
			TotalImages:         run.TotalImages,
			ImagesFolder:        run.ImagesFolder,
			ScrapeDate:          run.ScrapeDate,
			RunID:               run.RunID,
			StartedAt:           run.StartedAt,
			FinishedAt:          run.FinishedAt,
			PagesFetched:        run.PagesFetched,
			PagesSkipped:        run.PagesSkipped,
		},
		Questions: make([]types.QuestionRecord, 0, len(run.Questions)),
	}
	for _, q := range run.Questions {
		images := q.Images
		if images == nil {
			images = []string{}
		}
		doc.Questions = append(doc.Questions, types.QuestionRecord{
			ID:             q.QuestionID,
			SourceURL:      q.SourceURL,
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.QuestionText,
			QuestionHTML:   q.QuestionHTML,
			AnswerText:     q.AnswerText,
			AnswerHTML:     q.AnswerHTML,
			Marks:          q.Marks,
			Difficulty:     q.Difficulty,
			Topic:          q.Topic,
			Images:         images,
		})
	}
	return doc, nil
}

// RunIDs lists stored runs, oldest first
func (s *Store) RunIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&Run{}).Order("id ASC").Pluck("run_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}
