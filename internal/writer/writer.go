package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-scripts/examcrawl/internal/types"
)

// FileWriter writes the run's output document
type FileWriter struct {
	path string
}

// New creates a FileWriter for path, creating its parent directory
func New(path string) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &FileWriter{path: path}, nil
}

// Path returns the output file path
func (w *FileWriter) Path() string {
	return w.path
}

// WriteDocument writes doc as indented JSON. The previous file, if any, is
// replaced atomically so a crash never leaves a truncated document.
func (w *FileWriter) WriteDocument(doc *types.Document) error {
	if doc.Questions == nil {
		doc.Questions = []types.QuestionRecord{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", w.path, err)
	}
	return nil
}

// ReadDocument loads a document written by WriteDocument
func ReadDocument(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &doc, nil
}
