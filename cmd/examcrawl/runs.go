package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/store"
	"github.com/go-scripts/examcrawl/internal/writer"
)

// RunsCmd lists the runs kept in a SQLite database
type RunsCmd struct {
	DB string `help:"SQLite database" required:"" type:"existingfile" env:"EXAMCRAWL_SQLITE_PATH"`
}

// Run prints one run id per line, oldest first
func (c *RunsCmd) Run(logger *log.Logger) error {
	db, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.RunIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	logger.Debug("Listed runs", "db", c.DB, "count", len(ids))
	return nil
}

// ExportCmd writes a stored run back out as an output document
type ExportCmd struct {
	RunID  string `arg:"" help:"Run to export"`
	DB     string `help:"SQLite database" required:"" type:"existingfile" env:"EXAMCRAWL_SQLITE_PATH"`
	Output string `help:"Output document" short:"o" default:"${default_output}"`
}

// Run exports the run
func (c *ExportCmd) Run(logger *log.Logger) error {
	db, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := db.LoadRun(c.RunID)
	if err != nil {
		return err
	}
	w, err := writer.New(c.Output)
	if err != nil {
		return err
	}
	if err := w.WriteDocument(doc); err != nil {
		return err
	}
	logger.Info("Run exported", "run", c.RunID, "file", w.Path(), "questions", doc.Metadata.TotalQuestions)
	return nil
}

// ImportCmd stores an existing output document in a SQLite database
type ImportCmd struct {
	File string `arg:"" help:"Output document to import" type:"existingfile"`
	DB   string `help:"SQLite database" required:"" env:"EXAMCRAWL_SQLITE_PATH"`
}

// Run imports the document
func (c *ImportCmd) Run(logger *log.Logger) error {
	doc, err := writer.ReadDocument(c.File)
	if err != nil {
		return err
	}
	if doc.Metadata.RunID == "" {
		return fmt.Errorf("%s has no run_id", c.File)
	}
	return saveRun(c.DB, doc, logger)
}
