package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/config"
	"github.com/go-scripts/examcrawl/internal/crawler"
	"github.com/go-scripts/examcrawl/internal/progress"
	"github.com/go-scripts/examcrawl/internal/store"
	"github.com/go-scripts/examcrawl/internal/types"
	"github.com/go-scripts/examcrawl/internal/writer"
)

var version = "dev"

// Globals are flags shared by every command
type Globals struct {
	Verbose   bool             `help:"Enable debug logging" short:"v" env:"EXAMCRAWL_VERBOSE"`
	LogFormat string           `help:"Log format" enum:"text,json,logfmt" default:"text" env:"EXAMCRAWL_LOG_FORMAT"`
	Version   kong.VersionFlag `help:"Print version and exit"`
}

// CLI is the command line surface
type CLI struct {
	Globals

	Crawl  CrawlCmd  `cmd:"" default:"withargs" help:"Crawl exam questions and write the output document"`
	Runs   RunsCmd   `cmd:"" help:"List runs stored in a SQLite database"`
	Export ExportCmd `cmd:"" help:"Write a stored run as an output document"`
	Import ImportCmd `cmd:"" help:"Store an output document in a SQLite database"`
}

// CrawlCmd runs one crawl. Limits that are not given keep the profile's value.
type CrawlCmd struct {
	Profile string `help:"Limit preset" enum:"local,batch" default:"local" env:"EXAMCRAWL_PROFILE"`

	MaxSubjects          *int `help:"Subjects to crawl" env:"EXAMCRAWL_MAX_SUBJECTS"`
	MaxTopicsPerSubject  *int `help:"Topics per subject" env:"EXAMCRAWL_MAX_TOPICS_PER_SUBJECT"`
	MaxQuestionsPerTopic *int `help:"Question pages per topic" env:"EXAMCRAWL_MAX_QUESTIONS_PER_TOPIC"`

	Headless       bool   `help:"Run the browser without a window" default:"true" negatable:"" env:"EXAMCRAWL_HEADLESS"`
	DownloadImages bool   `help:"Download question figures" default:"true" negatable:"" env:"EXAMCRAWL_DOWNLOAD_IMAGES"`
	Output         string `help:"Output document" short:"o" default:"${default_output}" env:"EXAMCRAWL_OUTPUT_FILE"`
	ImagesFolder   string `help:"Directory for downloaded figures" default:"${default_images}" env:"EXAMCRAWL_IMAGES_FOLDER"`
	SQLite         string `help:"Also store the run in this SQLite database" name:"sqlite" env:"EXAMCRAWL_SQLITE_PATH"`

	BaseURL      string        `help:"Site root" default:"${default_base_url}" env:"EXAMCRAWL_BASE_URL"`
	IndexPath    string        `help:"Path of the subject index" default:"${default_index_path}" env:"EXAMCRAWL_INDEX_PATH"`
	SiteProfile  string        `help:"JSON file overriding link patterns and selectors" type:"existingfile" env:"EXAMCRAWL_SITE_PROFILE"`
	UserAgent    string        `help:"Browser user agent" env:"EXAMCRAWL_USER_AGENT"`
	PageTimeout  time.Duration `help:"Navigation timeout" default:"30s" env:"EXAMCRAWL_PAGE_TIMEOUT"`
	ImageWorkers int           `help:"Simultaneous figure downloads per question" default:"4" env:"EXAMCRAWL_IMAGE_CONCURRENCY"`
	TimeBudget   time.Duration `help:"Stop planning new pages after this long (0 = unlimited)" default:"0s" env:"EXAMCRAWL_TIME_BUDGET"`
	NoDelay      bool          `help:"Skip the human-like pauses" env:"EXAMCRAWL_NO_DELAY"`
	IgnoreRobots bool          `help:"Do not consult robots.txt" env:"EXAMCRAWL_IGNORE_ROBOTS"`
	NoSpinner    bool          `help:"Disable the progress spinner" env:"EXAMCRAWL_NO_SPINNER"`
}

// Config builds the run configuration from the selected profile and flags
func (c *CrawlCmd) Config() config.Config {
	cfg := config.Default(config.Profile(c.Profile))

	if c.MaxSubjects != nil {
		cfg.MaxSubjects = *c.MaxSubjects
	}
	if c.MaxTopicsPerSubject != nil {
		cfg.MaxTopicsPerSubject = *c.MaxTopicsPerSubject
	}
	if c.MaxQuestionsPerTopic != nil {
		cfg.MaxQuestionsPerTopic = *c.MaxQuestionsPerTopic
	}

	cfg.Headless = c.Headless
	cfg.DownloadImages = c.DownloadImages
	cfg.OutputFile = c.Output
	cfg.ImagesFolder = c.ImagesFolder
	cfg.SQLitePath = c.SQLite
	cfg.BaseURL = c.BaseURL
	cfg.IndexPath = c.IndexPath
	cfg.SiteProfile = c.SiteProfile
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	cfg.PageTimeout = c.PageTimeout
	cfg.ImageConcurrency = c.ImageWorkers
	cfg.TimeBudget = c.TimeBudget
	cfg.NoDelay = c.NoDelay
	cfg.RespectRobots = !c.IgnoreRobots
	return cfg
}

// Run executes the crawl
func (c *CrawlCmd) Run(g *Globals, logger *log.Logger) error {
	cfg := c.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := browser.NewChromeSession(ctx, crawler.BrowserOptions(cfg), logger)
	if err != nil {
		return err
	}
	defer session.Close()

	var trackerOpts []progress.Option
	if !c.NoSpinner && !g.Verbose {
		trackerOpts = append(trackerOpts, progress.WithSpinner(os.Stderr))
	}
	tracker := progress.New(logger, trackerOpts...)

	cr, err := crawler.New(cfg, session, crawler.WithLogger(logger), crawler.WithProgress(tracker))
	if err != nil {
		return err
	}

	doc, runErr := cr.Run(ctx)
	if runErr != nil {
		logger.Warn("Crawl ended early, writing partial results", "error", runErr)
	}

	w, err := writer.New(cfg.OutputFile)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := w.WriteDocument(doc); err != nil {
		return errors.Join(runErr, err)
	}
	logger.Info("Results saved", "file", w.Path(), "questions", doc.Metadata.TotalQuestions)

	if cfg.SQLitePath != "" {
		if err := saveRun(cfg.SQLitePath, doc, logger); err != nil {
			logger.Error("Failed to store run in SQLite", "path", cfg.SQLitePath, "error", err)
		}
	}

	fmt.Println(progress.Render(tracker.Summary(), cfg.OutputFile, cfg.ImagesFolder))
	return runErr
}

func saveRun(path string, doc *types.Document, logger *log.Logger) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRun(doc); err != nil {
		return err
	}
	logger.Info("Run stored", "db", path, "run", doc.Metadata.RunID)
	return nil
}

func newLogger(g Globals) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if g.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	switch g.LogFormat {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	}
	return logger
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("examcrawl"),
		kong.Description("Scrape exam questions, answers and figures into a JSON document."),
		kong.UsageOnError(),
		kong.Vars{
			"version":            version,
			"default_output":     config.DefaultOutput,
			"default_images":     config.DefaultImagesDir,
			"default_base_url":   config.DefaultBaseURL,
			"default_index_path": config.DefaultIndexPath,
		},
	)

	logger := newLogger(cli.Globals)
	log.SetDefault(logger)

	err := ctx.Run(&cli.Globals, logger)

	var cerr *config.ConfigError
	switch {
	case err == nil:
	case errors.As(err, &cerr):
		logger.Error("Invalid configuration", "field", cerr.Field, "reason", cerr.Reason, "value", cerr.Value)
		os.Exit(2)
	case errors.Is(err, browser.ErrSessionUnavailable):
		logger.Error("Browser session unavailable", "error", err)
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	default:
		logger.Error("Crawl failed", "error", err)
		os.Exit(1)
	}
}
