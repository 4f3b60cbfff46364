package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/types"
)

// Stats are the counters of a run
type Stats struct {
	Subjects            int
	Topics              int
	PagesFetched        int
	PagesSkipped        int
	ListingsSkipped     int
	Questions           int
	QuestionsWithImages int
	Images              int
	ImagesOmitted       int
	Renders             int
	RenderFailures      int
	BudgetExhausted     bool
	Elapsed             time.Duration
}

// Tracker reports progress per subject, topic and page and keeps the run
// counters. It satisfies planner.Observer.
type Tracker struct {
	log     *log.Logger
	spinner *spinner.Spinner
	start   time.Time

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithSpinner shows a spinner with the current page on w
func WithSpinner(w io.Writer) Option {
	return func(t *Tracker) {
		t.spinner = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	}
}

// New creates a Tracker
func New(logger *log.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	t := &Tracker{
		log:   logger.WithPrefix("progress"),
		start: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SubjectStarted is called when the planner enters a subject
func (t *Tracker) SubjectStarted(s types.CrawlTarget, index, total int) {
	t.mu.Lock()
	t.stats.Subjects++
	t.mu.Unlock()
	t.log.Info("Subject", "name", s.SubjectName, "n", fmt.Sprintf("%d/%d", index, total), "url", s.SubjectURL)
}

// TopicStarted is called when the planner enters a topic
func (t *Tracker) TopicStarted(topic types.TopicTarget, index, total int) {
	t.mu.Lock()
	t.stats.Topics++
	t.mu.Unlock()
	t.log.Info("Topic", "name", topic.TopicName, "n", fmt.Sprintf("%d/%d", index, total), "url", topic.TopicURL)
}

// Skipped is called when a listing page is skipped
func (t *Tracker) Skipped(level, url, reason string) {
	t.mu.Lock()
	t.stats.ListingsSkipped++
	t.mu.Unlock()
	t.log.Warn("Skipped", "level", level, "url", url, "reason", reason)
}

// PageStarted marks the start of a question page fetch
func (t *Tracker) PageStarted(target types.QuestionPageTarget) {
	if t.spinner == nil {
		return
	}
	t.spinner.Suffix = " " + target.PageURL
	if !t.spinner.Active() {
		t.spinner.Start()
	}
}

// PageDone records a question page and what it produced
func (t *Tracker) PageDone(target types.QuestionPageTarget, records []types.QuestionRecord, omitted int) {
	t.mu.Lock()
	t.stats.PagesFetched++
	t.stats.Questions += len(records)
	t.stats.ImagesOmitted += omitted
	for _, r := range records {
		if r.HasImages() {
			t.stats.QuestionsWithImages++
		}
		t.stats.Images += len(r.Images)
	}
	t.mu.Unlock()

	t.pauseSpinner()
	t.log.Info("Page", "n", target.PageNumber, "questions", len(records), "url", target.PageURL)
}

// PageSkipped records a question page that could not be fetched
func (t *Tracker) PageSkipped(target types.QuestionPageTarget, reason string) {
	t.mu.Lock()
	t.stats.PagesSkipped++
	t.mu.Unlock()

	t.pauseSpinner()
	t.log.Warn("Skipped", "level", "page", "url", target.PageURL, "reason", reason)
}

// Renders records how many pages the browser rendered and how many URLs it
// gave up on, listings included
func (t *Tracker) Renders(ok, failed int) {
	t.mu.Lock()
	t.stats.Renders = ok
	t.stats.RenderFailures = failed
	t.mu.Unlock()
}

// BudgetExhausted records that the time budget cut the crawl short
func (t *Tracker) BudgetExhausted() {
	t.mu.Lock()
	t.stats.BudgetExhausted = true
	t.mu.Unlock()
}

// Stop halts the spinner
func (t *Tracker) Stop() {
	if t.spinner != nil && t.spinner.Active() {
		t.spinner.Stop()
	}
}

// Summary returns a snapshot of the counters
func (t *Tracker) Summary() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Elapsed = time.Since(t.start)
	return s
}

func (t *Tracker) pauseSpinner() {
	if t.spinner != nil && t.spinner.Active() {
		t.spinner.Stop()
	}
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Bold(true).
			Width(22)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// Render formats stats as a bordered summary box
func Render(s Stats, output, imagesDir string) string {
	rows := []struct {
		label string
		value string
	}{
		{"Questions", fmt.Sprintf("%d", s.Questions)},
		{"Questions with images", fmt.Sprintf("%d", s.QuestionsWithImages)},
		{"Images", fmt.Sprintf("%d", s.Images)},
		{"Images omitted", fmt.Sprintf("%d", s.ImagesOmitted)},
		{"Pages fetched", fmt.Sprintf("%d", s.PagesFetched)},
		{"Pages skipped", fmt.Sprintf("%d", s.PagesSkipped+s.ListingsSkipped)},
		{"Browser renders", fmt.Sprintf("%d (%d failed)", s.Renders, s.RenderFailures)},
		{"Subjects / topics", fmt.Sprintf("%d / %d", s.Subjects, s.Topics)},
		{"Elapsed", s.Elapsed.Round(time.Second).String()},
		{"Output", output},
	}
	if s.Images > 0 {
		rows = append(rows, struct {
			label string
			value string
		}{"Images folder", imagesDir})
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Scraping complete"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r.label))
		b.WriteString(valueStyle.Render(r.value))
		b.WriteString("\n")
	}
	if s.BudgetExhausted {
		b.WriteString(warnStyle.Render("Time budget exceeded, results are partial"))
		b.WriteString("\n")
	}
	if s.Questions == 0 {
		b.WriteString(warnStyle.Render("No questions found, the site markup may have changed"))
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
