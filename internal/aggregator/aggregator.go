// Package aggregator owns the question records of a run and produces the
// final output document.
package aggregator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/go-scripts/examcrawl/internal/types"
)

// ScrapeDateLayout formats metadata.scrape_date
const ScrapeDateLayout = "2006-01-02 15:04:05"

// Aggregator accumulates question records across a crawl. It is used from
// the single crawl goroutine only.
type Aggregator struct {
	source       string
	imagesFolder string
	runID        string
	startedAt    time.Time

	questions []types.QuestionRecord
	ids       map[string]bool
	stored    map[string]bool

	pagesFetched int
	pagesSkipped int
}

// New starts a run for source whose figures live in imagesFolder
func New(source, imagesFolder string, startedAt time.Time) *Aggregator {
	return &Aggregator{
		source:       source,
		imagesFolder: imagesFolder,
		runID:        uuid.NewString(),
		startedAt:    startedAt,
		questions:    make([]types.QuestionRecord, 0),
		ids:          make(map[string]bool),
		stored:       make(map[string]bool),
	}
}

// RunID identifies this run
func (a *Aggregator) RunID() string {
	return a.runID
}

// UniqueID returns id, or id with the first free -N suffix if id was already
// issued in this run, and records the result as issued
func (a *Aggregator) UniqueID(id string) string {
	candidate := id
	for n := 2; a.ids[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	a.ids[candidate] = true
	return candidate
}

// AddQuestions hands records over to the aggregator. A record whose id is
// already used by a stored record gets a fresh suffixed id.
func (a *Aggregator) AddQuestions(records ...types.QuestionRecord) {
	for _, rec := range records {
		if a.stored[rec.ID] {
			rec.ID = a.UniqueID(rec.ID)
		} else {
			a.ids[rec.ID] = true
		}
		a.stored[rec.ID] = true
		if rec.Images == nil {
			rec.Images = []string{}
		}
		a.questions = append(a.questions, rec)
	}
}

// PageFetched counts a question page that was rendered
func (a *Aggregator) PageFetched() {
	a.pagesFetched++
}

// PageSkipped counts a page that was given up on
func (a *Aggregator) PageSkipped(n int) {
	a.pagesSkipped += n
}

// Len is the number of records so far
func (a *Aggregator) Len() int {
	return len(a.questions)
}

// Finalize computes the totals and returns the output document
func (a *Aggregator) Finalize(now time.Time) *types.Document {
	meta := types.RunMetadata{
		Source:         a.source,
		TotalQuestions: len(a.questions),
		ImagesFolder:   a.imagesFolder,
		ScrapeDate:     now.Format(ScrapeDateLayout),
		RunID:          a.runID,
		StartedAt:      a.startedAt.Format(time.RFC3339),
		FinishedAt:     now.Format(time.RFC3339),
		PagesFetched:   a.pagesFetched,
		PagesSkipped:   a.pagesSkipped,
	}
	for _, q := range a.questions {
		if q.HasImages() {
			meta.QuestionsWithImages++
		}
		meta.TotalImages += len(q.Images)
	}

	questions := make([]types.QuestionRecord, len(a.questions))
	copy(questions, a.questions)
	return &types.Document{Metadata: meta, Questions: questions}
}
