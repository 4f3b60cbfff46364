package progress

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/go-scripts/examcrawl/internal/types"
)

func TestTrackerCounts(t *testing.T) {
	var buf bytes.Buffer
	tr := New(log.New(&buf))

	page := types.QuestionPageTarget{PageURL: "https://example.com/q/?page=1", PageNumber: 1}
	tr.SubjectStarted(types.CrawlTarget{SubjectName: "Biology"}, 1, 2)
	tr.TopicStarted(types.TopicTarget{TopicName: "Cells"}, 1, 1)
	tr.PageStarted(page)
	tr.PageDone(page, []types.QuestionRecord{
		{ID: "a", Images: []string{"a_fig1.png", "a_fig2.png"}},
		{ID: "b", Images: []string{}},
	}, 1)
	tr.PageSkipped(page, "timeout")
	tr.Skipped("topic", "https://example.com/t/", "no_links")
	tr.Renders(3, 1)
	tr.Stop()

	s := tr.Summary()
	assert.Equal(t, 1, s.Subjects)
	assert.Equal(t, 1, s.Topics)
	assert.Equal(t, 1, s.PagesFetched)
	assert.Equal(t, 1, s.PagesSkipped)
	assert.Equal(t, 1, s.ListingsSkipped)
	assert.Equal(t, 2, s.Questions)
	assert.Equal(t, 1, s.QuestionsWithImages)
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, 1, s.ImagesOmitted)
	assert.Equal(t, 3, s.Renders)
	assert.Equal(t, 1, s.RenderFailures)

	out := buf.String()
	assert.Contains(t, out, "Biology")
	assert.Contains(t, out, "reason=timeout")
	assert.Contains(t, out, "reason=no_links")
}

func TestTrackerWithSpinner(t *testing.T) {
	var spin, logs bytes.Buffer
	tr := New(log.New(&logs), WithSpinner(&spin))

	page := types.QuestionPageTarget{PageURL: "https://example.com/q/", PageNumber: 1}
	tr.PageStarted(page)
	tr.PageDone(page, nil, 0)
	tr.Stop()
	assert.Equal(t, 1, tr.Summary().PagesFetched)
}

func TestRender(t *testing.T) {
	out := Render(Stats{Questions: 4, QuestionsWithImages: 1, Images: 1, PagesFetched: 2, Renders: 5, RenderFailures: 1}, "out.json", "images")
	assert.Contains(t, out, "Scraping complete")
	assert.Contains(t, out, "5 (1 failed)")
	assert.Contains(t, out, "Questions with images")
	assert.Contains(t, out, "out.json")
	assert.Contains(t, out, "images")
	assert.NotContains(t, out, "No questions found")

	empty := Render(Stats{BudgetExhausted: true}, "out.json", "images")
	assert.Contains(t, empty, "No questions found")
	assert.Contains(t, empty, "Time budget exceeded")
	assert.NotContains(t, empty, "Images folder")
}
