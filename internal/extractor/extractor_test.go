package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/examcrawl/internal/site"
	"github.com/go-scripts/examcrawl/internal/types"
)

const questionPage = `<html><head><title>ignored</title></head><body>
<h1>  Cell Structure  </h1>
<div class="page-card">
  <div class="question-card">
    <p>1. Describe the function of the nucleus in an animal cell. [2 marks]</p>
    <span class="difficulty-label">Medium</span>
    <img src="/figures/nucleus.png" alt="nucleus">
    <img data-src="/figures/nucleus.png">
    <div class="model-answer">The nucleus contains genetic material and controls cell activities.</div>
  </div>
  <article class="Question">
    <p>2. Explain why plant cells have a cell wall but animal cells do not.</p>
    <section class="solution">The cell wall provides structural support for the plant.</section>
  </article>
  <div class="question-card">Get better grades with our revision notes and plenty of exam questions</div>
  <div class="card">Too short</div>
  <div class="answer-card">An answer card is never a question even if it is long enough.</div>
  <div class="question-card">
    <p>1. Describe the function of the nucleus in an animal cell. [2 marks]</p>
    <span class="difficulty-label">Medium</span>
    <img src="/figures/nucleus.png" alt="nucleus">
    <img data-src="/figures/nucleus.png">
    <div class="model-answer">The nucleus contains genetic material and controls cell activities.</div>
  </div>
</div>
</body></html>`

func testTarget() types.QuestionPageTarget {
	return types.QuestionPageTarget{
		Topic: types.TopicTarget{
			SubjectName: "Biology",
			TopicName:   "Cells",
			TopicURL:    "https://example.com/gcse/biology/topic-questions/cells/",
		},
		PageURL:    "https://example.com/gcse/biology/topic-questions/cells/exam-questions/?page=1",
		PageNumber: 1,
	}
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	c, err := site.Default().Compile()
	require.NoError(t, err)
	return New(c, nil)
}

func TestExtractQuestions(t *testing.T) {
	got := newExtractor(t).Extract(questionPage, testTarget(), 0)
	require.Len(t, got, 2)

	first := got[0].Record
	assert.Equal(t, "biology_gcse-biology-topic-questions-cells_p1_1", first.ID)
	assert.Equal(t, 1, first.QuestionNumber)
	assert.Equal(t, testTarget().PageURL, first.SourceURL)
	assert.Equal(t, "Cell Structure", first.Topic)
	assert.Equal(t, "1. Describe the function of the nucleus in an animal cell. [2 marks] Medium", first.QuestionText)
	assert.NotContains(t, first.QuestionText, "genetic material")
	assert.Equal(t, "The nucleus contains genetic material and controls cell activities.", first.AnswerText)
	assert.True(t, strings.HasPrefix(first.AnswerHTML, `<div class="model-answer">`))
	assert.True(t, strings.HasPrefix(first.QuestionHTML, `<div class="question-card">`))
	require.NotNil(t, first.Marks)
	assert.Equal(t, 2, *first.Marks)
	require.NotNil(t, first.Difficulty)
	assert.Equal(t, "Medium", *first.Difficulty)
	assert.Equal(t, []string{}, first.Images)
	assert.Equal(t, []types.FigureRef{{Source: "https://example.com/figures/nucleus.png"}}, got[0].Figures)

	second := got[1].Record
	assert.Equal(t, "biology_gcse-biology-topic-questions-cells_p1_2", second.ID)
	assert.Equal(t, 2, second.QuestionNumber)
	assert.Nil(t, second.Marks)
	assert.Nil(t, second.Difficulty)
	assert.Equal(t, "The cell wall provides structural support for the plant.", second.AnswerText)
	assert.Empty(t, got[1].Figures)
}

func TestExtractNumbersRunAcrossTopicPages(t *testing.T) {
	target := testTarget()
	target.PageNumber = 2

	got := newExtractor(t).Extract(questionPage, target, 5)
	require.Len(t, got, 2)
	assert.Equal(t, 6, got[0].Record.QuestionNumber)
	assert.Equal(t, "biology_gcse-biology-topic-questions-cells_p2_6", got[0].Record.ID)
	assert.Equal(t, 7, got[1].Record.QuestionNumber)
}

func TestExtractIsIdempotent(t *testing.T) {
	e := newExtractor(t)
	assert.Equal(t, e.Extract(questionPage, testTarget(), 0), e.Extract(questionPage, testTarget(), 0))
}

func TestExtractEmptyPages(t *testing.T) {
	e := newExtractor(t)
	tests := []struct {
		name string
		html string
	}{
		{"empty document", ""},
		{"no blocks", "<html><body><p>Nothing to see here, just a paragraph of text.</p></body></html>"},
		{"only marketing", `<div class="card">Boost exam confidence with thousands of practice questions</div>`},
		{"garbage", "<<<>>>&&&"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, e.Extract(tt.html, testTarget(), 0))
		})
	}
}

func TestExtractFallsBackToTopicName(t *testing.T) {
	page := `<div class="question">What is the role of ribosomes in protein synthesis?</div>`
	got := newExtractor(t).Extract(page, testTarget(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, "Cells", got[0].Record.Topic)
	assert.Equal(t, "What is the role of ribosomes in protein synthesis?", got[0].Record.QuestionText)
	assert.Empty(t, got[0].Record.AnswerText)
}

func TestExtractTruncatesByRunes(t *testing.T) {
	p := site.Default()
	p.MaxTextLen = 40
	p.MaxHTMLLen = 60
	c, err := p.Compile()
	require.NoError(t, err)

	page := `<div class="question">` + strings.Repeat("é", 100) + `</div>`
	got := New(c, nil).Extract(page, testTarget(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, 40, len([]rune(got[0].Record.QuestionText)))
	assert.Equal(t, 60, len([]rune(got[0].Record.QuestionHTML)))
}

func TestExtractKeepsDataURIFigures(t *testing.T) {
	page := `<div class="question">Label the diagram of the heart below carefully.
		<img src="data:image/png;base64,iVBORw0KGgo=">
		<img src="https://cdn.example.com/heart.svg">
	</div>`
	got := newExtractor(t).Extract(page, testTarget(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, []types.FigureRef{
		{Source: "data:image/png;base64,iVBORw0KGgo="},
		{Source: "https://cdn.example.com/heart.svg"},
	}, got[0].Figures)
}

func TestExtractPairsAnswerWithWrappedQuestionText(t *testing.T) {
	page := `<h1>Cell Structure</h1>
<div class="page-card">
  <div class="question-card">
    <div class="question-text">1. Describe the function of the nucleus in an animal cell. [2 marks]</div>
    <div class="model-answer">The nucleus contains genetic material and controls cell activities.</div>
  </div>
  <div class="question-card">
    <div class="question-text">2. Name the organelle where aerobic respiration takes place.</div>
    <div class="question-hint">Think about where energy is released.</div>
    <div class="model-answer">The mitochondria.</div>
  </div>
</div>`

	got := newExtractor(t).Extract(page, testTarget(), 0)
	require.Len(t, got, 2)

	first := got[0].Record
	assert.Equal(t, "1. Describe the function of the nucleus in an animal cell. [2 marks]", first.QuestionText)
	assert.Equal(t, "The nucleus contains genetic material and controls cell activities.", first.AnswerText)
	assert.True(t, strings.HasPrefix(first.QuestionHTML, `<div class="question-card">`))
	require.NotNil(t, first.Marks)
	assert.Equal(t, 2, *first.Marks)

	second := got[1].Record
	assert.Equal(t, "2. Name the organelle where aerobic respiration takes place. Think about where energy is released.", second.QuestionText)
	assert.Equal(t, "The mitochondria.", second.AnswerText)
}

func TestExtractKeepsSameWordingWithDifferentFigures(t *testing.T) {
	page := `<div class="question-card">Label the structures shown in the diagram below. [2 marks]<img src="/fig/a.png"></div>
<div class="question-card">Label the structures shown in the diagram below. [2 marks]<img src="/fig/b.png"></div>
<div class="question-card">Label the structures shown in the diagram below. [2 marks]<img src="/fig/b.png"></div>`

	got := newExtractor(t).Extract(page, testTarget(), 0)
	require.Len(t, got, 2)
	assert.Equal(t, []types.FigureRef{{Source: "https://example.com/fig/a.png"}}, got[0].Figures)
	assert.Equal(t, []types.FigureRef{{Source: "https://example.com/fig/b.png"}}, got[1].Figures)
	assert.NotEqual(t, got[0].Record.ID, got[1].Record.ID)
}

func TestQuestionID(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		topic   string
		page    int
		number  int
		want    string
	}{
		{"plain", "Biology", "https://example.com/gcse/biology/cells/", 1, 1, "biology_gcse-biology-cells_p1_1"},
		{"spaces and ampersand", "A-Level Chemistry & Physics", "https://example.com/a-level/chem/", 3, 12, "a-level-chemistry-physics_a-level-chem_p3_12"},
		{"underscores folded", "IB_Maths", "https://example.com/ib/maths_aa/", 2, 4, "ib-maths_ib-maths-aa_p2_4"},
		{"empty parts", "", "https://example.com/", 1, 1, "subject_topic_p1_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := types.QuestionPageTarget{
				Topic:      types.TopicTarget{SubjectName: tt.subject, TopicURL: tt.topic},
				PageNumber: tt.page,
			}
			id := QuestionID(target, tt.number)
			assert.Equal(t, tt.want, id)
			assert.NotContains(t, id, "/")
			assert.NotContains(t, id, " ")
		})
	}
}
