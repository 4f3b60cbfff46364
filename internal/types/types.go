package types

// CrawlTarget is a subject discovered on the site index page
type CrawlTarget struct {
	SubjectName string `json:"subject_name"`
	SubjectURL  string `json:"subject_url"`
}

// TopicTarget is a topic listing discovered under a subject
type TopicTarget struct {
	SubjectName string `json:"subject_name"`
	TopicName   string `json:"topic_name"`
	TopicURL    string `json:"topic_url"`
}

// QuestionPageTarget is one paginated question page under a topic
type QuestionPageTarget struct {
	Topic      TopicTarget `json:"topic"`
	PageURL    string      `json:"page_url"`
	PageNumber int         `json:"page_number"`
}

// QuestionRecord is the normalized representation of one exam question and its answer
type QuestionRecord struct {
	ID             string   `json:"id"`
	SourceURL      string   `json:"source_url"`
	QuestionNumber int      `json:"question_number"`
	QuestionText   string   `json:"question_text"`
	QuestionHTML   string   `json:"question_html"`
	AnswerText     string   `json:"answer"`
	AnswerHTML     string   `json:"answer_html"`
	Marks          *int     `json:"marks"`
	Difficulty     *string  `json:"difficulty"`
	Topic          string   `json:"topic"`
	Images         []string `json:"images"`
}

// HasImages reports whether at least one figure was stored for the question
func (q QuestionRecord) HasImages() bool {
	return len(q.Images) > 0
}

// FigureRef is the source reference of a figure found inside a question block,
// either an absolute URL or a data: URI
type FigureRef struct {
	Source string `json:"source"`
}

// ExtractedQuestion pairs a record with the figures it references, in document order
type ExtractedQuestion struct {
	Record  QuestionRecord
	Figures []FigureRef
}

// RunMetadata summarizes a finished crawl
type RunMetadata struct {
	Source              string `json:"source"`
	TotalQuestions      int    `json:"total_questions"`
	QuestionsWithImages int    `json:"questions_with_images"`
	TotalImages         int    `json:"total_images"`
	ImagesFolder        string `json:"images_folder"`
	ScrapeDate          string `json:"scrape_date"`
	RunID               string `json:"run_id"`
	StartedAt           string `json:"started_at"`
	FinishedAt          string `json:"finished_at"`
	PagesFetched        int    `json:"pages_fetched"`
	PagesSkipped        int    `json:"pages_skipped"`
}

// Document is the structured output of a run
type Document struct {
	Metadata  RunMetadata      `json:"metadata"`
	Questions []QuestionRecord `json:"questions"`
}
