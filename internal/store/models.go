package store

// Run is one finished crawl
type Run struct {
	ID                  uint   `gorm:"primaryKey"`
	RunID               string `gorm:"not null;uniqueIndex"`
	Source              string `gorm:"not null"`
	ScrapeDate          string `gorm:"not null"`
	StartedAt           string
	FinishedAt          string
	TotalQuestions      int `gorm:"not null"`
	QuestionsWithImages int `gorm:"not null"`
	TotalImages         int `gorm:"not null"`
	ImagesFolder        string
	PagesFetched        int
	PagesSkipped        int
	Questions           []Question `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE"`
	CreatedAt           int64      `gorm:"autoCreateTime"`
}

// Question is one stored question record
type Question struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"not null;index;uniqueIndex:idx_run_question"`
	QuestionID     string `gorm:"not null;uniqueIndex:idx_run_question"`
	Position       int    `gorm:"not null"`
	SourceURL      string `gorm:"not null;index"`
	QuestionNumber int
	QuestionText   string
	QuestionHTML   string
	AnswerText     string
	AnswerHTML     string
	Marks          *int
	Difficulty     *string
	Topic          string
	Images         []string `gorm:"serializer:json"`
}
