package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Profile selects a preset of crawl limits
type Profile string

const (
	// ProfileLocal keeps runs small enough to watch from a laptop
	ProfileLocal Profile = "local"
	// ProfileBatch is used by scheduled runs
	ProfileBatch Profile = "batch"
)

const (
	DefaultSource    = "savemyexams.co.uk"
	DefaultBaseURL   = "https://www.savemyexams.co.uk"
	DefaultIndexPath = "/subjects/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultOutput    = "savemyexams_questions.json"
	DefaultImagesDir = "images"
)

// DelayRange is an inclusive range a randomized pause is drawn from
type DelayRange struct {
	Min time.Duration `validate:"gte=0"`
	Max time.Duration `validate:"gtefield=Min"`
}

// Config holds every setting of a crawl run. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type Config struct {
	Source    string `validate:"required"`
	BaseURL   string `validate:"required,url"`
	IndexPath string `validate:"required"`

	MaxSubjects          int `validate:"gte=0"`
	MaxTopicsPerSubject  int `validate:"gte=0"`
	MaxQuestionsPerTopic int `validate:"gte=0"`

	Headless       bool
	DownloadImages bool
	ImagesFolder   string `validate:"required_if=DownloadImages true"`
	OutputFile     string `validate:"required"`
	SQLitePath     string

	UserAgent      string `validate:"required"`
	ViewportWidth  int    `validate:"gt=0"`
	ViewportHeight int    `validate:"gt=0"`
	Locale         string
	Timezone       string

	PageTimeout   time.Duration `validate:"gt=0"`
	RenderTimeout time.Duration `validate:"gt=0"`
	ReadySelector string        `validate:"required"`

	// Pauses emulating a person reading: before each navigation, after it,
	// between scrolls, and after finishing a question page, a topic and a subject.
	NoDelay       bool
	FetchDelay    DelayRange
	SettleDelay   DelayRange
	ScrollDelay   DelayRange
	QuestionPause DelayRange
	TopicPause    DelayRange
	SubjectPause  DelayRange

	ImageConcurrency int           `validate:"gte=1,lte=8"`
	ImageTimeout     time.Duration `validate:"gt=0"`
	TimeBudget       time.Duration `validate:"gte=0"`
	RespectRobots    bool
	SiteProfile      string
}

// Default returns the configuration for the given profile
func Default(p Profile) Config {
	cfg := Config{
		Source:    DefaultSource,
		BaseURL:   DefaultBaseURL,
		IndexPath: DefaultIndexPath,

		MaxSubjects:          2,
		MaxTopicsPerSubject:  2,
		MaxQuestionsPerTopic: 3,

		Headless:       true,
		DownloadImages: true,
		ImagesFolder:   DefaultImagesDir,
		OutputFile:     DefaultOutput,

		UserAgent:      DefaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		Timezone:       "America/New_York",

		PageTimeout:   30 * time.Second,
		RenderTimeout: 15 * time.Second,
		ReadySelector: "body",

		FetchDelay:    DelayRange{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
		SettleDelay:   DelayRange{Min: time.Second, Max: 3 * time.Second},
		ScrollDelay:   DelayRange{Min: 500 * time.Millisecond, Max: 2 * time.Second},
		QuestionPause: DelayRange{Min: time.Second, Max: 2 * time.Second},
		TopicPause:    DelayRange{Min: 1500 * time.Millisecond, Max: 2500 * time.Millisecond},
		SubjectPause:  DelayRange{Min: 2 * time.Second, Max: 3 * time.Second},

		ImageConcurrency: 4,
		ImageTimeout:     30 * time.Second,
		RespectRobots:    true,
	}

	if p == ProfileBatch {
		cfg.MaxSubjects = 25
		cfg.MaxTopicsPerSubject = 100
		cfg.MaxQuestionsPerTopic = 20
	}

	return cfg
}

// IndexURL is the page subjects are discovered from
func (c Config) IndexURL() string {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return strings.TrimRight(c.BaseURL, "/") + c.IndexPath
	}
	ref, err := url.Parse(c.IndexPath)
	if err != nil {
		return strings.TrimRight(c.BaseURL, "/") + c.IndexPath
	}
	return base.ResolveReference(ref).String()
}

// limitFields are reported with the invalid_limit reason
var limitFields = map[string]bool{
	"MaxSubjects":          true,
	"MaxTopicsPerSubject":  true,
	"MaxQuestionsPerTopic": true,
	"ImageConcurrency":     true,
	"TimeBudget":           true,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and returns a *ConfigError describing the
// first problem found
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}

	fe := verrs[0]
	reason := ReasonInvalidValue
	if limitFields[fe.Field()] {
		reason = ReasonInvalidLimit
	}
	return &ConfigError{
		Field:  strings.TrimPrefix(fe.Namespace(), "Config."),
		Reason: reason,
		Value:  fe.Value(),
		Rule:   fe.Tag(),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
