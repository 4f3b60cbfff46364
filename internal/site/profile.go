// Package site holds everything that couples the crawler to the target site's
// markup: link patterns for each traversal level and the selectors used to
// pull questions out of a rendered page. A markup change on the site should
// only ever require a new profile, never a code change.
package site

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/gobwas/glob"
)

// Profile describes how to navigate and extract one site
type Profile struct {
	// Glob patterns matched against absolute link URLs at each level
	SubjectLinks      []string `json:"subject_links"`
	TopicLinks        []string `json:"topic_links"`
	QuestionPageLinks []string `json:"question_page_links"`
	// Subject links without anchor text are ignored when set
	RequireSubjectText bool `json:"require_subject_text"`

	// Extraction selectors
	Title       string   `json:"title"`
	Block       string   `json:"block"`
	BlockClass  string   `json:"block_class"`
	Answer      string   `json:"answer"`
	AnswerClass string   `json:"answer_class"`
	Figure      string   `json:"figure"`
	FigureAttrs []string `json:"figure_attrs"`
	Marks       string   `json:"marks"`
	Difficulty  string   `json:"difficulty"`
	SkipPhrases []string `json:"skip_phrases"`
	MinTextLen  int      `json:"min_text_len"`
	MaxTextLen  int      `json:"max_text_len"`
	MaxHTMLLen  int      `json:"max_html_len"`
	PageParam   string   `json:"page_param"`
	FigureExts  []string `json:"figure_exts"`
	DefaultExt  string   `json:"default_ext"`
}

// Default is the profile for savemyexams.co.uk
func Default() Profile {
	return Profile{
		SubjectLinks:       []string{"*/gcse/*", "*/a-level/*", "*/ib/*"},
		TopicLinks:         []string{"*topic-questions*", "*questions*"},
		QuestionPageLinks:  []string{"*exam-questions*"},
		RequireSubjectText: true,

		Title:       "h1, h2",
		Block:       "div, article",
		BlockClass:  `(?i)question|card`,
		Answer:      "div, section, p",
		AnswerClass: `(?i)answer|solution|explanation`,
		Figure:      "img",
		FigureAttrs: []string{"src", "data-src"},
		Marks:       `(?i)(\d+)\s*marks?`,
		Difficulty:  `[class*="difficulty"]`,
		SkipPhrases: []string{
			"get better grades",
			"boost exam confidence",
			"learn from examiners",
			"identify weak areas",
		},
		MinTextLen: 30,
		MaxTextLen: 1000,
		MaxHTMLLen: 2000,
		PageParam:  "page",
		FigureExts: []string{"jpg", "jpeg", "png", "gif", "svg", "webp"},
		DefaultExt: "png",
	}
}

// Load reads a JSON profile from path. Fields missing from the file keep
// their defaults.
func Load(path string) (Profile, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read site profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse site profile %s: %w", path, err)
	}
	if _, err := p.Compile(); err != nil {
		return p, err
	}
	return p, nil
}

// Compiled is a Profile with its patterns compiled
type Compiled struct {
	Profile

	SubjectMatch Matcher
	TopicMatch   Matcher
	PageMatch    Matcher
	BlockRe      *regexp.Regexp
	AnswerRe     *regexp.Regexp
	MarksRe      *regexp.Regexp
	PageRe       *regexp.Regexp
}

// Compile validates the profile and compiles its patterns
func (p Profile) Compile() (*Compiled, error) {
	c := &Compiled{Profile: p}

	var err error
	if c.SubjectMatch, err = NewMatcher(p.SubjectLinks); err != nil {
		return nil, fmt.Errorf("subject_links: %w", err)
	}
	if c.TopicMatch, err = NewMatcher(p.TopicLinks); err != nil {
		return nil, fmt.Errorf("topic_links: %w", err)
	}
	if c.PageMatch, err = NewMatcher(p.QuestionPageLinks); err != nil {
		return nil, fmt.Errorf("question_page_links: %w", err)
	}
	if c.BlockRe, err = regexp.Compile(p.BlockClass); err != nil {
		return nil, fmt.Errorf("block_class: %w", err)
	}
	if c.AnswerRe, err = regexp.Compile(p.AnswerClass); err != nil {
		return nil, fmt.Errorf("answer_class: %w", err)
	}
	if c.MarksRe, err = regexp.Compile(p.Marks); err != nil {
		return nil, fmt.Errorf("marks: %w", err)
	}
	if p.PageParam != "" {
		c.PageRe = regexp.MustCompile(`[?&]` + regexp.QuoteMeta(p.PageParam) + `=(\d+)`)
	}
	return c, nil
}

// Matcher reports whether a URL matches any of a set of glob patterns
type Matcher []glob.Glob

// NewMatcher compiles glob patterns. Patterns are compiled without
// separators so that * spans path segments.
func NewMatcher(patterns []string) (Matcher, error) {
	m := make(Matcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		m = append(m, g)
	}
	return m, nil
}

// Match reports whether s matches at least one pattern
func (m Matcher) Match(s string) bool {
	for _, g := range m {
		if g.Match(s) {
			return true
		}
	}
	return false
}
