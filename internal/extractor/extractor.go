// Package extractor turns a rendered question page into question records.
// All markup knowledge comes from the site profile.
package extractor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/go-scripts/examcrawl/internal/site"
	"github.com/go-scripts/examcrawl/internal/types"
)

// Extractor parses question pages
type Extractor struct {
	profile *site.Compiled
	log     *log.Logger
}

// New creates an Extractor for profile
func New(profile *site.Compiled, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		profile: profile,
		log:     logger.WithPrefix("extractor"),
	}
}

// Extract returns the questions found in a rendered page, in document order.
// offset is the number of questions already extracted for the same topic, so
// question numbers keep running across the topic's pages. A page without
// recognizable question blocks, or one that cannot be parsed, yields nil.
func (e *Extractor) Extract(rawHTML string, target types.QuestionPageTarget, offset int) []types.ExtractedQuestion {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		e.log.Warn("Malformed page, no questions extracted", "url", target.PageURL, "error", err)
		return nil
	}

	base, err := url.Parse(target.PageURL)
	if err != nil {
		e.log.Warn("Invalid page URL, no questions extracted", "url", target.PageURL, "error", err)
		return nil
	}

	topic := collapse(doc.Find(e.profile.Title).First().Text())
	if topic == "" {
		topic = target.Topic.TopicName
	}

	var (
		out  []types.ExtractedQuestion
		seen = make(map[uint64]bool)
	)
	for _, block := range e.blocks(doc) {
		full := collapse(block.Text())
		if skip, reason := e.skip(full); skip {
			e.log.Debug("Block skipped", "url", target.PageURL, "reason", reason)
			continue
		}

		figures := e.figures(block, base)
		sum := blockKey(full, figures)
		if seen[sum] {
			e.log.Debug("Duplicate block skipped", "url", target.PageURL)
			continue
		}
		seen[sum] = true

		number := offset + len(out) + 1
		q := e.question(block, full, target, number)
		q.Record.Topic = topic
		q.Figures = figures
		out = append(out, q)
	}

	e.log.Debug("Page extracted", "url", target.PageURL, "questions", len(out))
	return out
}

func (e *Extractor) question(block *goquery.Selection, full string, target types.QuestionPageTarget, number int) types.ExtractedQuestion {
	p := e.profile

	rec := types.QuestionRecord{
		ID:             QuestionID(target, number),
		SourceURL:      target.PageURL,
		QuestionNumber: number,
		QuestionHTML:   truncate(outerHTML(block), p.MaxHTMLLen),
		Images:         []string{},
	}

	if answer := e.answers(block).First(); answer.Length() > 0 {
		rec.AnswerText = truncate(collapse(answer.Text()), p.MaxTextLen)
		rec.AnswerHTML = truncate(outerHTML(answer), p.MaxHTMLLen)
	}

	body := block.Clone()
	e.answers(body).Remove()
	text := collapse(body.Text())
	if text == "" {
		text = full
	}
	rec.QuestionText = truncate(text, p.MaxTextLen)

	if m := p.MarksRe.FindStringSubmatch(full); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 0 {
			rec.Marks = &n
		}
	}

	if p.Difficulty != "" {
		if d := collapse(block.Find(p.Difficulty).First().Text()); d != "" {
			rec.Difficulty = &d
		}
	}

	return types.ExtractedQuestion{Record: rec}
}

// blocks returns the question blocks of doc in document order. Candidates
// are elements matching the block selector whose class matches the block
// pattern and not the answer pattern. A candidate without answers inside a
// candidate that owns an answer is part of that question and is folded into
// it. Of the rest, only the innermost are kept, so page wrappers around
// several questions are ignored.
func (e *Extractor) blocks(doc *goquery.Document) []*goquery.Selection {
	candidates := doc.Find(e.profile.Block).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return e.profile.BlockRe.MatchString(class) && !e.profile.AnswerRe.MatchString(class)
	})

	set := make(map[*html.Node]bool, candidates.Length())
	candidates.Each(func(_ int, s *goquery.Selection) {
		set[s.Get(0)] = true
	})

	// an answer belongs to its nearest enclosing candidate
	owners := make(map[*html.Node]bool)
	e.answers(doc.Selection).Each(func(_ int, a *goquery.Selection) {
		if owner := enclosing(a.Get(0), set); owner != nil {
			owners[owner] = true
		}
	})

	folded := make(map[*html.Node]bool)
	candidates.Each(func(_ int, s *goquery.Selection) {
		if e.answers(s).Length() > 0 {
			return
		}
		for n := enclosing(s.Get(0), set); n != nil; n = enclosing(n, set) {
			if owners[n] {
				folded[s.Get(0)] = true
				return
			}
		}
	})

	var out []*goquery.Selection
	candidates.Each(func(_ int, s *goquery.Selection) {
		if folded[s.Get(0)] {
			return
		}
		nested := s.Find("*").FilterFunction(func(_ int, d *goquery.Selection) bool {
			n := d.Get(0)
			return set[n] && !folded[n]
		})
		if nested.Length() == 0 {
			out = append(out, s)
		}
	})
	return out
}

// enclosing returns the nearest proper ancestor of n that is in set
func enclosing(n *html.Node, set map[*html.Node]bool) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if set[p] {
			return p
		}
	}
	return nil
}

// blockKey identifies a block by its text and figures, so questions that
// share wording but show different figures stay distinct
func blockKey(text string, figures []types.FigureRef) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(text)
	for _, f := range figures {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(f.Source)
	}
	return h.Sum64()
}

func (e *Extractor) answers(block *goquery.Selection) *goquery.Selection {
	return block.Find(e.profile.Answer).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return e.profile.AnswerRe.MatchString(class)
	})
}

func (e *Extractor) skip(text string) (bool, string) {
	if len([]rune(text)) < e.profile.MinTextLen {
		return true, "too_short"
	}
	lower := strings.ToLower(text)
	for _, phrase := range e.profile.SkipPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true, "skip_phrase"
		}
	}
	return false, ""
}

// figures lists the figure sources inside block in document order, made
// absolute against base, each reference once
func (e *Extractor) figures(block *goquery.Selection, base *url.URL) []types.FigureRef {
	var (
		refs []types.FigureRef
		seen = make(map[string]bool)
	)
	block.Find(e.profile.Figure).Each(func(_ int, s *goquery.Selection) {
		src := ""
		for _, attr := range e.profile.FigureAttrs {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				src = strings.TrimSpace(v)
				break
			}
		}
		if src == "" {
			return
		}
		if !strings.HasPrefix(src, "data:") {
			ref, err := url.Parse(src)
			if err != nil {
				return
			}
			src = base.ResolveReference(ref).String()
		}
		if seen[src] {
			return
		}
		seen[src] = true
		refs = append(refs, types.FigureRef{Source: src})
	})
	return refs
}

func outerHTML(s *goquery.Selection) string {
	h, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	return h
}

// collapse trims and folds runs of whitespace into single spaces
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes. n <= 0 means no limit.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
