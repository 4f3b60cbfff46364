// Package planner walks the subject, topic and question page hierarchy of the
// site and yields question pages lazily, depth first, within the configured
// limits.
package planner

import (
	"context"
	"iter"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/fetcher"
	"github.com/go-scripts/examcrawl/internal/queue"
	"github.com/go-scripts/examcrawl/internal/robots"
	"github.com/go-scripts/examcrawl/internal/site"
	"github.com/go-scripts/examcrawl/internal/types"
)

// Skip reasons reported alongside browser fetch reasons
const (
	ReasonNoLinks    = "no_links"
	ReasonDisallowed = "robots_disallowed"
	ReasonMalformed  = "malformed_page"
)

// Listing levels
const (
	LevelIndex   = "index"
	LevelSubject = "subject"
	LevelTopic   = "topic"
)

// PageFetcher renders listing pages. *fetcher.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Result, error)
	Pause(ctx context.Context, d fetcher.Delay) error
}

// Observer is told about traversal progress
type Observer interface {
	SubjectStarted(t types.CrawlTarget, index, total int)
	TopicStarted(t types.TopicTarget, index, total int)
	Skipped(level, url, reason string)
}

// Config bounds the traversal
type Config struct {
	IndexURL            string
	MaxSubjects         int
	MaxTopicsPerSubject int
	MaxPagesPerTopic    int
	// TimeBudget stops new targets from being yielded once exceeded. Zero disables it.
	TimeBudget   time.Duration
	TopicPause   fetcher.Delay
	SubjectPause fetcher.Delay
}

// Planner produces QuestionPageTargets
type Planner struct {
	fetch    PageFetcher
	profile  *site.Compiled
	cfg      Config
	robots   robots.Policy
	observer Observer
	now      func() time.Time
	log      *log.Logger

	started   time.Time
	exhausted bool
	skipped   int
}

// Option customizes a Planner
type Option func(*Planner)

// WithRobots sets the robots.txt policy consulted before every fetch
func WithRobots(p robots.Policy) Option {
	return func(pl *Planner) {
		if p != nil {
			pl.robots = p
		}
	}
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(pl *Planner) {
		if o != nil {
			pl.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(pl *Planner) {
		if l != nil {
			pl.log = l
		}
	}
}

// WithClock replaces time.Now for the time budget
func WithClock(now func() time.Time) Option {
	return func(pl *Planner) {
		if now != nil {
			pl.now = now
		}
	}
}

// New creates a Planner
func New(fetch PageFetcher, profile *site.Compiled, cfg Config, opts ...Option) *Planner {
	p := &Planner{
		fetch:    fetch,
		profile:  profile,
		cfg:      cfg,
		robots:   robots.AllowAll{},
		observer: nopObserver{},
		now:      time.Now,
		log:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithPrefix("planner")
	return p
}

// Targets returns the question pages to visit. The sequence fetches listing
// pages as it is consumed and stops early when ctx is done, the time budget
// runs out, or the consumer stops ranging.
func (p *Planner) Targets(ctx context.Context) iter.Seq[types.QuestionPageTarget] {
	return func(yield func(types.QuestionPageTarget) bool) {
		p.started = p.now()
		p.exhausted = false

		if p.cfg.MaxSubjects == 0 {
			p.log.Info("Subject limit is zero, nothing to crawl")
			return
		}

		subjects := p.subjects(ctx)
		for i, subject := range subjects {
			if p.stop(ctx) {
				return
			}
			if i > 0 {
				if err := p.fetch.Pause(ctx, p.cfg.SubjectPause); err != nil {
					return
				}
			}
			p.observer.SubjectStarted(subject, i+1, len(subjects))
			if !p.walkSubject(ctx, subject, yield) {
				return
			}
		}
	}
}

// Exhausted reports whether the last traversal was cut short by the time budget
func (p *Planner) Exhausted() bool {
	return p.exhausted
}

// Skipped is the number of listing pages that were skipped
func (p *Planner) Skipped() int {
	return p.skipped
}

func (p *Planner) subjects(ctx context.Context) []types.CrawlTarget {
	q, ok := p.listing(ctx, LevelIndex, p.cfg.IndexURL, p.profile.SubjectMatch, p.profile.RequireSubjectText)
	if !ok {
		return nil
	}
	q.Truncate(p.cfg.MaxSubjects)

	var out []types.CrawlTarget
	for u, label, ok := q.Next(); ok; u, label, ok = q.Next() {
		if label == "" {
			label = lastSegment(u)
		}
		out = append(out, types.CrawlTarget{SubjectName: label, SubjectURL: u})
	}
	p.log.Info("Discovered subjects", "count", len(out))
	return out
}

func (p *Planner) walkSubject(ctx context.Context, subject types.CrawlTarget, yield func(types.QuestionPageTarget) bool) bool {
	q, ok := p.listing(ctx, LevelSubject, subject.SubjectURL, p.profile.TopicMatch, false)
	if !ok {
		return true
	}
	q.Truncate(p.cfg.MaxTopicsPerSubject)

	total := q.Len()
	i := 0
	for u, label, ok := q.Next(); ok; u, label, ok = q.Next() {
		if p.stop(ctx) {
			return false
		}
		if i > 0 {
			if err := p.fetch.Pause(ctx, p.cfg.TopicPause); err != nil {
				return false
			}
		}
		i++

		if label == "" {
			label = lastSegment(u)
		}
		topic := types.TopicTarget{SubjectName: subject.SubjectName, TopicName: label, TopicURL: u}
		p.observer.TopicStarted(topic, i, total)
		if !p.walkTopic(ctx, topic, yield) {
			return false
		}
	}
	return true
}

func (p *Planner) walkTopic(ctx context.Context, topic types.TopicTarget, yield func(types.QuestionPageTarget) bool) bool {
	q, ok := p.listing(ctx, LevelTopic, topic.TopicURL, p.profile.PageMatch, false)
	if !ok {
		return true
	}

	pages := orderPages(q, p.profile)
	if p.cfg.MaxPagesPerTopic >= 0 && len(pages) > p.cfg.MaxPagesPerTopic {
		pages = pages[:p.cfg.MaxPagesPerTopic]
	}

	for i, u := range pages {
		if p.stop(ctx) {
			return false
		}
		if !p.robots.Allowed(u) {
			p.skip(LevelTopic, u, ReasonDisallowed, nil)
			continue
		}
		target := types.QuestionPageTarget{Topic: topic, PageURL: u, PageNumber: i + 1}
		if !yield(target) {
			return false
		}
	}
	return true
}

// listing fetches a listing page and returns its matching links. A failed
// fetch or an empty result skips the branch.
func (p *Planner) listing(ctx context.Context, level, pageURL string, m site.Matcher, requireText bool) (*queue.Queue, bool) {
	if !p.robots.Allowed(pageURL) {
		p.skip(level, pageURL, ReasonDisallowed, nil)
		return nil, false
	}

	res, err := p.fetch.Fetch(ctx, pageURL)
	if err != nil {
		p.skip(level, pageURL, browser.ReasonOf(err), err)
		return nil, false
	}

	q, err := discoverLinks(res.HTML, pageURL, m, requireText)
	if err != nil {
		p.skip(level, pageURL, ReasonMalformed, err)
		return nil, false
	}
	if q.Len() == 0 {
		p.skip(level, pageURL, ReasonNoLinks, nil)
		return nil, false
	}
	p.log.Debug("Listing parsed", "level", level, "url", pageURL, "links", q.Len())
	return q, true
}

func (p *Planner) skip(level, pageURL, reason string, err error) {
	p.skipped++
	p.observer.Skipped(level, pageURL, reason)
	if err != nil {
		p.log.Warn("Skipping listing", "level", level, "url", pageURL, "reason", reason, "error", err)
		return
	}
	p.log.Warn("Skipping listing", "level", level, "url", pageURL, "reason", reason)
}

func (p *Planner) stop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if p.cfg.TimeBudget > 0 && p.now().Sub(p.started) >= p.cfg.TimeBudget {
		if !p.exhausted {
			p.log.Warn("Time budget exceeded, no further pages will be planned", "budget", p.cfg.TimeBudget)
		}
		p.exhausted = true
		return true
	}
	return false
}

// lastSegment names a link that carried no anchor text
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "." || seg == "/" {
		return u.Host
	}
	return seg
}

type nopObserver struct{}

func (nopObserver) SubjectStarted(types.CrawlTarget, int, int) {}
func (nopObserver) TopicStarted(types.TopicTarget, int, int)   {}
func (nopObserver) Skipped(string, string, string)             {}
