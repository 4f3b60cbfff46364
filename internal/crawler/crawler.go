package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/aggregator"
	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/config"
	"github.com/go-scripts/examcrawl/internal/extractor"
	"github.com/go-scripts/examcrawl/internal/fetcher"
	"github.com/go-scripts/examcrawl/internal/images"
	"github.com/go-scripts/examcrawl/internal/planner"
	"github.com/go-scripts/examcrawl/internal/progress"
	"github.com/go-scripts/examcrawl/internal/robots"
	"github.com/go-scripts/examcrawl/internal/site"
	"github.com/go-scripts/examcrawl/internal/types"
)

// Crawler runs one crawl: planner, fetcher, extractor, image resolver and
// aggregator, strictly sequential against the site
type Crawler struct {
	cfg       config.Config
	session   browser.Session
	profile   *site.Compiled
	fetcher   *fetcher.Fetcher
	extractor *extractor.Extractor
	resolver  *images.Resolver
	progress  *progress.Tracker
	log       *log.Logger
	now       func() time.Time

	httpImages images.Fetch
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithLogger sets the logger shared by every stage
func WithLogger(l *log.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.log = l
		}
	}
}

// WithProgress sets the progress tracker
func WithProgress(p *progress.Tracker) Option {
	return func(c *Crawler) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithHTTPImageFetch replaces the direct HTTP client used for figures. Nil
// sends every figure through the browser session.
func WithHTTPImageFetch(f images.Fetch) Option {
	return func(c *Crawler) {
		c.httpImages = f
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		if now != nil {
			c.now = now
		}
	}
}

// New wires a Crawler for cfg on top of an open browser session
func New(cfg config.Config, session browser.Session, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	profile := site.Default()
	if cfg.SiteProfile != "" {
		var err error
		if profile, err = site.Load(cfg.SiteProfile); err != nil {
			return nil, err
		}
	}
	compiled, err := profile.Compile()
	if err != nil {
		return nil, fmt.Errorf("site profile: %w", err)
	}

	c := &Crawler{
		cfg:        cfg,
		session:    session,
		profile:    compiled,
		log:        log.Default(),
		now:        time.Now,
		httpImages: images.NewHTTPFetcher(cfg.ImageTimeout, float64(cfg.ImageConcurrency), cfg.UserAgent).Fetch,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.progress == nil {
		c.progress = progress.New(c.log)
	}

	c.fetcher = fetcher.New(session,
		fetcher.WithDelay(c.delay(cfg.FetchDelay)),
		fetcher.WithLogger(c.log),
	)
	c.extractor = extractor.New(compiled, c.log)

	if cfg.DownloadImages {
		c.resolver = images.NewResolver(images.NewStore(cfg.ImagesFolder),
			images.WithHTTP(c.httpImages),
			images.WithBrowser(session.FetchBinary),
			images.WithConcurrency(cfg.ImageConcurrency),
			images.WithExtensions(compiled.FigureExts, compiled.DefaultExt),
			images.WithLogger(c.log),
		)
	}

	c.log = c.log.WithPrefix("crawler")
	return c, nil
}

// BrowserOptions maps cfg to the browser session options
func BrowserOptions(cfg config.Config) browser.Options {
	return browser.Options{
		Headless:       cfg.Headless,
		UserAgent:      cfg.UserAgent,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		Locale:         cfg.Locale,
		Timezone:       cfg.Timezone,
		PageTimeout:    cfg.PageTimeout,
		RenderTimeout:  cfg.RenderTimeout,
		ReadySelector:  cfg.ReadySelector,
		SettleDelay:    delayFor(cfg, cfg.SettleDelay),
		ScrollDelay:    delayFor(cfg, cfg.ScrollDelay),
	}
}

// Run crawls until the planner is exhausted, the time budget runs out or ctx
// is cancelled. The document holds everything collected so far and is
// returned even when err is non-nil.
func (c *Crawler) Run(ctx context.Context) (*types.Document, error) {
	agg := aggregator.New(c.cfg.Source, c.cfg.ImagesFolder, c.now())
	c.log.Info("Starting crawl",
		"run", agg.RunID(),
		"index", c.cfg.IndexURL(),
		"max_subjects", c.cfg.MaxSubjects,
		"max_topics", c.cfg.MaxTopicsPerSubject,
		"max_pages", c.cfg.MaxQuestionsPerTopic,
		"images", c.cfg.DownloadImages,
	)

	var policy robots.Policy = robots.AllowAll{}
	if c.cfg.RespectRobots && c.cfg.MaxSubjects > 0 {
		policy = robots.Load(ctx, c.session.FetchBinary, c.cfg.BaseURL, c.cfg.UserAgent, c.log)
	}

	pl := planner.New(c.fetcher, c.profile, planner.Config{
		IndexURL:            c.cfg.IndexURL(),
		MaxSubjects:         c.cfg.MaxSubjects,
		MaxTopicsPerSubject: c.cfg.MaxTopicsPerSubject,
		MaxPagesPerTopic:    c.cfg.MaxQuestionsPerTopic,
		TimeBudget:          c.cfg.TimeBudget,
		TopicPause:          c.delay(c.cfg.TopicPause),
		SubjectPause:        c.delay(c.cfg.SubjectPause),
	},
		planner.WithRobots(policy),
		planner.WithObserver(c.progress),
		planner.WithLogger(c.log),
		planner.WithClock(c.now),
	)

	questionPause := c.delay(c.cfg.QuestionPause)
	offsets := make(map[string]int)
	first := true

	for target := range pl.Targets(ctx) {
		if !first {
			if err := c.fetcher.Pause(ctx, questionPause); err != nil {
				break
			}
		}
		first = false

		records, omitted, err := c.crawlPage(ctx, agg, target, offsets[target.Topic.TopicURL])
		if err != nil {
			agg.PageSkipped(1)
			c.progress.PageSkipped(target, browser.ReasonOf(err))
			continue
		}
		offsets[target.Topic.TopicURL] += len(records)

		agg.PageFetched()
		agg.AddQuestions(records...)
		c.progress.PageDone(target, records, omitted)
	}

	c.progress.Stop()
	c.progress.Renders(c.fetcher.Fetched(), c.fetcher.Failed())
	if pl.Exhausted() {
		c.progress.BudgetExhausted()
	}
	agg.PageSkipped(pl.Skipped())

	doc := agg.Finalize(c.now())
	c.log.Info("Crawl finished",
		"questions", doc.Metadata.TotalQuestions,
		"with_images", doc.Metadata.QuestionsWithImages,
		"images", doc.Metadata.TotalImages,
		"pages", doc.Metadata.PagesFetched,
		"skipped", doc.Metadata.PagesSkipped,
		"renders", c.fetcher.Fetched(),
		"render_failures", c.fetcher.Failed(),
	)
	if err := ctx.Err(); err != nil {
		return doc, fmt.Errorf("crawl interrupted: %w", err)
	}
	return doc, nil
}

// crawlPage fetches one question page, settles each question's final id and
// resolves its figures under that id before returning the records
func (c *Crawler) crawlPage(ctx context.Context, agg *aggregator.Aggregator, target types.QuestionPageTarget, offset int) ([]types.QuestionRecord, int, error) {
	c.progress.PageStarted(target)

	res, err := c.fetcher.FetchTarget(ctx, target)
	if err != nil {
		return nil, 0, err
	}

	extracted := c.extractor.Extract(res.HTML, target, offset)
	records := make([]types.QuestionRecord, 0, len(extracted))
	omitted := 0
	for _, q := range extracted {
		rec := q.Record
		rec.ID = agg.UniqueID(rec.ID)
		if c.resolver != nil && len(q.Figures) > 0 {
			files, errs := c.resolver.Resolve(ctx, rec.ID, q.Figures)
			rec.Images = files
			omitted += len(errs)
		}
		records = append(records, rec)
	}
	return records, omitted, nil
}

func (c *Crawler) delay(r config.DelayRange) fetcher.Delay {
	return delayFor(c.cfg, r)
}

func delayFor(cfg config.Config, r config.DelayRange) fetcher.Delay {
	if cfg.NoDelay {
		return fetcher.NoDelay
	}
	return fetcher.RandomDelay(r.Min, r.Max)
}
