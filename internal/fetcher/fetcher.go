// Package fetcher turns planned URLs into rendered HTML through the browser
// session, pacing requests like a person would and retrying transient
// failures once.
package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/types"
)

// maxAttempts is the first try plus one retry
const maxAttempts = 2

// Result is a successfully rendered page
type Result struct {
	URL        string
	FinalURL   string
	HTML       string
	StatusCode int
	Attempts   int
	Elapsed    time.Duration
}

// Fetcher fetches pages sequentially through one browser session
type Fetcher struct {
	session browser.Session
	delay   Delay
	log     *log.Logger

	fetched atomic.Int64
	failed  atomic.Int64
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithDelay sets the pause taken before every navigation
func WithDelay(d Delay) Option {
	return func(f *Fetcher) {
		if d != nil {
			f.delay = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a Fetcher on top of session
func New(session browser.Session, opts ...Option) *Fetcher {
	f := &Fetcher{
		session: session,
		delay:   NoDelay,
		log:     log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithPrefix("fetcher")
	return f
}

// Fetch renders url. A timeout or render timeout is retried once; any other
// failure, or a second failure, is returned as a *browser.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// The pause happens outside the session so the browser is never held idle
		if err := Sleep(ctx, f.delay()); err != nil {
			lastErr = &browser.FetchError{URL: url, Reason: browser.ReasonTimeout, Err: err}
			break
		}

		page, err := f.session.Open(ctx, url)
		if err == nil {
			f.fetched.Add(1)
			return &Result{
				URL:        url,
				FinalURL:   page.FinalURL,
				HTML:       browser.ReadDOM(page),
				StatusCode: page.StatusCode,
				Attempts:   attempt,
				Elapsed:    time.Since(start),
			}, nil
		}

		lastErr = normalize(url, err)
		var fe *browser.FetchError
		if attempt < maxAttempts && errors.As(lastErr, &fe) && fe.Transient() && ctx.Err() == nil {
			f.log.Warn("Transient fetch failure, retrying", "url", url, "reason", fe.Reason, "attempt", attempt)
			continue
		}
		break
	}

	f.failed.Add(1)
	f.log.Debug("Fetch failed", "url", url, "reason", browser.ReasonOf(lastErr), "error", lastErr)
	return nil, lastErr
}

// FetchTarget renders a planned question page
func (f *Fetcher) FetchTarget(ctx context.Context, target types.QuestionPageTarget) (*Result, error) {
	return f.Fetch(ctx, target.PageURL)
}

// Pause waits for one draw of d, honouring ctx
func (f *Fetcher) Pause(ctx context.Context, d Delay) error {
	if d == nil {
		return ctx.Err()
	}
	return Sleep(ctx, d())
}

// Fetched is the number of pages rendered successfully
func (f *Fetcher) Fetched() int {
	return int(f.fetched.Load())
}

// Failed is the number of URLs given up on
func (f *Fetcher) Failed() int {
	return int(f.failed.Load())
}

func normalize(url string, err error) error {
	var fe *browser.FetchError
	if errors.As(err, &fe) {
		return err
	}
	reason := browser.ReasonHTTPError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = browser.ReasonTimeout
	}
	return &browser.FetchError{URL: url, Reason: reason, Err: err}
}
