// Package browsertest provides an in-memory browser.Session for tests
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-scripts/examcrawl/internal/browser"
)

// Session serves canned pages and binaries keyed by URL. Unknown URLs fail
// with an http_error. Failures can be scripted per URL and per attempt.
type Session struct {
	mu       sync.Mutex
	pages    map[string]string
	binaries map[string][]byte
	failures map[string][]error
	down     map[string]string
	opened   []string
	fetched  []string
	closed   bool
}

// New creates an empty Session
func New() *Session {
	return &Session{
		pages:    make(map[string]string),
		binaries: make(map[string][]byte),
		failures: make(map[string][]error),
		down:     make(map[string]string),
	}
}

// AddPage registers the rendered HTML returned for url
func (s *Session) AddPage(url, html string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	return s
}

// AddBinary registers the bytes returned by FetchBinary for url
func (s *Session) AddBinary(url string, data []byte) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binaries[url] = data
	return s
}

// FailWith makes the next len(errs) requests for url fail with errs in order.
// A nil entry lets that attempt through.
func (s *Session) FailWith(url string, errs ...error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[url] = append(s.failures[url], errs...)
	return s
}

// Fail makes every request for url fail with the given reason
func (s *Session) Fail(url, reason string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down[url] = reason
	return s
}

func (s *Session) nextFailure(url string) error {
	if reason, ok := s.down[url]; ok {
		return &browser.FetchError{URL: url, Reason: reason}
	}
	queued := s.failures[url]
	if len(queued) == 0 {
		return nil
	}
	s.failures[url] = queued[1:]
	return queued[0]
}

// Open implements browser.Session
func (s *Session) Open(ctx context.Context, url string) (*browser.RenderedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &browser.FetchError{URL: url, Reason: browser.ReasonTimeout, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, url)

	if err := s.nextFailure(url); err != nil {
		return nil, err
	}
	html, ok := s.pages[url]
	if !ok {
		return nil, &browser.FetchError{URL: url, Reason: browser.ReasonHTTPError, Status: 404}
	}
	return browser.NewRenderedPage(url, url, 200, html), nil
}

// FetchBinary implements browser.Session
func (s *Session) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &browser.FetchError{URL: url, Reason: browser.ReasonTimeout, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)

	if err := s.nextFailure(url); err != nil {
		return nil, err
	}
	data, ok := s.binaries[url]
	if !ok {
		return nil, &browser.FetchError{URL: url, Reason: browser.ReasonHTTPError, Status: 404, Err: fmt.Errorf("no binary registered")}
	}
	return append([]byte(nil), data...), nil
}

// Close implements browser.Session
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Opened returns every URL passed to Open, in call order
func (s *Session) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// Fetched returns every URL passed to FetchBinary, in call order
func (s *Session) Fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ browser.Session = (*Session)(nil)
