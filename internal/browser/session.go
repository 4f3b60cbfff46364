// Package browser owns the single automated browser session of a crawl run.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// Reasons carried by a FetchError
const (
	ReasonTimeout       = "timeout"
	ReasonHTTPError     = "http_error"
	ReasonRenderTimeout = "render_timeout"
)

// ErrSessionUnavailable is returned when the browser cannot be started at all.
// It is the only browser failure that aborts a run.
var ErrSessionUnavailable = errors.New("browser session unavailable")

// FetchError describes a failed navigation or binary fetch
type FetchError struct {
	URL    string
	Reason string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same URL may succeed
func (e *FetchError) Transient() bool {
	return e.Reason == ReasonTimeout || e.Reason == ReasonRenderTimeout
}

// ReasonOf returns the FetchError reason of err, or "" when err is not a FetchError
func ReasonOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// RenderedPage is a page after client-side rendering finished
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	html       string
}

// NewRenderedPage builds a RenderedPage from an already rendered DOM
func NewRenderedPage(url, finalURL string, status int, html string) *RenderedPage {
	return &RenderedPage{URL: url, FinalURL: finalURL, StatusCode: status, html: html}
}

// ReadDOM returns the serialized rendered DOM of p
func ReadDOM(p *RenderedPage) string {
	if p == nil {
		return ""
	}
	return p.html
}

// Session is the capability the crawler needs from a browser
type Session interface {
	// Open navigates to url and returns once the content-ready signal is seen
	Open(ctx context.Context, url string) (*RenderedPage, error)
	// FetchBinary downloads a resource through the session
	FetchBinary(ctx context.Context, url string) ([]byte, error)
	Close() error
}
