// Package images downloads the figures referenced by extracted questions and
// stores them under names derived from the owning question's id.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-scripts/examcrawl/internal/types"
)

// Fetch downloads a binary resource
type Fetch func(ctx context.Context, url string) ([]byte, error)

// Resolver fetches and stores a question's figures with bounded concurrency
type Resolver struct {
	store       *Store
	http        Fetch
	browser     Fetch
	concurrency int
	allowed     []string
	defaultExt  string
	log         *log.Logger
}

// Option customizes a Resolver
type Option func(*Resolver)

// WithHTTP sets the direct HTTP fetch tried first for http(s) figures
func WithHTTP(f Fetch) Option {
	return func(r *Resolver) { r.http = f }
}

// WithBrowser sets the browser session fetch used when HTTP is unavailable or fails
func WithBrowser(f Fetch) Option {
	return func(r *Resolver) { r.browser = f }
}

// WithConcurrency bounds simultaneous downloads per question
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithExtensions sets the allowed extensions and the fallback
func WithExtensions(allowed []string, def string) Option {
	return func(r *Resolver) {
		r.allowed = allowed
		if def != "" {
			r.defaultExt = def
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver creates a Resolver writing into store
func NewResolver(store *Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		concurrency: 4,
		allowed:     []string{"jpg", "jpeg", "png", "gif", "svg", "webp"},
		defaultExt:  "png",
		log:         log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithPrefix("images")
	return r
}

// Resolve downloads refs for questionID and returns the stored filenames in
// reference order. A figure that cannot be fetched or written is left out
// and reported in the returned errors; it never fails the question.
func (r *Resolver) Resolve(ctx context.Context, questionID string, refs []types.FigureRef) ([]string, []*ImageError) {
	refs = unique(refs)
	names := make([]string, len(refs))
	failures := make([]*ImageError, len(refs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, ref := range refs {
		name := Filename(questionID, i+1, Extension(ref.Source, r.allowed, r.defaultExt))
		if !r.store.Reserve(name) {
			failures[i] = &ImageError{Ref: ref.Source, Filename: name, Kind: KindCollision, Err: ErrCollision}
			continue
		}

		g.Go(func() error {
			if err := r.resolveOne(ctx, ref.Source, name); err != nil {
				r.store.Release(name)
				failures[i] = err
				return nil
			}
			names[i] = name
			return nil
		})
	}
	_ = g.Wait()

	files := make([]string, 0, len(refs))
	for _, n := range names {
		if n != "" {
			files = append(files, n)
		}
	}

	var errs []*ImageError
	for _, f := range failures {
		if f == nil {
			continue
		}
		r.log.Warn("Image omitted", "question", questionID, "file", f.Filename, "kind", f.Kind, "error", f.Err)
		errs = append(errs, f)
	}
	return files, errs
}

func (r *Resolver) resolveOne(ctx context.Context, ref, name string) *ImageError {
	data, err := r.fetch(ctx, ref)
	if err != nil {
		return &ImageError{Ref: ref, Filename: name, Kind: KindFetchFailed, Err: err}
	}
	if len(data) == 0 {
		return &ImageError{Ref: ref, Filename: name, Kind: KindFetchFailed, Err: errors.New("empty body")}
	}
	if err := r.store.Write(name, data); err != nil {
		return &ImageError{Ref: ref, Filename: name, Kind: KindWriteFailed, Err: err}
	}
	r.log.Debug("Image stored", "file", name, "bytes", len(data))
	return nil
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("unsupported figure reference")
	}

	var errs []error
	if r.http != nil {
		data, err := r.http(ctx, ref)
		if err == nil {
			return data, nil
		}
		r.log.Debug("HTTP image fetch failed, trying browser", "url", ref, "error", err)
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if r.browser != nil && ctx.Err() == nil {
		data, err := r.browser(ctx, ref)
		if err == nil {
			return data, nil
		}
		errs = append(errs, fmt.Errorf("browser: %w", err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no fetcher configured")
	}
	return nil, errors.Join(errs...)
}

// decodeDataURI returns the payload of a data: URI
func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func unique(refs []types.FigureRef) []types.FigureRef {
	seen := make(map[string]bool, len(refs))
	out := make([]types.FigureRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Source == "" || seen[ref.Source] {
			continue
		}
		seen[ref.Source] = true
		out = append(out, ref)
	}
	return out
}
