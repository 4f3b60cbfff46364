package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/browser/browsertest"
	"github.com/go-scripts/examcrawl/internal/types"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func refs(sources ...string) []types.FigureRef {
	out := make([]types.FigureRef, len(sources))
	for i, s := range sources {
		out[i] = types.FigureRef{Source: s}
	}
	return out
}

func TestExtension(t *testing.T) {
	allowed := []string{"jpg", "jpeg", "png", "gif", "svg", "webp"}
	tests := []struct {
		ref  string
		want string
	}{
		{"https://example.com/a/figure.JPG", "jpg"},
		{"https://example.com/a/figure.svg?v=3", "svg"},
		{"https://example.com/a/figure", "png"},
		{"https://example.com/a/figure.php", "png"},
		{"data:image/webp;base64,AAAA", "webp"},
		{"data:image/svg+xml,%3Csvg%3E", "svg"},
		{"data:text/plain,hello", "png"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.ref, allowed, "png"))
		})
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "biology_cells_p1_2_fig3.png", Filename("biology_cells_p1_2", 3, "png"))
}

func TestStoreReserveIsExclusive(t *testing.T) {
	s := NewStore(t.TempDir())

	var won atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Reserve("q_fig1.png") {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())

	s.Release("q_fig1.png")
	assert.True(t, s.Reserve("q_fig1.png"))
}

func TestStoreCreatesDirectoryLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	s := NewStore(dir)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Write("q_fig1.png", pngBytes))
	data, err := os.ReadFile(filepath.Join(dir, "q_fig1.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, 1, s.Written())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolveKeepsOrderAndOmitsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/one.png", "/three.gif":
			w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	store := NewStore(dir)
	r := NewResolver(store, WithHTTP(NewHTTPFetcher(5*time.Second, 100, "examcrawl-test").Fetch), WithConcurrency(2))

	files, errs := r.Resolve(context.Background(), "q1", refs(srv.URL+"/one.png", srv.URL+"/two.png", srv.URL+"/three.gif"))

	assert.Equal(t, []string{"q1_fig1.png", "q1_fig3.gif"}, files)
	require.Len(t, errs, 1)
	assert.Equal(t, KindFetchFailed, errs[0].Kind)
	assert.Equal(t, "q1_fig2.png", errs[0].Filename)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestResolveFallsBackToBrowser(t *testing.T) {
	const figure = "https://cdn.example.com/diagram.svg"
	session := browsertest.New().AddBinary(figure, []byte("<svg/>"))
	failingHTTP := func(context.Context, string) ([]byte, error) { return nil, errors.New("forbidden") }

	store := NewStore(t.TempDir())
	r := NewResolver(store, WithHTTP(failingHTTP), WithBrowser(session.FetchBinary))

	files, errs := r.Resolve(context.Background(), "q2", refs(figure))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"q2_fig1.svg"}, files)
	assert.Equal(t, []string{figure}, session.Fetched())
}

func TestResolveSecondOrdinalFailing(t *testing.T) {
	session := browsertest.New().
		AddBinary("https://example.com/fig1.png", pngBytes).
		Fail("https://example.com/fig2.png", browser.ReasonTimeout)

	store := NewStore(t.TempDir())
	r := NewResolver(store, WithBrowser(session.FetchBinary))

	files, errs := r.Resolve(context.Background(), "q3", refs("https://example.com/fig1.png", "https://example.com/fig2.png"))
	assert.Equal(t, []string{"q3_fig1.png"}, files)
	require.Len(t, errs, 1)
	assert.Equal(t, browser.ReasonTimeout, browser.ReasonOf(errs[0]))
}

func TestResolveDataURIAndDuplicates(t *testing.T) {
	store := NewStore(t.TempDir())
	r := NewResolver(store)

	uri := "data:image/gif;base64,R0lGODlhAQABAAAAACw="
	files, errs := r.Resolve(context.Background(), "q4", refs(uri, uri))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"q4_fig1.gif"}, files)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "q4_fig1.gif"))
	require.NoError(t, err)
	assert.Equal(t, "GIF89a", string(data[:6]))
}

func TestResolveCollisionIsSkipped(t *testing.T) {
	store := NewStore(t.TempDir())
	r := NewResolver(store)

	uri := "data:image/png;base64,iVBORw0KGgo="
	files, errs := r.Resolve(context.Background(), "q5", refs(uri))
	require.Empty(t, errs)
	require.Equal(t, []string{"q5_fig1.png"}, files)

	files, errs = r.Resolve(context.Background(), "q5", refs(uri))
	assert.Empty(t, files)
	require.Len(t, errs, 1)
	assert.Equal(t, KindCollision, errs[0].Kind)
	assert.ErrorIs(t, errs[0], ErrCollision)
	assert.Equal(t, 1, store.Written())
}

func TestResolveRejectsUnsupportedRefs(t *testing.T) {
	r := NewResolver(NewStore(t.TempDir()))
	files, errs := r.Resolve(context.Background(), "q6", refs("ftp://example.com/fig.png", "data:nocomma"))
	assert.Empty(t, files)
	assert.Len(t, errs, 2)
}

func TestHTTPFetcherSendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		w.Write(pngBytes)
	}))
	defer srv.Close()

	data, err := NewHTTPFetcher(time.Second, 10, "examcrawl-test").Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "examcrawl-test", got)
}
