package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/examcrawl/internal/browser"
	"github.com/go-scripts/examcrawl/internal/browser/browsertest"
	"github.com/go-scripts/examcrawl/internal/types"
)

const pageURL = "https://example.com/gcse/biology/exam-questions/"

func TestFetchSuccess(t *testing.T) {
	s := browsertest.New().AddPage(pageURL, "<html><body>ok</body></html>")
	f := New(s)

	res, err := f.FetchTarget(context.Background(), types.QuestionPageTarget{PageURL: pageURL, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, "<html><body>ok</body></html>", res.HTML)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, f.Fetched())
	assert.Equal(t, 0, f.Failed())
}

func TestFetchRetriesTransientFailureOnce(t *testing.T) {
	tests := []struct {
		name         string
		failures     []error
		wantErr      bool
		wantReason   string
		wantAttempts int
	}{
		{
			name:         "timeout then success",
			failures:     []error{&browser.FetchError{URL: pageURL, Reason: browser.ReasonTimeout}},
			wantAttempts: 2,
		},
		{
			name:         "render timeout then success",
			failures:     []error{&browser.FetchError{URL: pageURL, Reason: browser.ReasonRenderTimeout}},
			wantAttempts: 2,
		},
		{
			name: "two timeouts give up",
			failures: []error{
				&browser.FetchError{URL: pageURL, Reason: browser.ReasonTimeout},
				&browser.FetchError{URL: pageURL, Reason: browser.ReasonRenderTimeout},
			},
			wantErr:      true,
			wantReason:   browser.ReasonRenderTimeout,
			wantAttempts: 2,
		},
		{
			name:         "http error is not retried",
			failures:     []error{&browser.FetchError{URL: pageURL, Reason: browser.ReasonHTTPError, Status: 503}},
			wantErr:      true,
			wantReason:   browser.ReasonHTTPError,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := browsertest.New().
				AddPage(pageURL, "<html></html>").
				FailWith(pageURL, tt.failures...)
			f := New(s, WithDelay(NoDelay))

			res, err := f.Fetch(context.Background(), pageURL)
			assert.Len(t, s.Opened(), tt.wantAttempts)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantReason, browser.ReasonOf(err))
				assert.Equal(t, 1, f.Failed())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
		})
	}
}

func TestFetchNormalizesUntypedErrors(t *testing.T) {
	s := browsertest.New().FailWith(pageURL, context.DeadlineExceeded, context.DeadlineExceeded)
	f := New(s)

	_, err := f.Fetch(context.Background(), pageURL)
	require.Error(t, err)
	assert.Equal(t, browser.ReasonTimeout, browser.ReasonOf(err))
	assert.Len(t, s.Opened(), 2)
}

func TestFetchStopsWhenContextCancelledDuringDelay(t *testing.T) {
	s := browsertest.New().AddPage(pageURL, "<html></html>")
	f := New(s, WithDelay(FixedDelay(time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, pageURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Opened())
}

func TestRandomDelayStaysInRange(t *testing.T) {
	d := RandomDelay(10*time.Millisecond, 20*time.Millisecond)
	for range 200 {
		v := d()
		assert.GreaterOrEqual(t, v, 10*time.Millisecond)
		assert.LessOrEqual(t, v, 20*time.Millisecond)
	}

	assert.Equal(t, 5*time.Millisecond, RandomDelay(5*time.Millisecond, 5*time.Millisecond)())
	inverted := RandomDelay(20*time.Millisecond, 10*time.Millisecond)()
	assert.GreaterOrEqual(t, inverted, 10*time.Millisecond)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}
