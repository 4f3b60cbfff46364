package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// stealthScript runs before any page script and hides the most common
// automation tells
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
`

// fetchScript downloads a resource from inside the page so that the request
// carries the session's cookies and fingerprint. The body comes back base64
// encoded because Runtime.evaluate can only return JSON.
const fetchScript = `(async (u) => {
	const r = await fetch(u, {credentials: 'include'});
	const buf = new Uint8Array(await r.arrayBuffer());
	let bin = '';
	for (let i = 0; i < buf.length; i += 0x8000) {
		bin += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
	}
	return {status: r.status, body: btoa(bin)};
})(%s)`

// Options configures a ChromeSession. They are applied once at start.
type Options struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
	PageTimeout    time.Duration
	RenderTimeout  time.Duration
	ReadySelector  string
	// SettleDelay and ScrollDelay produce the pauses taken after navigation
	// and between scroll steps. Nil means no pause.
	SettleDelay func() time.Duration
	ScrollDelay func() time.Duration
}

// ChromeSession is a Session backed by one headless Chrome tab
type ChromeSession struct {
	opts          Options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	// mu guards the tab; openMu keeps navigations from interleaving
	mu            sync.Mutex
	openMu        sync.Mutex
	closeOnce     sync.Once
	log           *log.Logger
}

// NewChromeSession launches Chrome and applies the stealth configuration.
// A failure here is wrapped in ErrSessionUnavailable.
func NewChromeSession(ctx context.Context, opts Options, logger *log.Logger) (*ChromeSession, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)

	// The allocator must outlive the caller's start-up context
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debugf),
		// CDP event decoding noise from newer Chrome builds is harmless
		chromedp.WithErrorf(logger.Debugf),
	)

	s := &ChromeSession{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		log:           logger,
	}

	// The first Run launches Chrome and ties the process to the context it is
	// given, so it runs on browserCtx and the timeout cancels that instead.
	timer := time.AfterFunc(opts.PageTimeout, browserCancel)
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx, s.stealthTasks())
	timer.Stop()
	stop()

	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	logger.Info("Browser session started",
		"headless", opts.Headless,
		"viewport", fmt.Sprintf("%dx%d", opts.ViewportWidth, opts.ViewportHeight),
		"locale", opts.Locale,
		"timezone", opts.Timezone)
	return s, nil
}

func (s *ChromeSession) stealthTasks() chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if s.opts.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(s.opts.Locale))
	}
	if s.opts.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(s.opts.Timezone))
	}
	return tasks
}

// Open navigates the session tab to url, waits for the ready selector, scrolls
// through the page to trigger lazy content and returns the rendered DOM. The
// tab lock is only held while the browser works; the human-like pauses in
// between leave the tab free for FetchBinary.
func (s *ChromeSession) Open(ctx context.Context, url string) (*RenderedPage, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	start := time.Now()
	s.log.Debug("Navigating", "url", url)

	status, finalURL, err := s.navigate(ctx, url)
	if err != nil {
		return nil, err
	}

	renderErr := func(err error) error {
		if ctx.Err() != nil {
			return &FetchError{URL: url, Reason: ReasonTimeout, Status: status, Err: ctx.Err()}
		}
		return &FetchError{URL: url, Reason: ReasonRenderTimeout, Status: status, Err: err}
	}

	var html string
	steps := []struct {
		pause  func() time.Duration
		action chromedp.Action
	}{
		{s.opts.SettleDelay, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil)},
		{s.opts.ScrollDelay, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)},
		{s.opts.ScrollDelay, chromedp.OuterHTML("html", &html, chromedp.ByQuery)},
	}
	for _, step := range steps {
		if err := wait(ctx, pause(step.pause)); err != nil {
			return nil, renderErr(err)
		}
		if err := s.run(ctx, s.opts.PageTimeout, step.action); err != nil {
			return nil, renderErr(err)
		}
	}

	s.log.Debug("Rendered", "url", finalURL, "status", status, "bytes", len(html), "elapsed", time.Since(start).Round(time.Millisecond))
	return NewRenderedPage(url, finalURL, status, html), nil
}

// navigate loads url and waits for the ready selector
func (s *ChromeSession) navigate(ctx context.Context, url string) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	navCtx, cancelNav := context.WithTimeout(s.browserCtx, s.opts.PageTimeout)
	defer cancelNav()
	stopNav := context.AfterFunc(ctx, cancelNav)
	defer stopNav()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		reason := ReasonHTTPError
		if ctx.Err() != nil {
			err = ctx.Err()
			reason = ReasonTimeout
		} else if errors.Is(err, context.DeadlineExceeded) || navCtx.Err() != nil {
			reason = ReasonTimeout
		}
		return 0, "", &FetchError{URL: url, Reason: reason, Err: err}
	}

	status := 0
	finalURL := url
	if resp != nil {
		status = int(resp.Status)
		if resp.URL != "" {
			finalURL = resp.URL
		}
	}
	if err := statusError(url, status); err != nil {
		return status, finalURL, err
	}

	renderCtx, cancelRender := context.WithTimeout(s.browserCtx, s.opts.RenderTimeout)
	defer cancelRender()
	stopRender := context.AfterFunc(ctx, cancelRender)
	defer stopRender()

	if err := chromedp.Run(renderCtx, chromedp.WaitReady(s.opts.ReadySelector, chromedp.ByQuery)); err != nil {
		return status, finalURL, &FetchError{URL: url, Reason: ReasonRenderTimeout, Status: status, Err: err}
	}
	return status, finalURL, nil
}

// run executes one action on the tab under the tab lock
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, action chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, action)
}

// statusError rejects any main document response other than 200. A zero
// status means the browser reported no response and the DOM is used as is.
func statusError(url string, status int) error {
	if status == 0 || status == http.StatusOK {
		return nil
	}
	return &FetchError{URL: url, Reason: ReasonHTTPError, Status: status}
}

// FetchBinary downloads url with fetch() inside the current page
func (s *ChromeSession) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(s.browserCtx, s.opts.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	arg, err := json.Marshal(url)
	if err != nil {
		return nil, &FetchError{URL: url, Reason: ReasonHTTPError, Err: err}
	}

	var res struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	err = chromedp.Run(fetchCtx, chromedp.Evaluate(fmt.Sprintf(fetchScript, arg), &res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		reason := ReasonHTTPError
		if fetchCtx.Err() != nil {
			reason = ReasonTimeout
		}
		return nil, &FetchError{URL: url, Reason: reason, Err: err}
	}
	if res.Status >= 400 || res.Status == 0 {
		return nil, &FetchError{URL: url, Reason: ReasonHTTPError, Status: res.Status}
	}

	data, err := base64.StdEncoding.DecodeString(res.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Reason: ReasonHTTPError, Status: res.Status, Err: err}
	}
	return data, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
		s.log.Debug("Browser session closed")
	})
	return nil
}

// wait sleeps for d unless ctx ends first
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pause(next func() time.Duration) time.Duration {
	if next == nil {
		return 0
	}
	return next()
}
