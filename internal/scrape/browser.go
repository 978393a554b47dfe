package scrape

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/model"
)

// BrowserOptions configures the headless Chrome renderer.
type BrowserOptions struct {
	// ExecPath overrides Chrome discovery (CHROME_BIN, PATH, common paths).
	ExecPath  string
	UserAgent string
	// Screenshot captures the full page. Quality 100 yields PNG, lower JPEG.
	Screenshot        bool
	ScreenshotQuality int
	// Settle is how long to wait after body is ready for client-side rendering.
	Settle time.Duration
}

// BrowserScraper renders pages in headless Chrome. One browser process is
// shared; every scrape opens and closes its own tab.
type BrowserScraper struct {
	opts BrowserOptions

	mu         sync.Mutex
	browserCtx context.Context
	release    func()
}

// NewBrowserScraper creates a BrowserScraper. Chrome is launched lazily on
// the first scrape.
func NewBrowserScraper(opts BrowserOptions) *BrowserScraper {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if opts.ScreenshotQuality <= 0 || opts.ScreenshotQuality > 100 {
		opts.ScreenshotQuality = 80
	}
	return &BrowserScraper{opts: opts}
}

func (b *BrowserScraper) Name() string { return "browser" }

func (b *BrowserScraper) Supports(_ string) bool { return true }

func (b *BrowserScraper) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(b.opts.UserAgent),
	)
	bin := b.opts.ExecPath
	if bin == "" {
		bin = FindChromeBinary()
	}
	if bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}
	return opts
}

// browser returns the shared browser context, relaunching Chrome if the
// previous process died.
func (b *BrowserScraper) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}
	if b.release != nil {
		b.release()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		b.browserCtx, b.release = nil, nil
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Info("browser: chrome started")
	b.browserCtx = browserCtx
	b.release = func() {
		cancelBrowser()
		cancelAlloc()
	}
	return browserCtx, nil
}

// Close shuts the shared Chrome process down.
func (b *BrowserScraper) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.release != nil {
		b.release()
	}
	b.browserCtx, b.release = nil, nil
}

// Scrape navigates a fresh tab to targetURL and captures the rendered DOM.
// The tab is closed on every exit path, including cancellation of ctx.
func (b *BrowserScraper) Scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, b.Name(), targetURL, err)
	}

	browserCtx, err := b.browser()
	if err != nil {
		return nil, &Error{Kind: KindRenderFailure, Provider: b.Name(), URL: targetURL, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(targetURL))
	if err != nil {
		return nil, classify(ctx, b.Name(), targetURL, eris.Wrap(err, "browser: navigate"))
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var title, html string
	var shot []byte
	tasks := chromedp.Tasks{
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.opts.Settle),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if b.opts.Screenshot {
		tasks = append(tasks, chromedp.FullScreenshot(&shot, b.opts.ScreenshotQuality))
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, classify(ctx, b.Name(), targetURL, eris.Wrap(err, "browser: render"))
	}

	if blocked, bt := DetectBlock(status, nil, []byte(html)); blocked {
		return nil, &Error{
			Kind:       KindBlocked,
			Provider:   b.Name(),
			URL:        targetURL,
			StatusCode: status,
			Err:        eris.Errorf("browser: blocked (%s)", bt),
		}
	}
	if kind := kindForStatus(status); kind != "" {
		return nil, &Error{Kind: kind, Provider: b.Name(), URL: targetURL, StatusCode: status}
	}
	if strings.TrimSpace(html) == "" {
		return nil, &Error{Kind: KindRenderFailure, Provider: b.Name(), URL: targetURL, StatusCode: status,
			Err: eris.New("browser: empty document")}
	}

	return &model.ScrapedPage{
		URL:        targetURL,
		Title:      strings.TrimSpace(title),
		HTML:       html,
		Screenshot: shot,
		StatusCode: status,
		Source:     b.Name(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

// FindChromeBinary returns the first Chrome or Chromium binary found, or ""
// to let chromedp use its own lookup.
func FindChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	for _, p := range []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
