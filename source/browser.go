package source

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultSelector is the element holding the count on DefaultPageURL.
const DefaultSelector = "#count"

// Browser renders the counter page in headless Chromium and reads the count
// from an element, for pages that only fill it in with JavaScript.
//
// Chromium is started on the first fetch and kept until Close. Fetches are
// serialised; a Browser only ever has one page open.
type Browser struct {
	URL      string
	Selector string

	install   bool
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	log       *zap.SugaredLogger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// BrowserOption configures a Browser beyond the shared Options.
type BrowserOption func(*Browser)

// WithInstall downloads the Playwright driver and Chromium before the first
// launch, for hosts that were not provisioned with them.
func WithInstall() BrowserOption {
	return func(b *Browser) {
		b.install = true
	}
}

// NewBrowser returns a Browser source for account. Empty urlTemplate or
// selector pick DefaultPageURL and DefaultSelector.
func NewBrowser(account, urlTemplate, selector string, opts []Option, bopts ...BrowserOption) (*Browser, error) {
	if account == "" {
		return nil, errors.New("account must be specified")
	}
	if urlTemplate == "" {
		urlTemplate = DefaultPageURL
	}
	if selector == "" {
		selector = DefaultSelector
	}
	o := buildOptions(opts)
	b := &Browser{
		URL:       ExpandURL(urlTemplate, account),
		Selector:  selector,
		timeout:   o.Timeout,
		userAgent: o.UserAgent,
		limiter:   newLimiter(o.MinSpacing),
		log:       o.Logger,
	}
	for _, bo := range bopts {
		bo(b)
	}
	return b, nil
}

// Name implements followerwatch.CountSource.
func (b *Browser) Name() string { return "browser" }

// FetchCount implements followerwatch.CountSource.
func (b *Browser) FetchCount(ctx context.Context) (int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, errors.Wrap(err, "waiting for rate limiter")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.launch(); err != nil {
		return 0, err
	}
	page, err := b.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(b.userAgent),
	})
	if err != nil {
		return 0, errors.Wrap(err, "error opening browser page")
	}
	defer page.Close()

	timeout := b.timeoutMillis(ctx)
	resp, err := page.Goto(b.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "error loading %s", b.URL)
	}
	if resp != nil && !resp.Ok() {
		return 0, errors.Errorf("unexpected response from %s: %d", b.URL, resp.Status())
	}

	text, err := page.Locator(b.Selector).First().TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(b.timeoutMillis(ctx)),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "error reading %s", b.Selector)
	}
	b.log.Debugw("read follower count from page",
		"url", b.URL,
		"selector", b.Selector,
		"text", text)
	return ParseCount(text)
}

// timeoutMillis is the source timeout, shortened to the context deadline.
func (b *Browser) timeoutMillis(ctx context.Context) float64 {
	d := b.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return float64(d / time.Millisecond)
}

func (b *Browser) launch() error {
	if b.browser != nil && b.browser.IsConnected() {
		return nil
	}
	if b.pw == nil {
		if b.install {
			if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
				return errors.Wrap(err, "error installing playwright")
			}
		}
		pw, err := playwright.Run()
		if err != nil {
			return errors.Wrap(err, "error starting playwright")
		}
		b.pw = pw
	}
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return errors.Wrap(err, "error launching chromium")
	}
	b.log.Infow("launched headless chromium", "version", browser.Version())
	b.browser = browser
	return nil
}

// Close shuts down Chromium and the Playwright driver.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.pw != nil {
		if stopErr := b.pw.Stop(); err == nil {
			err = stopErr
		}
		b.pw = nil
	}
	return errors.Wrap(err, "error closing browser")
}
