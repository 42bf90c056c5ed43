package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures the playwright launcher.
type Options struct {
	Engine         string // chromium, firefox, or webkit
	ExecutablePath string
	Headless       bool
	UserAgent      string
	Timeout        time.Duration
	Settle         time.Duration
}

// PlaywrightLauncher starts a fresh browser per session.
type PlaywrightLauncher struct {
	opts Options
}

// NewPlaywrightLauncher creates a launcher. Browsers must already be
// installed (see `playwright install`).
func NewPlaywrightLauncher(opts Options) *PlaywrightLauncher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &PlaywrightLauncher{opts: opts}
}

// NewSession starts playwright, launches the browser, and opens one page.
func (l *PlaywrightLauncher) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "browser: new session")
	}

	pw, err := playwright.Run(&playwright.RunOptions{Verbose: false})
	if err != nil {
		return nil, eris.Wrap(err, "browser: start playwright")
	}

	bt, err := browserType(pw, l.opts.Engine)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	}
	if l.opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(l.opts.ExecutablePath)
	}
	b, err := bt.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, eris.Wrap(err, "browser: launch")
	}

	bctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1920, Height: 1080},
	}
	if l.opts.UserAgent != "" {
		bctxOpts.UserAgent = playwright.String(l.opts.UserAgent)
	}
	bctx, err := b.NewContext(bctxOpts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, eris.Wrap(err, "browser: new context")
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, eris.Wrap(err, "browser: new page")
	}
	page.SetDefaultTimeout(millis(l.opts.Timeout))
	page.SetDefaultNavigationTimeout(millis(l.opts.Timeout))

	return &playwrightSession{pw: pw, browser: b, bctx: bctx, page: page, opts: l.opts}, nil
}

func browserType(pw *playwright.Playwright, engine string) (playwright.BrowserType, error) {
	switch engine {
	case "", "chromium", "chrome":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, eris.Errorf("browser: unsupported engine %q", engine)
	}
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	opts    Options
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}

	zap.L().Info("browser: navigating", zap.String("url", url))
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(millis(s.opts.Timeout)),
	}); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}

	if s.opts.Settle > 0 {
		t := time.NewTimer(s.opts.Settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return eris.Wrapf(ctx.Err(), "browser: settle %s", url)
		case <-t.C:
		}
	}
	return nil
}

func (s *playwrightSession) Content() (string, error) {
	html, err := s.page.Content()
	if err != nil {
		return "", eris.Wrap(err, "browser: page content")
	}
	return html, nil
}

func (s *playwrightSession) ScrollHeight() (int, error) {
	v, err := s.page.Evaluate("() => document.body.scrollHeight")
	if err != nil {
		return 0, eris.Wrap(err, "browser: scroll height")
	}
	switch h := v.(type) {
	case int:
		return h, nil
	case int64:
		return int(h), nil
	case float64:
		return int(h), nil
	default:
		return 0, eris.Errorf("browser: scroll height: unexpected type %T", v)
	}
}

func (s *playwrightSession) ScrollToBottom() error {
	if _, err := s.page.Evaluate("() => window.scrollTo(0, document.body.scrollHeight)"); err != nil {
		return eris.Wrap(err, "browser: scroll to bottom")
	}
	return nil
}

func (s *playwrightSession) Element(selector string, timeout time.Duration) (Element, error) {
	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(timeout)),
	}); err != nil {
		return nil, eris.Wrapf(ErrElementNotFound, "browser: %s: %v", selector, err)
	}
	return &playwrightElement{loc: loc, timeout: timeout}, nil
}

// Close tears down page, context, browser, and driver in that order and
// reports the first failure.
func (s *playwrightSession) Close() error {
	var first error
	keep := func(err error, msg string) {
		if err != nil && first == nil {
			first = eris.Wrap(err, msg)
		}
	}
	keep(s.page.Close(), "browser: close page")
	keep(s.bctx.Close(), "browser: close context")
	keep(s.browser.Close(), "browser: close browser")
	keep(s.pw.Stop(), "browser: stop playwright")
	return first
}

type playwrightElement struct {
	loc     playwright.Locator
	timeout time.Duration
}

func (e *playwrightElement) ScrollIntoView() error {
	return e.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(millis(e.timeout)),
	})
}

func (e *playwrightElement) Hover() error {
	return e.loc.Hover(playwright.LocatorHoverOptions{
		Timeout: playwright.Float(millis(e.timeout)),
	})
}

func (e *playwrightElement) Click() error {
	return e.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(millis(e.timeout)),
	})
}

func (e *playwrightElement) ProgrammaticClick() error {
	return e.loc.DispatchEvent("click", nil, playwright.LocatorDispatchEventOptions{
		Timeout: playwright.Float(millis(e.timeout)),
	})
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
