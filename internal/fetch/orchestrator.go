// Package fetch drives a browser session through the EarningsHub quote
// pages and stores the rendered documents in the friendly cache.
package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/earnings-cli/internal/browser"
	"github.com/sells-group/earnings-cli/internal/config"
	"github.com/sells-group/earnings-cli/internal/model"
)

// ErrBlocked is returned when the source serves an anti-bot page instead of
// content.
var ErrBlocked = eris.New("fetch: blocked by source")

// DocCache is the subset of the cache store the orchestrator needs.
type DocCache interface {
	Exists(subject string, variant model.Variant) bool
	Write(subject string, variant model.Variant, content string) (string, error)
	Path(subject string, variant model.Variant) string
}

// Options tunes waits and retries.
type Options struct {
	ScrollPause       time.Duration
	ScrollMaxAttempts int
	ClickAttempts     int
	ElementTimeout    time.Duration
	// PreScrollDelay lets the overview render before the first scroll.
	PreScrollDelay time.Duration
	// CaptureDelay runs before capturing a sub-page.
	CaptureDelay time.Duration
	// CloseDelay runs before the session is closed.
	CloseDelay time.Duration
	// RatePerMinute caps navigations; zero disables the limit.
	RatePerMinute int
}

// DefaultOptions returns the timings the source is known to need.
func DefaultOptions() Options {
	return Options{
		ScrollPause:       500 * time.Millisecond,
		ScrollMaxAttempts: 3,
		ClickAttempts:     2,
		ElementTimeout:    30 * time.Second,
		PreScrollDelay:    time.Second,
		CaptureDelay:      300 * time.Millisecond,
		CloseDelay:        time.Second,
		RatePerMinute:     60,
	}
}

// OptionsFromConfig applies browser and source settings over the defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	if d := cfg.Browser.ScrollPause(); d > 0 {
		o.ScrollPause = d
	}
	if cfg.Browser.ScrollMaxAttempts > 0 {
		o.ScrollMaxAttempts = cfg.Browser.ScrollMaxAttempts
	}
	if cfg.Browser.ClickAttempts > 0 {
		o.ClickAttempts = cfg.Browser.ClickAttempts
	}
	if d := cfg.Browser.Timeout(); d > 0 {
		o.ElementTimeout = d
	}
	o.RatePerMinute = cfg.Source.RateLimitPerMinute
	return o
}

// Orchestrator decides which documents to fetch and fetches them in one
// browser session.
type Orchestrator struct {
	launcher browser.Launcher
	cache    DocCache
	opts     Options
	limiter  *rate.Limiter
	sleep    sleepFunc
}

// New creates an Orchestrator.
func New(launcher browser.Launcher, cache DocCache, opts Options) *Orchestrator {
	o := &Orchestrator{
		launcher: launcher,
		cache:    cache,
		opts:     opts,
		sleep:    sleepCtx,
	}
	if opts.RatePerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return o
}

// FetchVariants makes sure every document the requested variant needs is
// cached, fetching what is missing. It returns the location of each
// required document that exists afterwards. Documents the source reports as
// "symbol not found" are skipped, so they are absent from the result.
func (o *Orchestrator) FetchVariants(ctx context.Context, url, subject string, variant model.Variant) (map[model.Variant]string, error) {
	if variant != model.VariantOverview && variant != model.VariantFull {
		return nil, eris.Errorf("fetch: unsupported variant %q", variant)
	}
	if strings.TrimSpace(subject) == "" {
		return nil, eris.New("fetch: subject is required")
	}

	required := variant.Required()
	log := zap.L().With(zap.String("ticker", subject), zap.String("variant", string(variant)))

	if o.allCached(subject, required) {
		log.Info("fetch: served from cache")
		return o.locations(subject, required), nil
	}

	sess, err := o.launcher.NewSession(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: open session")
	}
	defer func() {
		if ctx.Err() == nil {
			_ = o.sleep(ctx, o.opts.CloseDelay)
		}
		if err := sess.Close(); err != nil {
			log.Warn("fetch: close session", zap.Error(err))
		}
	}()

	if err := o.navigate(ctx, sess, url); err != nil {
		return nil, err
	}

	if !o.cache.Exists(subject, model.VariantOverview) {
		if err := o.sleep(ctx, o.opts.PreScrollDelay); err != nil {
			return nil, eris.Wrap(err, "fetch: overview")
		}
		o.scroll(ctx, sess, log)
		if err := o.capture(sess, subject, model.VariantOverview); err != nil {
			return nil, err
		}
	}

	if !o.cache.Exists(subject, model.VariantAnalyst) {
		if err := o.navigate(ctx, sess, subURL(url, "analysts")); err != nil {
			return nil, err
		}
		step := SelectDuration(ctx, sess, o.opts.ClickAttempts, o.opts.ElementTimeout, o.sleep)
		log.Debug("fetch: duration step", zap.Bool("present", step.Present), zap.Bool("clicked", step.Clicked))
		if err := o.sleep(ctx, o.opts.CaptureDelay); err != nil {
			return nil, eris.Wrap(err, "fetch: analyst")
		}
		if err := o.capture(sess, subject, model.VariantAnalyst); err != nil {
			return nil, err
		}
	}

	if variant == model.VariantFull && !o.cache.Exists(subject, model.VariantEarnings) {
		if err := o.navigate(ctx, sess, subURL(url, "earnings")); err != nil {
			return nil, err
		}
		o.scroll(ctx, sess, log)
		if err := o.sleep(ctx, o.opts.CaptureDelay); err != nil {
			return nil, eris.Wrap(err, "fetch: earnings")
		}
		if err := o.capture(sess, subject, model.VariantEarnings); err != nil {
			return nil, err
		}
	}

	return o.locations(subject, required), nil
}

func (o *Orchestrator) allCached(subject string, required []model.Variant) bool {
	for _, v := range required {
		if !o.cache.Exists(subject, v) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) locations(subject string, required []model.Variant) map[model.Variant]string {
	out := make(map[model.Variant]string, len(required))
	for _, v := range required {
		if o.cache.Exists(subject, v) {
			out[v] = o.cache.Path(subject, v)
		}
	}
	return out
}

func (o *Orchestrator) navigate(ctx context.Context, sess browser.Session, url string) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "fetch: rate limit %s", url)
		}
	}
	if err := sess.Navigate(ctx, url); err != nil {
		return eris.Wrapf(err, "fetch: navigate %s", url)
	}
	return nil
}

// scroll runs the lazy-load step. Failures only mean less content renders,
// so they are logged and the capture goes ahead.
func (o *Orchestrator) scroll(ctx context.Context, sess browser.Session, log *zap.Logger) {
	n, err := LazyLoadScroll(ctx, sess, o.opts.ScrollPause, o.opts.ScrollMaxAttempts, o.sleep)
	if err != nil {
		log.Warn("fetch: lazy-load scroll failed", zap.Int("scrolled", n), zap.Error(err))
		return
	}
	log.Debug("fetch: lazy-load scroll", zap.Int("scrolled", n), zap.Int("max", o.opts.ScrollMaxAttempts))
}

// capture stores the current page when it holds real content.
func (o *Orchestrator) capture(sess browser.Session, subject string, variant model.Variant) error {
	html, err := sess.Content()
	if err != nil {
		return eris.Wrapf(err, "fetch: capture %s", variant)
	}

	log := zap.L().With(zap.String("ticker", subject), zap.String("variant", string(variant)))
	state := ClassifyPage(html)
	switch {
	case state.Blocked():
		return eris.Wrapf(ErrBlocked, "fetch: %s %s (%s)", subject, variant, state)
	case !state.Cacheable():
		log.Info("fetch: skip caching", zap.String("state", string(state)))
		return nil
	}

	path, err := o.cache.Write(subject, variant, html)
	if err != nil {
		return eris.Wrapf(err, "fetch: cache %s", variant)
	}
	log.Info("fetch: saved document", zap.String("path", path))
	return nil
}

func subURL(base, page string) string {
	return strings.TrimRight(base, "/") + "/" + page
}
