package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/browser"
)

const (
	// DurationComboSelector opens the analyst rating window picker.
	DurationComboSelector = "xpath=//div[@role='combobox' and contains(normalize-space(.), 'Months')]"
	// DurationOptionSelector picks the three month window.
	DurationOptionSelector = "xpath=//li[normalize-space(.)='3 Months']"

	hoverDelay   = 150 * time.Millisecond
	retryDelay   = 200 * time.Millisecond
	optionDelay  = 150 * time.Millisecond
	defaultTries = 2
)

// StepResult reports a best-effort interactive step. Present means the
// element was found at least once; Clicked means a click went through.
type StepResult struct {
	Present bool
	Clicked bool
}

// sleepFunc pauses for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
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

// LazyLoadScroll scrolls to the bottom up to maxAttempts times, pausing
// between scrolls, and stops once the body height stops growing. It returns
// the number of scrolls performed.
func LazyLoadScroll(ctx context.Context, s browser.Session, pause time.Duration, maxAttempts int, sleep sleepFunc) (int, error) {
	last, err := s.ScrollHeight()
	if err != nil {
		return 0, err
	}

	scrolled := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := s.ScrollToBottom(); err != nil {
			return scrolled, err
		}
		if err := sleep(ctx, pause); err != nil {
			return scrolled, err
		}
		scrolled++

		h, err := s.ScrollHeight()
		if err != nil {
			return scrolled, err
		}
		if h == last {
			zap.L().Debug("fetch: scroll stable", zap.Int("attempts", scrolled))
			break
		}
		last = h
	}
	return scrolled, nil
}

// ClickWithRetry locates selector and clicks it, falling back to a
// programmatic click when the direct click is intercepted. Failures are
// reported in the result, never returned.
func ClickWithRetry(ctx context.Context, s browser.Session, selector string, attempts int, timeout time.Duration, sleep sleepFunc) StepResult {
	if attempts <= 0 {
		attempts = defaultTries
	}

	var res StepResult
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return res
		}

		el, err := s.Element(selector, timeout)
		if err == nil {
			res.Present = true
			if err := el.ScrollIntoView(); err != nil {
				zap.L().Debug("fetch: scroll into view failed", zap.String("selector", selector), zap.Error(err))
			}
			_ = sleep(ctx, hoverDelay)
			// Hover only helps menus that open on pointer enter.
			_ = el.Hover()

			if err := el.Click(); err == nil {
				res.Clicked = true
				return res
			}
			if err := el.ProgrammaticClick(); err == nil {
				res.Clicked = true
				return res
			}
		}
		_ = sleep(ctx, retryDelay)
	}
	return res
}

// SelectDuration sets the analyst rating window to three months when the
// picker exists. Present reports whether the picker was found.
func SelectDuration(ctx context.Context, s browser.Session, attempts int, timeout time.Duration, sleep sleepFunc) StepResult {
	combo := ClickWithRetry(ctx, s, DurationComboSelector, attempts, timeout, sleep)
	if !combo.Present || !combo.Clicked {
		return StepResult{Present: combo.Present}
	}

	_ = sleep(ctx, optionDelay)
	opt := ClickWithRetry(ctx, s, DurationOptionSelector, attempts, timeout, sleep)
	return StepResult{Present: true, Clicked: opt.Clicked}
}
