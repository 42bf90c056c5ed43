package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyLoadScroll_StopsWhenStable(t *testing.T) {
	sess := newFakeSession()
	sess.heights = []int{100, 200, 200}
	rec := &sleepRecorder{}

	n, err := LazyLoadScroll(context.Background(), sess, 500*time.Millisecond, 3, rec.sleep)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, sess.scrolls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, rec.calls)
}

func TestLazyLoadScroll_BoundedAttempts(t *testing.T) {
	sess := newFakeSession()
	sess.heights = []int{100, 200, 300, 400, 500, 600}

	n, err := LazyLoadScroll(context.Background(), sess, 0, 3, (&sleepRecorder{}).sleep)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, sess.scrolls)
}

func TestLazyLoadScroll_HeightError(t *testing.T) {
	sess := newFakeSession()
	sess.heightErr = errors.New("target closed")

	n, err := LazyLoadScroll(context.Background(), sess, 0, 3, (&sleepRecorder{}).sleep)
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestLazyLoadScroll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := newFakeSession()
	sess.heights = []int{100, 200}
	n, err := LazyLoadScroll(ctx, sess, time.Second, 3, (&sleepRecorder{}).sleep)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestClickWithRetry_Absent(t *testing.T) {
	sess := newFakeSession()

	res := ClickWithRetry(context.Background(), sess, "#missing", 3, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{}, res)
	assert.Equal(t, 3, sess.lookups["#missing"])
}

func TestClickWithRetry_DirectClick(t *testing.T) {
	sess := newFakeSession()
	el := &fakeElement{}
	sess.elements["#btn"] = el

	res := ClickWithRetry(context.Background(), sess, "#btn", 2, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{Present: true, Clicked: true}, res)
	assert.Equal(t, 1, el.clicks)
	assert.Zero(t, el.progs)
}

func TestClickWithRetry_ProgrammaticFallback(t *testing.T) {
	sess := newFakeSession()
	el := &fakeElement{clickErr: errors.New("element intercepts pointer events")}
	sess.elements["#btn"] = el

	res := ClickWithRetry(context.Background(), sess, "#btn", 2, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{Present: true, Clicked: true}, res)
	assert.Equal(t, 1, el.progs)
}

func TestClickWithRetry_AllClicksFail(t *testing.T) {
	sess := newFakeSession()
	el := &fakeElement{clickErr: errors.New("intercepted"), progErr: errors.New("detached")}
	sess.elements["#btn"] = el

	res := ClickWithRetry(context.Background(), sess, "#btn", 2, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{Present: true, Clicked: false}, res)
	assert.Equal(t, 2, el.clicks)
	assert.Equal(t, 2, el.progs)
}

func TestClickWithRetry_DefaultAttempts(t *testing.T) {
	sess := newFakeSession()
	ClickWithRetry(context.Background(), sess, "#x", 0, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, defaultTries, sess.lookups["#x"])
}

func TestSelectDuration(t *testing.T) {
	sess := newFakeSession()
	sess.elements[DurationComboSelector] = &fakeElement{}

	res := SelectDuration(context.Background(), sess, 2, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{Present: true, Clicked: false}, res, "option missing")

	sess.elements[DurationOptionSelector] = &fakeElement{}
	res = SelectDuration(context.Background(), sess, 2, time.Second, (&sleepRecorder{}).sleep)
	assert.Equal(t, StepResult{Present: true, Clicked: true}, res)
}

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want PageState
	}{
		{"empty", "  ", PageEmpty},
		{"not found", "<h1>Symbol not found</h1>", PageNotFound},
		{"cloudflare marker", "<div>Checking your browser before accessing</div>", PageCloudflare},
		{"cloudflare title", "<title>Just a moment...</title>", PageCloudflare},
		{"captcha", "<div>Please complete the hCaptcha</div>", PageCaptcha},
		{"clean", "<html><body>Microsoft Corp</body></html>", PageOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPage(tt.html)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == PageOK, got.Cacheable())
		})
	}

	assert.True(t, PageCaptcha.Blocked())
	assert.False(t, PageNotFound.Blocked())
}

func TestClassifyPage_LargePageMentioningCaptcha(t *testing.T) {
	html := "<html><script src=\"https://www.google.com/recaptcha/api.js\"></script>"
	for len(html) < smallPage {
		html += "<div>earnings content</div>"
	}
	assert.Equal(t, PageOK, ClassifyPage(html))
}
