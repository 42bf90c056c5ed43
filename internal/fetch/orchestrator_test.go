package fetch

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/earnings-cli/internal/cache"
	"github.com/sells-group/earnings-cli/internal/config"
	"github.com/sells-group/earnings-cli/internal/model"
)

const quoteURL = "https://www.earningshub.com/quote/MSFT"

func testOptions() Options {
	o := DefaultOptions()
	o.RatePerMinute = 0
	return o
}

func setup(t *testing.T) (*Orchestrator, *fakeLauncher, *fakeSession, *cache.Store, *sleepRecorder) {
	t.Helper()
	store, err := cache.New(t.TempDir())
	require.NoError(t, err)

	sess := newFakeSession()
	sess.pages[quoteURL] = "<html><body>MSFT overview</body></html>"
	sess.pages[quoteURL+"/analysts"] = "<html><body>MSFT analysts</body></html>"
	sess.pages[quoteURL+"/earnings"] = "<html><body>MSFT earnings</body></html>"
	sess.elements[DurationComboSelector] = &fakeElement{}
	sess.elements[DurationOptionSelector] = &fakeElement{}

	l := &fakeLauncher{sess: sess}
	rec := &sleepRecorder{}
	o := New(l, store, testOptions())
	o.sleep = rec.sleep
	return o, l, sess, store, rec
}

func TestFetchVariants_FullCacheShortCircuit(t *testing.T) {
	o, l, sess, store, _ := setup(t)

	for _, v := range []model.Variant{model.VariantOverview, model.VariantAnalyst, model.VariantEarnings} {
		_, err := store.Write("MSFT", v, "cached "+string(v))
		require.NoError(t, err)
	}

	got, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.NoError(t, err)

	assert.Equal(t, 0, l.sessions, "no session opened")
	assert.Empty(t, sess.visited, "no navigation")
	assert.Equal(t, map[model.Variant]string{
		model.VariantOverview: store.Path("MSFT", model.VariantOverview),
		model.VariantAnalyst:  store.Path("MSFT", model.VariantAnalyst),
		model.VariantEarnings: store.Path("MSFT", model.VariantEarnings),
	}, got)
}

func TestFetchVariants_OverviewCacheShortCircuit(t *testing.T) {
	o, l, _, store, _ := setup(t)

	_, err := store.Write("MSFT", model.VariantOverview, "a")
	require.NoError(t, err)
	_, err = store.Write("MSFT", model.VariantAnalyst, "b")
	require.NoError(t, err)

	got, err := o.FetchVariants(context.Background(), quoteURL, "msft", model.VariantOverview)
	require.NoError(t, err)
	assert.Equal(t, 0, l.sessions)
	assert.Len(t, got, 2)
}

func TestFetchVariants_FullFromEmptyCache(t *testing.T) {
	o, l, sess, store, rec := setup(t)

	got, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.NoError(t, err)

	assert.Equal(t, 1, l.sessions, "one session for all sub-documents")
	assert.Equal(t, []string{quoteURL, quoteURL + "/analysts", quoteURL + "/earnings"}, sess.visited)
	assert.Equal(t, 1, sess.closed)
	assert.Len(t, got, 3)

	content, err := store.Read("MSFT", model.VariantEarnings)
	require.NoError(t, err)
	assert.Contains(t, content, "MSFT earnings")

	assert.Equal(t, 1, sess.elements[DurationComboSelector].clicks)
	assert.Equal(t, 1, sess.elements[DurationOptionSelector].clicks)
	assert.Contains(t, rec.calls, time.Second, "pre-scroll and close delays")
	assert.Greater(t, sess.scrolls, 0)
}

func TestFetchVariants_OnlyMissingDocumentsFetched(t *testing.T) {
	o, _, sess, store, _ := setup(t)

	_, err := store.Write("MSFT", model.VariantOverview, "a")
	require.NoError(t, err)
	_, err = store.Write("MSFT", model.VariantAnalyst, "b")
	require.NoError(t, err)

	got, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.NoError(t, err)

	assert.Equal(t, []string{quoteURL, quoteURL + "/earnings"}, sess.visited)
	assert.Len(t, got, 3)

	content, err := store.Read("MSFT", model.VariantOverview)
	require.NoError(t, err)
	assert.Equal(t, "a", content, "cached overview left untouched")
}

func TestFetchVariants_OverviewSkipsEarnings(t *testing.T) {
	o, _, sess, store, _ := setup(t)

	got, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantOverview)
	require.NoError(t, err)
	assert.Equal(t, []string{quoteURL, quoteURL + "/analysts"}, sess.visited)
	assert.Len(t, got, 2)
	assert.False(t, store.Exists("MSFT", model.VariantEarnings))
}

func TestFetchVariants_SymbolNotFoundNotCached(t *testing.T) {
	o, _, sess, store, _ := setup(t)
	for url := range sess.pages {
		sess.pages[url] = "<html><body><h1>Symbol Not Found</h1></body></html>"
	}

	got, err := o.FetchVariants(context.Background(), quoteURL, "ZZZZ", model.VariantFull)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchVariants_NavigationFailureClosesSession(t *testing.T) {
	o, _, sess, _, _ := setup(t)
	sess.navErr[quoteURL+"/analysts"] = errNav

	_, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNav))
	assert.Equal(t, 1, sess.closed)
}

func TestFetchVariants_BlockedPage(t *testing.T) {
	o, _, sess, store, _ := setup(t)
	sess.pages[quoteURL] = "<html><head><title>Just a moment...</title></head></html>"

	_, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantOverview)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
	assert.False(t, store.Exists("MSFT", model.VariantOverview))
	assert.Equal(t, 1, sess.closed)
}

func TestFetchVariants_DurationControlMissing(t *testing.T) {
	o, _, sess, store, _ := setup(t)
	delete(sess.elements, DurationComboSelector)

	_, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantOverview)
	require.NoError(t, err)
	assert.True(t, store.Exists("MSFT", model.VariantAnalyst))
	assert.Equal(t, 2, sess.lookups[DurationComboSelector], "retried up to the attempt limit")
	assert.Zero(t, sess.lookups[DurationOptionSelector])
}

func TestFetchVariants_LauncherFailure(t *testing.T) {
	o, l, _, _, _ := setup(t)
	l.err = errors.New("no browser installed")

	_, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open session")
}

func TestFetchVariants_InvalidInput(t *testing.T) {
	o, l, _, _, _ := setup(t)

	_, err := o.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantEarnings)
	require.Error(t, err)
	_, err = o.FetchVariants(context.Background(), quoteURL, " ", model.VariantFull)
	require.Error(t, err)
	assert.Equal(t, 0, l.sessions)
}

func TestFetchVariants_RateLimited(t *testing.T) {
	o, _, _, _, _ := setup(t)
	opts := testOptions()
	opts.RatePerMinute = 6000 // one navigation per 10ms
	limited := New(o.launcher, o.cache, opts)
	limited.sleep = (&sleepRecorder{}).sleep

	start := time.Now()
	_, err := limited.FetchVariants(context.Background(), quoteURL, "MSFT", model.VariantFull)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Browser: config.BrowserConfig{TimeoutSecs: 10, ScrollPauseMillis: 250, ScrollMaxAttempts: 5, ClickAttempts: 4},
		Source:  config.SourceConfig{RateLimitPerMinute: 30},
	}
	o := OptionsFromConfig(cfg)
	assert.Equal(t, 10*time.Second, o.ElementTimeout)
	assert.Equal(t, 250*time.Millisecond, o.ScrollPause)
	assert.Equal(t, 5, o.ScrollMaxAttempts)
	assert.Equal(t, 4, o.ClickAttempts)
	assert.Equal(t, 30, o.RatePerMinute)
	assert.Equal(t, time.Second, o.CloseDelay)
}

func TestSubURL(t *testing.T) {
	assert.Equal(t, quoteURL+"/earnings", subURL(quoteURL+"/", "earnings"))
}
