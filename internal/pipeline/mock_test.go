package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/earnings-cli/internal/cache"
	"github.com/sells-group/earnings-cli/internal/model"
)

// fakeFetcher stands in for the browser-backed orchestrator by writing
// canned documents into the cache.
type fakeFetcher struct {
	docs  *cache.Store
	pages map[model.Variant]string
	err   error
	calls int
	urls  []string
}

func (f *fakeFetcher) FetchVariants(_ context.Context, url, subject string, variant model.Variant) (map[model.Variant]string, error) {
	f.calls++
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	locs := make(map[model.Variant]string)
	for _, v := range variant.Required() {
		if f.docs.Exists(subject, v) {
			locs[v] = f.docs.Path(subject, v)
			continue
		}
		html, ok := f.pages[v]
		if !ok {
			continue
		}
		path, err := f.docs.Write(subject, v, html)
		if err != nil {
			return nil, err
		}
		locs[v] = path
	}
	return locs, nil
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertOne(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error) {
	args := m.Called(ctx, row)
	return args.Get(0).(model.UpsertResult), args.Error(1)
}

func (m *mockStore) UpsertMany(ctx context.Context, rows []model.EarningsRow) (model.UpsertStats, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(model.UpsertStats), args.Error(1)
}

func (m *mockStore) ListByTicker(ctx context.Context, ticker string, limit int) ([]model.EarningsRow, error) {
	args := m.Called(ctx, ticker, limit)
	return args.Get(0).([]model.EarningsRow), args.Error(1)
}

func (m *mockStore) LatestReportDates(ctx context.Context, ticker string, limit int) ([]time.Time, error) {
	args := m.Called(ctx, ticker, limit)
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Ping(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }
