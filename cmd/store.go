package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/earnings-cli/internal/store"
)

// initStore validates the store settings, connects, and applies pending
// migrations. Callers should defer Close.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
