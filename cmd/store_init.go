package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-engine/internal/benchmark"
	"github.com/sells-group/diligence-engine/internal/store"
)

func initStore(ctx context.Context) (store.NodeStore, error) {
	var (
		st  store.NodeStore
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "memory":
		st = store.NewMemory()
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// initLibrary builds the benchmark library, applying the configured overlay
// when one is set.
func initLibrary() (*benchmark.Library, error) {
	lib := benchmark.DefaultLibrary()
	if cfg.Estimate.OverlayPath != "" {
		if err := lib.LoadOverlay(cfg.Estimate.OverlayPath); err != nil {
			return nil, err
		}
	}
	return lib, nil
}
