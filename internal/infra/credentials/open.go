package credentials

import (
	"context"
	"fmt"

	"studio/internal/infra"
)

// Open builds the store selected by cfg.CredentialStore. The returned close
// function releases any database pool and is never nil.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (Store, func(), error) {
	noop := func() {}
	kind, err := ParseKind(cfg.CredentialStore)
	if err != nil {
		return nil, noop, err
	}

	switch kind {
	case KindMemory:
		logger.Warn().Msg("credentials: using in-memory store; keys are lost on restart")
		return NewMemoryStore(), noop, nil
	case KindPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		store := NewSQLStore(infra.NewSQLRunner(pool, logger))
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, pool.Close, nil
	default:
		store, err := NewFileStore(cfg.CredentialFile)
		if err != nil {
			return nil, noop, fmt.Errorf("credentials: %w", err)
		}
		logger.Debug().Str("path", store.Path()).Msg("credentials: using file store")
		return store, noop, nil
	}
}
