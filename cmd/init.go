package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/audit"
	"github.com/sells-group/citation-cli/internal/provider"
	"github.com/sells-group/citation-cli/internal/resilience"
	"github.com/sells-group/citation-cli/internal/store"
	"github.com/sells-group/citation-cli/pkg/brightlocal"
)

// initStore opens the configured store and applies migrations. Callers
// should defer st.Close().
func initStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "citations.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initProvider builds the provider report client wrapped in retries and a
// circuit breaker.
func initProvider() provider.ReportClient {
	client := brightlocal.NewClient(cfg.Provider.APIKey, cfg.Provider.APISecret,
		brightlocal.WithBaseURL(cfg.Provider.BaseURL),
		brightlocal.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Provider.TimeoutSecs) * time.Second}),
		brightlocal.WithRateLimit(cfg.Provider.RateLimit),
	)

	retry, circuit := resilience.FromConfig(cfg.Resilience)
	return provider.NewResilient(provider.NewBrightLocal(client), retry, resilience.NewCircuitBreaker(circuit))
}

// auditEnv holds everything the audit and serve commands need.
type auditEnv struct {
	Store        store.Store
	Orchestrator *audit.Orchestrator
	locker       *audit.RedisLocker
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.locker != nil {
		_ = e.locker.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAudit sets up the store, provider client and run locker, and builds
// the orchestrator. Callers should defer env.Close().
func initAudit(ctx context.Context, mode string) (*auditEnv, error) {
	st, err := initStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &auditEnv{Store: st}

	opts := []audit.Option{
		audit.WithConcurrency(cfg.Poll.Concurrency),
		audit.WithDeleteAfterComplete(cfg.Provider.DeleteAfterComplete),
	}
	if cfg.Lock.RedisURL != "" {
		locker, err := audit.NewRedisLocker(ctx, cfg.Lock.RedisURL, time.Duration(cfg.Lock.TTLSecs)*time.Second)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.locker = locker
		opts = append(opts, audit.WithLocker(locker))
		zap.L().Info("redis run lock enabled")
	} else {
		zap.L().Debug("CITATION_LOCK_REDIS_URL not set, run locking disabled")
	}

	env.Orchestrator = audit.New(st, initProvider(), opts...)
	return env, nil
}
