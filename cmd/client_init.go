package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/internal/wizard"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

// clientEnv holds the store, the auth session and the API client needed by
// every command that talks to the API.
type clientEnv struct {
	Store   store.Store
	Session *auth.Session
	API     leadsapi.Client
}

// Close releases resources held by the client environment.
func (ce *clientEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

// Wizard returns a wizard flow wired to the environment.
func (ce *clientEnv) Wizard(opts ...wizard.Option) *wizard.Flow {
	base := []wizard.Option{
		wizard.WithIntervals(cfg.Poll.LeadInterval, cfg.Poll.AuditInterval),
		wizard.WithPages(cfg.Wizard.Pages),
	}
	return wizard.New(ce.API, ce.Store, append(base, opts...)...)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initClient opens the store, restores the saved auth session and builds
// an API client that sends its bearer token. Callers should defer
// env.Close().
func initClient(ctx context.Context) (*clientEnv, error) {
	if err := cfg.Validate("client"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sess := auth.NewSession(auth.NewStoreTokens(st))

	opts := []leadsapi.Option{
		leadsapi.WithBaseURL(cfg.API.BaseURL),
		leadsapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout()}),
		leadsapi.WithTokenSource(sess),
	}
	if cfg.API.RateLimit > 0 {
		opts = append(opts, leadsapi.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	api := leadsapi.NewClient(opts...)
	sess.Bind(api)

	if err := sess.Restore(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "restore session")
	}

	zap.L().Debug("client ready",
		zap.String("base_url", cfg.API.BaseURL),
		zap.String("store", cfg.Store.Driver),
		zap.Stringer("auth", sess.State()),
	)

	return &clientEnv{Store: st, Session: sess, API: api}, nil
}

// loadSynonyms returns the header synonyms, read from the configured
// file when one is set.
func loadSynonyms() csvtable.Synonyms {
	if cfg.Validation.SynonymsFile == "" {
		return csvtable.DefaultSynonyms()
	}
	syn, err := csvtable.LoadSynonyms(cfg.Validation.SynonymsFile)
	if err != nil {
		zap.L().Warn("using default header synonyms", zap.Error(err))
	}
	return syn
}
