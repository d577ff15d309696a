package athenaq

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/athenaq/athenaq/internal/cache"
	"github.com/athenaq/athenaq/internal/config"
	"github.com/athenaq/athenaq/internal/execution"
	athenaexec "github.com/athenaq/athenaq/internal/execution/athena"
	duckdbexec "github.com/athenaq/athenaq/internal/execution/duckdb"
	historypostgres "github.com/athenaq/athenaq/internal/history/postgres"
	"github.com/athenaq/athenaq/internal/observability"
	"github.com/athenaq/athenaq/internal/storage"
	"github.com/athenaq/athenaq/internal/storage/awss3"
	s3store "github.com/athenaq/athenaq/internal/storage/s3"
)

type globalFlags struct {
	configFile     string
	backend        string
	database       string
	workgroup      string
	outputLocation string
	cacheDir       string
	awsProfile     string
	metricsAddr    string
	logLevel       string
}

// app resolves configuration once per invocation and builds backends on
// first use, closing them when the command returns.
type app struct {
	opts   Options
	flags  globalFlags
	cfg    config.Config
	logger *slog.Logger

	awsConfig *aws.Config
	closers   []func() error
}

func (a *app) load(cmd *cobra.Command) error {
	lookup := a.opts.Lookup
	path := a.flags.configFile
	if path == "" {
		if value, ok := lookup("ATHENAQ_CONFIG_FILE"); ok {
			path = strings.TrimSpace(value)
		}
	}

	overrides := map[string]string{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("backend", "ATHENAQ_BACKEND", a.flags.backend)
	set("database", "ATHENAQ_DATABASE", a.flags.database)
	set("workgroup", "ATHENAQ_WORKGROUP", a.flags.workgroup)
	set("output-location", "ATHENAQ_OUTPUT_LOCATION", a.flags.outputLocation)
	set("cache-dir", "ATHENAQ_CACHE_DIR", a.flags.cacheDir)
	set("aws-profile", "ATHENAQ_AWS_PROFILE", a.flags.awsProfile)
	set("metrics-addr", "ATHENAQ_METRICS_ADDR", a.flags.metricsAddr)
	set("log-level", "ATHENAQ_LOG_LEVEL", a.flags.logLevel)
	flagLookup := func(key string) (string, bool) {
		value, ok := overrides[key]
		return value, ok
	}

	cfg, err := config.LoadWithFile("athenaq", path, config.Chain(flagLookup, lookup))
	if err != nil {
		return errUsage{err: fmt.Errorf("load config: %w", err)}
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg, a.opts.Stderr)
	if cfg.Output.NoColor {
		pterm.DisableStyling()
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

func (a *app) loadAWS(ctx context.Context) (aws.Config, error) {
	if a.awsConfig != nil {
		return *a.awsConfig, nil
	}
	cfg, err := athenaexec.LoadAWSConfig(ctx, a.cfg.AWS.Profile, a.cfg.AWS.Region)
	if err != nil {
		return aws.Config{}, err
	}
	a.awsConfig = &cfg
	return cfg, nil
}

func (a *app) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	if a.opts.Store != nil {
		return a.opts.Store, nil
	}
	store := a.cfg.ObjectStore
	switch store.Driver {
	case config.DriverMinio:
		return s3store.New(s3store.Config{
			Endpoint:         store.Endpoint,
			Region:           store.Region,
			AccessKeyID:      store.AccessKeyID,
			SecretAccessKey:  store.SecretAccessKey,
			UseSSL:           store.UseSSL,
			UsePathStyle:     store.UsePathStyle,
			AutoCreateBucket: store.AutoCreateBucket,
		})
	default:
		awsCfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return awss3.New(awsCfg, awss3.Options{Endpoint: store.Endpoint, UsePathStyle: store.UsePathStyle}), nil
	}
}

func (a *app) service(ctx context.Context, store storage.ObjectStore) (execution.Service, error) {
	if a.opts.Service != nil {
		return a.opts.Service, nil
	}
	switch a.cfg.Query.Backend {
	case config.BackendLocal:
		svc, err := duckdbexec.Open(a.cfg.Local.DuckDBPath, store, duckdbexec.Options{
			OutputLocation: a.cfg.Query.OutputLocation,
			Logger:         a.logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, svc.Close)
		return svc, nil
	default:
		awsCfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return athenaexec.New(awsCfg), nil
	}
}

// historyStore returns nil when no history store is configured.
func (a *app) historyStore(ctx context.Context) (HistoryStore, error) {
	if a.opts.History != nil {
		return a.opts.History, nil
	}
	db, err := a.historyDB(ctx)
	if err != nil || db == nil {
		return nil, err
	}
	store := historypostgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) historyDB(ctx context.Context) (*sql.DB, error) {
	if a.cfg.History.DSN == "" {
		return nil, nil
	}
	db, err := historypostgres.Open(ctx, historypostgres.DBConfig{
		DSN:             a.cfg.History.DSN,
		MaxOpenConns:    a.cfg.History.MaxOpenConns,
		MaxIdleConns:    a.cfg.History.MaxIdleConns,
		ConnMaxIdleTime: a.cfg.History.ConnMaxIdleTime,
		ConnMaxLifetime: a.cfg.History.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// resultCache creates the configured directory; the cache itself never
// does.
func (a *app) resultCache() *cache.Cache {
	if !a.cfg.Cache.Enabled {
		return nil
	}
	if err := os.MkdirAll(a.cfg.Cache.Dir, 0o755); err != nil {
		a.logger.Warn("cache disabled", slog.String("dir", a.cfg.Cache.Dir), slog.Any("error", err))
		return nil
	}
	return cache.New(a.cfg.Cache.Dir)
}
