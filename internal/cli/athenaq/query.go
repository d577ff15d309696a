package athenaq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/athenaq/athenaq/internal/dispatch"
	"github.com/athenaq/athenaq/internal/executor"
	"github.com/athenaq/athenaq/internal/observability"
	"github.com/athenaq/athenaq/internal/output"
)

type queryFlags struct {
	file    string
	cache   bool
	noCache bool
	async   bool
	format  string
	maxRows int
}

func (a *app) queryCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a query and print its result",
		Long: `Run a query and print its result.

The SQL comes from the argument, from --file, or from stdin. SELECT queries
are served from the local cache when an entry for the same database and
query text exists. Ctrl-C stops the running query.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, args, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "read SQL from file")
	cmd.Flags().BoolVar(&flags.cache, "cache", false, "force the result cache on")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().BoolVar(&flags.async, "async", false, "run in the background and wait for the result")
	cmd.Flags().StringVar(&flags.format, "format", "table", "result format: table or csv")
	cmd.Flags().IntVar(&flags.maxRows, "max-rows", 0, "rows to render in table format (default from config)")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command, args []string, flags queryFlags) error {
	if flags.cache && flags.noCache {
		return usageErrorf("--cache and --no-cache are mutually exclusive")
	}
	query, err := readQuery(cmd.InOrStdin(), args, flags.file)
	if err != nil {
		return err
	}
	sink, err := a.sink(flags)
	if err != nil {
		return err
	}

	ctx := observability.ContextWithRunID(cmd.Context(), uuid.NewString())
	if a.cfg.Observability.MetricsAddr != "" {
		server, err := observability.StartMetricsServer(a.cfg.Observability.MetricsAddr, a.logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	exec, err := a.executor(ctx, sink)
	if err != nil {
		return err
	}

	req := executor.Request{
		Query:          query,
		Database:       a.cfg.Query.Database,
		Workgroup:      a.cfg.Query.Workgroup,
		OutputLocation: a.cfg.Query.OutputLocation,
	}
	switch {
	case flags.cache:
		enabled := true
		req.UseCache = &enabled
	case flags.noCache:
		disabled := false
		req.UseCache = &disabled
	}

	var result executor.Result
	if flags.async {
		future := dispatch.Go(ctx, exec, req, sink)
		a.logger.Debug("query dispatched")
		// Interrupts reach the run through ctx, so Wait uses a context
		// that outlives it.
		result, err = future.Wait(context.WithoutCancel(ctx))
	} else {
		result, err = exec.Run(ctx, req)
		if err == nil && result.Table != nil {
			sink.Display(*result.Table)
		}
	}
	if err != nil {
		return err
	}

	switch {
	case result.QueryError != nil, result.Cancelled:
		return errReported
	case result.Table == nil:
		sink.Println(string(result.State))
	case result.Cached:
		a.logger.Info("served from cache", slog.String("database", req.Database))
	}
	return nil
}

func (a *app) executor(ctx context.Context, sink output.Sink) (*executor.Executor, error) {
	store, err := a.objectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	service, err := a.service(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("execution backend: %w", err)
	}
	recorder, err := a.historyStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	deps := executor.Deps{
		Service: service,
		Store:   store,
		Cache:   a.resultCache(),
		Sink:    sink,
		Logger:  a.logger,
		Backend: a.cfg.Query.Backend,
	}
	if recorder != nil {
		deps.History = recorder
	}
	return executor.New(deps, executor.Config{
		PollInterval: a.cfg.Query.PollInterval,
		MaxPolls:     a.cfg.Query.MaxPolls,
		Timeout:      a.cfg.Query.Timeout,
		StopTimeout:  a.cfg.Query.StopTimeout,
	}), nil
}

func (a *app) sink(flags queryFlags) (output.Sink, error) {
	switch flags.format {
	case "table", "":
		maxRows := flags.maxRows
		if maxRows <= 0 {
			maxRows = a.cfg.Output.MaxRows
		}
		return output.NewTerminal(a.opts.Stdout, maxRows), nil
	case "csv":
		return output.NewCSV(a.opts.Stderr, a.opts.Stdout), nil
	default:
		return nil, usageErrorf("unknown format %q", flags.format)
	}
}

func readQuery(stdin io.Reader, args []string, file string) (string, error) {
	var query string
	switch {
	case file != "" && len(args) > 0:
		return "", usageErrorf("pass SQL either as an argument or with --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		query = string(data)
	case len(args) == 1 && args[0] != "-":
		query = args[0]
	case len(args) > 1:
		return "", usageErrorf("expected one SQL argument, got %d; quote the query", len(args))
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read query from stdin: %w", err)
		}
		query = string(data)
	}
	query = strings.TrimRight(query, " \t\r\n")
	if strings.TrimSpace(query) == "" {
		return "", usageErrorf("query is required")
	}
	return query, nil
}
