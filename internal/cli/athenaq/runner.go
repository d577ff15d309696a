package athenaq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/athenaq/athenaq/internal/config"
	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/history"
	"github.com/athenaq/athenaq/internal/storage"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type HistoryStore interface {
	history.Recorder
	history.Reader
}

// Options carries process wiring. Service, Store and History replace the
// configured backends when set.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Lookup config.LookupFunc

	Service execution.Service
	Store   storage.ObjectStore
	History HistoryStore
}

// errUsage marks errors that exit with status 2.
type errUsage struct {
	err error
}

func (e errUsage) Error() string { return e.err.Error() }
func (e errUsage) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return errUsage{err: fmt.Errorf(format, args...)}
}

// errReported marks failures already written to the terminal.
var errReported = errors.New("reported")

func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}

	a := &app{opts: opts}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetIn(opts.Stdin)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return 0
	}
	if errors.Is(err, errReported) {
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stderr, "error: %v\n", err)
	var usage errUsage
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		_, _ = fmt.Fprintln(opts.Stderr, "run 'athenaq --help' for usage")
		return 2
	}
	return 1
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "athenaq",
		Short:         "Run SQL on Amazon Athena with a local result cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errUsage{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.flags.configFile, "config", "", "TOML config file (default $ATHENAQ_CONFIG_FILE)")
	flags.StringVar(&a.flags.backend, "backend", "", "execution backend: athena or local")
	flags.StringVar(&a.flags.database, "database", "", "target database")
	flags.StringVar(&a.flags.workgroup, "workgroup", "", "Athena workgroup")
	flags.StringVar(&a.flags.outputLocation, "output-location", "", "result output location, s3://bucket/prefix/")
	flags.StringVar(&a.flags.cacheDir, "cache-dir", "", "result cache directory")
	flags.StringVar(&a.flags.awsProfile, "aws-profile", "", "AWS shared config profile")
	flags.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.queryCommand(),
		a.cacheCommand(),
		a.historyCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the athenaq version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "athenaq %s\n", Version)
			return err
		},
	}
}
