package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/athenaq/athenaq/internal/cache"
	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/history"
	"github.com/athenaq/athenaq/internal/observability"
	"github.com/athenaq/athenaq/internal/output"
	"github.com/athenaq/athenaq/internal/sqlerror"
	"github.com/athenaq/athenaq/internal/storage"
	"github.com/athenaq/athenaq/internal/table"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultStopTimeout  = 5 * time.Second
)

var ErrPollTimeout = errors.New("query polling limit reached")

// PollTimeoutError reports that polling gave up. The remote execution is
// left running.
type PollTimeoutError struct {
	ExecutionID string
	Polls       int
	Elapsed     time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("query %s still running after %d polls (%s)", e.ExecutionID, e.Polls, e.Elapsed.Round(time.Second))
}

func (e *PollTimeoutError) Unwrap() error {
	return ErrPollTimeout
}

type Request struct {
	Query          string
	Database       string
	Workgroup      string
	OutputLocation string
	// UseCache overrides cache inference when set.
	UseCache *bool
	// Sink receives status text for this run instead of Deps.Sink.
	Sink output.Sink
}

// CacheEnabled is true iff the query mentions "select", unless UseCache
// says otherwise.
func (r Request) CacheEnabled() bool {
	if r.UseCache != nil {
		return *r.UseCache
	}
	return strings.Contains(strings.ToLower(r.Query), "select")
}

type Result struct {
	// Table is nil for DDL statements and for recovered errors.
	Table       *table.Table
	State       execution.State
	ExecutionID string
	Record      execution.Record
	Cached      bool
	Cancelled   bool
	StopAck     string
	Polls       int
	Elapsed     time.Duration
	// QueryError is set when a positional SQL error was rendered to the
	// sink instead of being returned.
	QueryError error
}

type Deps struct {
	Service execution.Service
	Store   storage.ObjectStore
	Cache   *cache.Cache
	Sink    output.Sink
	Logger  *slog.Logger
	History history.Recorder
	// Backend labels metrics and history entries.
	Backend string
}

type Config struct {
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration
	StopTimeout  time.Duration
}

type Executor struct {
	deps Deps
	cfg  Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, cfg Config) *Executor {
	if deps.Sink == nil {
		deps.Sink = output.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Executor{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Run executes req through cache lookup, submit, poll, fetch and parse.
// Cancelling ctx while polling or fetching stops the remote execution and
// yields a cancelled Result with a nil error.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Result{}, fmt.Errorf("query is required")
	}
	if e.deps.Service == nil || e.deps.Store == nil {
		return Result{}, fmt.Errorf("execution service and object store are required")
	}

	if req.Sink == nil {
		req.Sink = e.deps.Sink
	}

	start := e.now()
	result, err := e.run(ctx, req)
	result.Elapsed = e.now().Sub(start)

	if err != nil && !errors.Is(err, ErrPollTimeout) {
		if _, ok := sqlerror.PositionOf(err); ok {
			sqlerror.Report(req.Sink, req.Query, err)
			result.QueryError = err
			if result.State == "" {
				result.State = execution.StateFailed
			}
			err = nil
		}
	}

	e.observe(ctx, req, result, err)
	return result, err
}

func (e *Executor) run(ctx context.Context, req Request) (Result, error) {
	key := cache.Key(req.Database, req.Query)
	useCache := req.CacheEnabled() && e.deps.Cache != nil

	if useCache {
		cached, found, err := e.deps.Cache.Get(key)
		if err != nil {
			observability.ObserveCacheLookup(observability.CacheError)
			return Result{}, fmt.Errorf("read cache: %w", err)
		}
		if found {
			observability.ObserveCacheLookup(observability.CacheHit)
			return Result{Table: &cached, State: execution.StateSucceeded, Cached: true}, nil
		}
		observability.ObserveCacheLookup(observability.CacheMiss)
	}

	id, err := e.deps.Service.Submit(ctx, execution.SubmitInput{
		Query:          req.Query,
		Database:       req.Database,
		Workgroup:      req.Workgroup,
		OutputLocation: req.OutputLocation,
	})
	if err != nil {
		return Result{}, err
	}
	logger := observability.LoggerFromContext(ctx, e.deps.Logger).With(slog.String("execution_id", id), slog.String("database", req.Database))
	logger.Info("query submitted")

	result := Result{ExecutionID: id}
	record, elapsed, err := e.poll(ctx, logger, req.Sink, &result)
	if err != nil {
		return result, err
	}
	if result.Cancelled {
		return result, nil
	}
	result.Record = record
	result.State = record.State

	switch record.State {
	case execution.StateFailed, execution.StateCancelled:
		return result, execution.NewQueryError(id, record.State, record.StateChangeReason)
	}

	location, err := storage.ParseLocation(record.OutputLocation)
	if err != nil {
		return result, err
	}
	req.Sink.Println(fmt.Sprintf("Duration: %s aws s3 cp %s", formatSeconds(elapsed), location))

	data, err := storage.ReadAll(ctx, e.deps.Store, location)
	if err != nil {
		if ctx.Err() != nil {
			e.stop(logger, req.Sink, &result)
			return result, nil
		}
		return result, fmt.Errorf("fetch result %s: %w", location, err)
	}
	observability.AddResultBytes(len(data))

	var parsed table.Table
	switch {
	case strings.HasSuffix(location.Key, ".csv"):
		parsed, err = table.ParseCSV(data)
	case record.StatementType == execution.StatementDDL:
		return result, nil
	default:
		parsed, err = table.ParseTSV(data)
	}
	if err != nil {
		return result, fmt.Errorf("parse result %s: %w", location, err)
	}
	result.Table = &parsed

	if useCache {
		err := e.deps.Cache.Put(key, parsed, record)
		observability.ObserveCacheWrite(err)
		if err != nil {
			logger.Warn("cache write failed", slog.Any("error", err))
		}
	}
	return result, nil
}

// poll waits for a terminal state, reporting elapsed seconds on every poll.
func (e *Executor) poll(ctx context.Context, logger *slog.Logger, sink output.Sink, result *Result) (execution.Record, time.Duration, error) {
	start := e.now()
	for {
		record, err := e.deps.Service.Status(ctx, result.ExecutionID)
		if err != nil {
			if ctx.Err() != nil {
				e.stop(logger, sink, result)
				return execution.Record{}, 0, nil
			}
			return execution.Record{}, 0, err
		}
		result.Polls++
		elapsed := e.now().Sub(start)
		sink.Progress(fmt.Sprintf("Duration: %d", int64(elapsed.Seconds())))
		logger.Debug("query status", slog.String("state", string(record.State)), slog.Int("poll", result.Polls))

		if record.State.Terminal() {
			return record, elapsed, nil
		}
		if (e.cfg.MaxPolls > 0 && result.Polls >= e.cfg.MaxPolls) || (e.cfg.Timeout > 0 && elapsed >= e.cfg.Timeout) {
			result.State = record.State
			result.Record = record
			return record, elapsed, &PollTimeoutError{ExecutionID: result.ExecutionID, Polls: result.Polls, Elapsed: elapsed}
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			e.stop(logger, sink, result)
			return execution.Record{}, 0, nil
		}
	}
}

// stop runs on a fresh context because the caller's is already cancelled.
func (e *Executor) stop(logger *slog.Logger, sink output.Sink, result *Result) {
	stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.StopTimeout)
	defer cancel()

	result.Cancelled = true
	result.State = execution.StateCancelled
	ack, err := e.deps.Service.Stop(stopCtx, result.ExecutionID)
	if err != nil {
		logger.Error("stop query failed", slog.Any("error", err))
		sink.Println(fmt.Sprintf("Query cancel failed %s: %v", result.ExecutionID, err))
		return
	}
	result.StopAck = ack
	logger.Info("query cancelled", slog.String("ack", ack))
	sink.Println(fmt.Sprintf("Query cancelled %s %s", result.ExecutionID, ack))
}

func (e *Executor) observe(ctx context.Context, req Request, result Result, err error) {
	state := string(result.State)
	var timeout *PollTimeoutError
	switch {
	case errors.As(err, &timeout):
		state = "TIMEOUT"
	case err != nil && state == "":
		state = "ERROR"
	case state == "":
		state = "UNKNOWN"
	}
	observability.ObserveQuery(e.deps.Backend, state, result.Elapsed, result.Polls)

	if e.deps.History == nil {
		return
	}
	reason := result.Record.StateChangeReason
	if err != nil {
		reason = err.Error()
	} else if result.QueryError != nil {
		reason = result.QueryError.Error()
	}
	historyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StopTimeout)
	defer cancel()
	_, recordErr := e.deps.History.Record(historyCtx, history.Entry{
		RunID:          observability.RunIDFromContext(ctx),
		ExecutionID:    result.ExecutionID,
		Backend:        e.deps.Backend,
		Database:       req.Database,
		Query:          req.Query,
		State:          state,
		Reason:         reason,
		StatementType:  string(result.Record.StatementType),
		OutputLocation: result.Record.OutputLocation,
		Cached:         result.Cached,
		Duration:       result.Elapsed,
	})
	if recordErr != nil {
		e.deps.Logger.Warn("history record failed", slog.String("execution_id", result.ExecutionID), slog.Any("error", recordErr))
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Round(time.Millisecond).Seconds(), 'f', -1, 64)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
