package duckdb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/storage"
)

var ErrUnknownExecution = errors.New("unknown query execution")

type Options struct {
	// OutputLocation is used when a submission names none.
	OutputLocation string
	Logger         *slog.Logger
}

// Service runs each submitted statement in its own goroutine against a
// DuckDB database and writes the result object the way Athena does, so the
// same fetch and parse path serves both backends.
type Service struct {
	db      *sql.DB
	ownsDB  bool
	store   storage.ObjectStore
	options Options
	now     func() time.Time

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	record execution.Record
	cancel context.CancelFunc
}

// Open opens the DuckDB database at path; an empty path is in-memory.
func Open(path string, store storage.ObjectStore, opts Options) (*Service, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	svc := New(db, store, opts)
	svc.ownsDB = true
	return svc, nil
}

func New(db *sql.DB, store storage.ObjectStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:      db,
		store:   store,
		options: opts,
		now:     time.Now,
		runs:    map[string]*run{},
	}
}

func (s *Service) Submit(_ context.Context, in execution.SubmitInput) (string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if s.db == nil {
		return "", fmt.Errorf("duckdb database is required")
	}
	if s.store == nil {
		return "", fmt.Errorf("object store is required")
	}
	outputLocation := in.OutputLocation
	if outputLocation == "" {
		outputLocation = s.options.OutputLocation
	}
	prefix, err := storage.ParsePrefix(outputLocation)
	if err != nil {
		return "", fmt.Errorf("output location: %w", err)
	}

	id := uuid.NewString()
	statementType := StatementTypeOf(in.Query)
	submitted := s.now()
	rec := execution.Record{
		ID:             id,
		Query:          in.Query,
		Database:       in.Database,
		Workgroup:      in.Workgroup,
		State:          execution.StateQueued,
		StatementType:  statementType,
		OutputLocation: prefix.Child(id + extensionFor(statementType)).String(),
		SubmittedAt:    &submitted,
	}

	// The run outlives the submitting call; only Stop or Close end it early.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.runs[id] = &run{record: rec, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(runCtx, rec)
	}()
	return id, nil
}

func (s *Service) Status(_ context.Context, id string) (execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return execution.Record{}, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return r.record, nil
}

// Stop cancels a running statement. Stopping a finished execution is a
// no-op, as it is on Athena. The acknowledgement is a fresh request id.
func (s *Service) Stop(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	r, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	if !r.record.State.Terminal() {
		s.finishLocked(r, execution.StateCancelled, "Query cancelled by user")
		r.cancel()
	}
	s.mu.Unlock()
	return uuid.NewString(), nil
}

// Close cancels outstanding runs, waits for them and closes the database
// when the service opened it.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Service) execute(ctx context.Context, rec execution.Record) {
	logger := s.options.Logger.With(slog.String("execution_id", rec.ID))
	if !s.transition(rec.ID, execution.StateRunning, "") {
		return
	}

	start := s.now()
	body, contentType, err := s.runStatement(ctx, rec)
	if err == nil {
		err = s.writeOutput(ctx, rec.OutputLocation, body, contentType)
	}
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[rec.ID]
	if r.record.State.Terminal() {
		return
	}
	r.record.EngineExecutionMs = elapsed.Milliseconds()
	if err != nil {
		logger.Debug("local query failed", slog.Any("error", err))
		s.finishLocked(r, execution.StateFailed, failureReason(err))
		return
	}
	r.record.DataScannedBytes = int64(len(body))
	s.finishLocked(r, execution.StateSucceeded, "")
}

func (s *Service) runStatement(ctx context.Context, rec execution.Record) ([]byte, string, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if rec.Database != "" {
		if _, err := conn.ExecContext(ctx, "USE "+quoteIdent(rec.Database)); err != nil {
			return nil, "", err
		}
	}

	sqlText := stripTrailingSemicolons(rec.Query)
	if rec.StatementType == execution.StatementDDL {
		if _, err := conn.ExecContext(ctx, sqlText); err != nil {
			return nil, "", err
		}
		return []byte{}, "text/plain", nil
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	columns, records, err := scanRows(rows)
	if err != nil {
		return nil, "", err
	}
	if rec.StatementType == execution.StatementUtility {
		body, err := encodeTSV(records)
		return body, "text/plain", err
	}
	body, err := encodeCSV(columns, records)
	return body, "text/csv", err
}

func (s *Service) writeOutput(ctx context.Context, location string, body []byte, contentType string) error {
	target, err := storage.ParseLocation(location)
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, target.Bucket, target.Key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write result %s: %w", target, err)
	}
	return nil
}

func (s *Service) transition(id string, state execution.State, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	if r.record.State.Terminal() {
		return false
	}
	r.record.State = state
	r.record.StateChangeReason = reason
	return true
}

func (s *Service) finishLocked(r *run, state execution.State, reason string) {
	completed := s.now()
	r.record.State = state
	r.record.StateChangeReason = reason
	r.record.CompletedAt = &completed
}

func extensionFor(statementType execution.StatementType) string {
	if statementType == execution.StatementDML {
		return ".csv"
	}
	return ".txt"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
