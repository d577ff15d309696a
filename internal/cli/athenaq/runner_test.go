package athenaq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/history"
	"github.com/athenaq/athenaq/internal/storage"
)

type stubService struct {
	mu      sync.Mutex
	record  execution.Record
	submits []execution.SubmitInput
}

func (s *stubService) Submit(_ context.Context, in execution.SubmitInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, in)
	return "exec-1", nil
}

func (s *stubService) Status(_ context.Context, id string) (execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.record
	record.ID = id
	return record, nil
}

func (s *stubService) Stop(context.Context, string) (string, error) {
	return "ack", nil
}

func (s *stubService) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submits)
}

type stubStore struct {
	objects map[string]string
}

func (s stubStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s stubStore) Put(context.Context, string, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("read-only store")
}

type stubHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *stubHistory) Record(_ context.Context, entry history.Entry) (history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry.ID = int64(len(h.entries) + 1)
	entry.RecordedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.entries = append(h.entries, entry)
	return entry, nil
}

func (h *stubHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.entries) {
		limit = len(h.entries)
	}
	return append([]history.Entry(nil), h.entries[:limit]...), nil
}

type harness struct {
	service *stubService
	store   stubStore
	history *stubHistory
	env     map[string]string
	stdin   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		service: &stubService{record: execution.Record{
			State:          execution.StateSucceeded,
			StatementType:  execution.StatementDML,
			OutputLocation: "s3://results/exec-1.csv",
		}},
		store:   stubStore{objects: map[string]string{"results/exec-1.csv": "a,b\n1,x\n"}},
		history: &stubHistory{},
		env: map[string]string{
			"ATHENAQ_CACHE_DIR":     t.TempDir(),
			"ATHENAQ_POLL_INTERVAL": "1ms",
			"ATHENAQ_NO_COLOR":      "true",
		},
	}
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Stdin:  strings.NewReader(h.stdin),
		Lookup: func(key string) (string, bool) {
			value, ok := h.env[key]
			return value, ok
		},
		Service: h.service,
		Store:   h.store,
		History: h.history,
	})
	return code, stdout.String(), stderr.String()
}

func TestRunQueryPrintsResultAndUsesCache(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run("query", "--database", "sales", "select a, b from t")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "aws s3 cp s3://results/exec-1.csv") {
		t.Fatalf("stdout missing fetch line: %q", stdout)
	}
	if !strings.Contains(stdout, "x") {
		t.Fatalf("stdout missing table: %q", stdout)
	}
	if got := h.service.submits[0].Database; got != "sales" {
		t.Fatalf("submitted database = %q", got)
	}

	code, _, stderr = h.run("query", "--database", "sales", "select a, b from t")
	if code != 0 {
		t.Fatalf("second exit code = %d, stderr=%s", code, stderr)
	}
	if got := h.service.submitCount(); got != 1 {
		t.Fatalf("submits = %d, want cached second run", got)
	}
	if len(h.history.entries) != 2 || !h.history.entries[1].Cached {
		t.Fatalf("history = %+v", h.history.entries)
	}
}

func TestRunQueryNoCacheResubmits(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 2; i++ {
		if code, _, stderr := h.run("query", "--no-cache", "select 1"); code != 0 {
			t.Fatalf("exit code = %d, stderr=%s", code, stderr)
		}
	}
	if got := h.service.submitCount(); got != 2 {
		t.Fatalf("submits = %d, want 2", got)
	}
}

func TestRunQueryRejectsConflictingCacheFlags(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("query", "--cache", "--no-cache", "select 1")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "mutually exclusive") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunQueryReadsStdin(t *testing.T) {
	h := newHarness(t)
	h.stdin = "select a\nfrom t\n"
	if code, _, stderr := h.run("query"); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if got := h.service.submits[0].Query; got != "select a\nfrom t" {
		t.Fatalf("submitted query = %q", got)
	}
}

func TestRunQueryWithoutSQLIsUsageError(t *testing.T) {
	h := newHarness(t)
	if code, _, _ := h.run("query"); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunQueryReportsPositionalError(t *testing.T) {
	h := newHarness(t)
	h.service.record = execution.Record{
		State:             execution.StateFailed,
		StateChangeReason: "line 1:8: mismatched input 'form'",
	}
	code, stdout, _ := h.run("query", "select * form t")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	for _, want := range []string{"Query has error:", "select * form t", "-------^"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q: %q", want, stdout)
		}
	}
}

func TestRunQueryWritesCSV(t *testing.T) {
	h := newHarness(t)
	code, stdout, stderr := h.run("query", "--format", "csv", "select a, b from t")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if stdout != "a,b\n1,x\n" {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "aws s3 cp") {
		t.Fatalf("status should go to stderr: %q", stderr)
	}
}

func TestRunQueryAsync(t *testing.T) {
	h := newHarness(t)
	code, stdout, stderr := h.run("query", "--async", "select a, b from t")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "x") {
		t.Fatalf("stdout missing table: %q", stdout)
	}
}

func TestRunCacheKeyAndShow(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run("cache", "key", "--database", "sales", "select 1")
	if code != 0 {
		t.Fatalf("cache key exit code = %d", code)
	}
	if !strings.Contains(stdout, ".parquet") || !strings.Contains(stdout, `"--sales\nselect 1"`) {
		t.Fatalf("cache key output = %q", stdout)
	}

	if code, _, _ := h.run("cache", "show", "--database", "sales", "select a, b from t"); code != 1 {
		t.Fatalf("cache show before query exit code = %d, want 1", code)
	}
	if code, _, stderr := h.run("query", "--database", "sales", "select a, b from t"); code != 0 {
		t.Fatalf("query exit code = %d, stderr=%s", code, stderr)
	}
	code, stdout, stderr := h.run("cache", "show", "--database", "sales", "select a, b from t")
	if code != 0 {
		t.Fatalf("cache show exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "exec-1") || !strings.Contains(stdout, "SUCCEEDED") {
		t.Fatalf("cache show output = %q", stdout)
	}
}

func TestRunHistoryListsEntries(t *testing.T) {
	h := newHarness(t)
	if code, _, stderr := h.run("query", "select a, b from t"); code != 0 {
		t.Fatalf("query exit code = %d, stderr=%s", code, stderr)
	}
	code, stdout, stderr := h.run("history", "--limit", "5")
	if code != 0 {
		t.Fatalf("history exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "exec-1") || !strings.Contains(stdout, "select a, b from t") {
		t.Fatalf("history output = %q", stdout)
	}
}

func TestRunVersion(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("version")
	if code != 0 || stdout != "athenaq dev\n" {
		t.Fatalf("version = %d %q", code, stdout)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("nope")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "athenaq --help") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t)
	h.env["ATHENAQ_POLL_INTERVAL"] = "soon"
	if code, _, _ := h.run("query", "select 1"); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunHistoryMigrateRequiresDSN(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("history", "migrate")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "ATHENAQ_HISTORY_DSN") {
		t.Fatalf("stderr = %q", stderr)
	}
}
