package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/athenaq/athenaq/internal/config"
)

func TestNewLoggerJSONCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileProd}
	cfg.Service.Name = "athenaq"
	cfg.Query.Backend = config.BackendAthena
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo

	NewLogger(cfg, &buf).Info("query submitted", slog.String("execution_id", "q-1"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{"service": "athenaq", "profile": "prod", "backend": "athena", "execution_id": "q-1"} {
		if got, _ := record[key].(string); got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := record["time"]; !ok {
		t.Fatal("JSON records should keep the timestamp")
	}
}

func TestNewLoggerTextDropsTimeAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{}
	cfg.Observability.LogLevel = slog.LevelWarn

	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("cache write failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "cache write failed") || strings.Contains(out, "time=") {
		t.Fatalf("text output = %q", out)
	}
}

func TestLoggerFromContextAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	LoggerFromContext(ContextWithRunID(context.Background(), "run-7"), base).Info("hello")
	if !strings.Contains(buf.String(), "run_id=run-7") {
		t.Fatalf("output = %q", buf.String())
	}

	buf.Reset()
	LoggerFromContext(context.Background(), base).Info("hello")
	if strings.Contains(buf.String(), "run_id") {
		t.Fatalf("output = %q", buf.String())
	}
}
