package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("athenaq", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Query.Backend != BackendAthena {
		t.Fatalf("Query.Backend = %q", cfg.Query.Backend)
	}
	if cfg.Query.PollInterval != 2*time.Second {
		t.Fatalf("Query.PollInterval = %s", cfg.Query.PollInterval)
	}
	if cfg.Query.MaxPolls != 0 || cfg.Query.Timeout != 0 {
		t.Fatalf("poll bounds = %d/%s, want unlimited", cfg.Query.MaxPolls, cfg.Query.Timeout)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != ".cache" {
		t.Fatalf("Cache = %+v", cfg.Cache)
	}
	if cfg.AWS.Region != "us-west-2" {
		t.Fatalf("AWS.Region = %q", cfg.AWS.Region)
	}
	if cfg.ObjectStore.Driver != DriverAWS {
		t.Fatalf("ObjectStore.Driver = %q", cfg.ObjectStore.Driver)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Output.MaxRows != 10000 {
		t.Fatalf("Output.MaxRows = %d", cfg.Output.MaxRows)
	}
}

func TestLoadTestProfileUsesLocalBackend(t *testing.T) {
	cfg, err := Load("athenaq", mapLookup(map[string]string{"ATHENAQ_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Query.Backend != BackendLocal {
		t.Fatalf("Query.Backend = %q", cfg.Query.Backend)
	}
	if cfg.ObjectStore.Driver != DriverMinio || cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to false in test")
	}
	if !cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to true in test")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("athenaq", mapLookup(map[string]string{"ATHENAQ_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ATHENAQ_SERVICE_NAME":                   "athenaq-custom",
		"ATHENAQ_AWS_PROFILE":                    "analytics",
		"ATHENAQ_AWS_REGION":                     "eu-central-1",
		"ATHENAQ_DATABASE":                       "sales",
		"ATHENAQ_WORKGROUP":                      "adhoc",
		"ATHENAQ_OUTPUT_LOCATION":                "s3://results/athena/",
		"ATHENAQ_POLL_INTERVAL":                  "500ms",
		"ATHENAQ_MAX_POLLS":                      "30",
		"ATHENAQ_QUERY_TIMEOUT":                  "10m",
		"ATHENAQ_CACHE_ENABLED":                  "false",
		"ATHENAQ_CACHE_DIR":                      "/tmp/athenaq",
		"ATHENAQ_OBJECTSTORE_DRIVER":             "minio",
		"ATHENAQ_OBJECTSTORE_ENDPOINT":           "s3.example.com",
		"ATHENAQ_OBJECTSTORE_ACCESS_KEY":         "abc",
		"ATHENAQ_OBJECTSTORE_SECRET_KEY":         "def",
		"ATHENAQ_OBJECTSTORE_AUTO_CREATE_BUCKET": "true",
		"ATHENAQ_HISTORY_DSN":                    "postgres://example",
		"ATHENAQ_HISTORY_MAX_OPEN_CONNS":         "7",
		"ATHENAQ_OUTPUT_MAX_ROWS":                "50",
		"ATHENAQ_LOG_LEVEL":                      "error",
		"ATHENAQ_METRICS_ADDR":                   ":9464",
	})
	cfg, err := Load("athenaq", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "athenaq-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.AWS.Profile != "analytics" || cfg.AWS.Region != "eu-central-1" {
		t.Fatalf("AWS = %+v", cfg.AWS)
	}
	if cfg.Query.Database != "sales" || cfg.Query.Workgroup != "adhoc" {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if cfg.Query.OutputLocation != "s3://results/athena/" {
		t.Fatalf("Query.OutputLocation = %q", cfg.Query.OutputLocation)
	}
	if cfg.Query.PollInterval != 500*time.Millisecond {
		t.Fatalf("Query.PollInterval = %s", cfg.Query.PollInterval)
	}
	if cfg.Query.MaxPolls != 30 {
		t.Fatalf("Query.MaxPolls = %d", cfg.Query.MaxPolls)
	}
	if cfg.Query.Timeout != 10*time.Minute {
		t.Fatalf("Query.Timeout = %s", cfg.Query.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Fatal("Cache.Enabled = true, want false")
	}
	if cfg.Cache.Dir != "/tmp/athenaq" {
		t.Fatalf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.ObjectStore.Driver != DriverMinio || cfg.ObjectStore.Endpoint != "s3.example.com" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket = false, want true")
	}
	if cfg.History.DSN != "postgres://example" || cfg.History.MaxOpenConns != 7 {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.Output.MaxRows != 50 {
		t.Fatalf("Output.MaxRows = %d", cfg.Output.MaxRows)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.MetricsAddr != ":9464" {
		t.Fatalf("MetricsAddr = %q", cfg.Observability.MetricsAddr)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ATHENAQ_PROFILE": "oops"},
		{"ATHENAQ_POLL_INTERVAL": "NaN"},
		{"ATHENAQ_POLL_INTERVAL": "0s"},
		{"ATHENAQ_MAX_POLLS": "oops"},
		{"ATHENAQ_MAX_POLLS": "-1"},
		{"ATHENAQ_BACKEND": "presto"},
		{"ATHENAQ_OBJECTSTORE_DRIVER": "gcs"},
		{"ATHENAQ_OBJECTSTORE_DRIVER": "minio"},
		{"ATHENAQ_CACHE_ENABLED": "not-bool"},
		{"ATHENAQ_CACHE_DIR": ""},
		{"ATHENAQ_BACKEND": "local"},
		{"ATHENAQ_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("athenaq", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadWithFileLayersBeneathEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "athenaq.toml")
	content := `
database = "from_file"
workgroup = "primary"
poll_interval = "1s"
max_polls = 12

[cache]
enabled = false

[objectstore]
driver = "minio"
endpoint = "localhost:9000"
use_ssl = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadWithFile("athenaq", path, mapLookup(map[string]string{
		"ATHENAQ_DATABASE": "from_env",
	}))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Query.Database != "from_env" {
		t.Fatalf("Query.Database = %q, want env value", cfg.Query.Database)
	}
	if cfg.Query.Workgroup != "primary" {
		t.Fatalf("Query.Workgroup = %q", cfg.Query.Workgroup)
	}
	if cfg.Query.PollInterval != time.Second || cfg.Query.MaxPolls != 12 {
		t.Fatalf("poll config = %s/%d", cfg.Query.PollInterval, cfg.Query.MaxPolls)
	}
	if cfg.Cache.Enabled {
		t.Fatal("Cache.Enabled = true, want false from file")
	}
	if cfg.ObjectStore.Driver != DriverMinio || cfg.ObjectStore.Endpoint != "localhost:9000" || cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadWithFileRejectsMissingFile(t *testing.T) {
	_, err := LoadWithFile("athenaq", filepath.Join(t.TempDir(), "missing.toml"), mapLookup(nil))
	if err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestChainPrefersEarlierLookups(t *testing.T) {
	lookup := Chain(
		mapLookup(map[string]string{"A": "first"}),
		nil,
		mapLookup(map[string]string{"A": "second", "B": "only"}),
	)
	if value, _ := lookup("A"); value != "first" {
		t.Fatalf("A = %q", value)
	}
	if value, _ := lookup("B"); value != "only" {
		t.Fatalf("B = %q", value)
	}
	if _, ok := lookup("C"); ok {
		t.Fatal("C should be absent")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
