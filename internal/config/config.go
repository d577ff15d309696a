package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendAthena = "athena"
	BackendLocal  = "local"

	DriverAWS   = "aws"
	DriverMinio = "minio"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	AWS           AWSConfig
	Query         QueryConfig
	Cache         CacheConfig
	ObjectStore   ObjectStoreConfig
	Local         LocalConfig
	History       HistoryConfig
	Output        OutputConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type AWSConfig struct {
	Profile string
	Region  string
}

type QueryConfig struct {
	Backend        string
	Database       string
	Workgroup      string
	OutputLocation string
	PollInterval   time.Duration
	MaxPolls       int
	Timeout        time.Duration
	StopTimeout    time.Duration
}

type CacheConfig struct {
	Enabled bool
	Dir     string
}

type ObjectStoreConfig struct {
	Driver           string
	Endpoint         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	UsePathStyle     bool
	AutoCreateBucket bool
}

type LocalConfig struct {
	DuckDBPath string
}

type HistoryConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type OutputConfig struct {
	MaxRows int
	NoColor bool
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsAddr string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return LoadWithFile(serviceName, strings.TrimSpace(os.Getenv("ATHENAQ_CONFIG_FILE")), os.LookupEnv)
}

// LoadWithFile layers the TOML file at path (if any) beneath lookup, so
// environment values win over file values.
func LoadWithFile(serviceName, path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	if path != "" {
		fileLookup, err := FileLookup(path)
		if err != nil {
			return Config{}, err
		}
		lookup = Chain(lookup, fileLookup)
	}
	return Load(serviceName, lookup)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ATHENAQ_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ATHENAQ_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "ATHENAQ_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ATHENAQ_AWS_PROFILE", &cfg.AWS.Profile) },
		func() error { return applyString(lookup, "ATHENAQ_AWS_REGION", &cfg.AWS.Region) },
		func() error { return applyString(lookup, "ATHENAQ_BACKEND", &cfg.Query.Backend) },
		func() error { return applyString(lookup, "ATHENAQ_DATABASE", &cfg.Query.Database) },
		func() error { return applyString(lookup, "ATHENAQ_WORKGROUP", &cfg.Query.Workgroup) },
		func() error { return applyString(lookup, "ATHENAQ_OUTPUT_LOCATION", &cfg.Query.OutputLocation) },
		func() error { return applyDuration(lookup, "ATHENAQ_POLL_INTERVAL", &cfg.Query.PollInterval) },
		func() error { return applyInt(lookup, "ATHENAQ_MAX_POLLS", &cfg.Query.MaxPolls) },
		func() error { return applyDuration(lookup, "ATHENAQ_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyDuration(lookup, "ATHENAQ_STOP_TIMEOUT", &cfg.Query.StopTimeout) },
		func() error { return applyBool(lookup, "ATHENAQ_CACHE_ENABLED", &cfg.Cache.Enabled) },
		func() error { return applyString(lookup, "ATHENAQ_CACHE_DIR", &cfg.Cache.Dir) },
		func() error { return applyString(lookup, "ATHENAQ_OBJECTSTORE_DRIVER", &cfg.ObjectStore.Driver) },
		func() error { return applyString(lookup, "ATHENAQ_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ATHENAQ_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ATHENAQ_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ATHENAQ_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ATHENAQ_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyBool(lookup, "ATHENAQ_OBJECTSTORE_PATH_STYLE", &cfg.ObjectStore.UsePathStyle) },
		func() error {
			return applyBool(lookup, "ATHENAQ_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "ATHENAQ_LOCAL_DUCKDB_PATH", &cfg.Local.DuckDBPath) },
		func() error { return applyString(lookup, "ATHENAQ_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "ATHENAQ_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "ATHENAQ_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ATHENAQ_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "ATHENAQ_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},
		func() error { return applyInt(lookup, "ATHENAQ_OUTPUT_MAX_ROWS", &cfg.Output.MaxRows) },
		func() error { return applyBool(lookup, "ATHENAQ_NO_COLOR", &cfg.Output.NoColor) },
		func() error { return applyBool(lookup, "ATHENAQ_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ATHENAQ_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "ATHENAQ_METRICS_ADDR", &cfg.Observability.MetricsAddr) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch cfg.Query.Backend {
	case BackendAthena, BackendLocal:
	default:
		return fmt.Errorf("invalid ATHENAQ_BACKEND: %q", cfg.Query.Backend)
	}
	switch cfg.ObjectStore.Driver {
	case DriverAWS:
	case DriverMinio:
		if cfg.ObjectStore.Endpoint == "" {
			return fmt.Errorf("object store endpoint is required for the %s driver", DriverMinio)
		}
	default:
		return fmt.Errorf("invalid ATHENAQ_OBJECTSTORE_DRIVER: %q", cfg.ObjectStore.Driver)
	}
	if cfg.Query.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if cfg.Query.MaxPolls < 0 {
		return fmt.Errorf("max polls must be >= 0")
	}
	if cfg.Query.Timeout < 0 {
		return fmt.Errorf("query timeout must be >= 0")
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		return fmt.Errorf("cache dir is required when the cache is enabled")
	}
	if cfg.Query.Backend == BackendLocal && cfg.Query.OutputLocation == "" {
		return fmt.Errorf("output location is required for the %s backend", BackendLocal)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "athenaq"},
		AWS: AWSConfig{
			Region: "us-west-2",
		},
		Query: QueryConfig{
			Backend:      BackendAthena,
			PollInterval: 2 * time.Second,
			MaxPolls:     0,
			Timeout:      0,
			StopTimeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".cache",
		},
		ObjectStore: ObjectStoreConfig{
			Driver:           DriverAWS,
			Region:           "us-west-2",
			UseSSL:           true,
			AutoCreateBucket: false,
		},
		History: HistoryConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Output: OutputConfig{
			MaxRows: 10000,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Query.Backend = BackendLocal
		cfg.Query.OutputLocation = "s3://athenaq-local/results/"
		cfg.Query.PollInterval = 100 * time.Millisecond
		cfg.ObjectStore.Driver = DriverMinio
		cfg.ObjectStore.Endpoint = "localhost:9000"
		cfg.ObjectStore.Region = "us-east-1"
		cfg.ObjectStore.AccessKeyID = "minio"
		cfg.ObjectStore.SecretAccessKey = "miniostorage"
		cfg.ObjectStore.UseSSL = false
		cfg.ObjectStore.AutoCreateBucket = true
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Observability.LogJSON = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
