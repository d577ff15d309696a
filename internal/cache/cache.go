// Package cache stores parsed query results on the local filesystem,
// addressed by an MD5 digest of the database and query text. Entries are
// never updated or evicted, and writers are not synchronized.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/table"
)

const (
	metadataExt = ".json"
	blobExt     = ".parquet"
)

type Cache struct {
	dir string
}

type Entry struct {
	Key    string
	Digest string
	Record execution.Record
	Table  table.Table
}

type metadata struct {
	QueryExecution execution.Record `json:"query_execution"`
	SQL            string           `json:"sql"`
}

// New returns a cache rooted at dir. The directory is not created; Put fails
// until it exists.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) Dir() string {
	return c.dir
}

// Key is the composite cache key for a query against database.
func Key(database, query string) string {
	return "--" + database + "\n" + query
}

func Digest(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Put writes the metadata sidecar and then the table blob. A failure between
// the two writes leaves a sidecar without a blob, which Get treats as absent.
func (c *Cache) Put(key string, value table.Table, record execution.Record) error {
	digest := Digest(key)

	meta, err := json.MarshalIndent(metadata{QueryExecution: record, SQL: key}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}
	meta = append(meta, '\n')
	if err := os.WriteFile(c.path(digest, metadataExt), meta, 0o644); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}

	blob, err := table.MarshalParquet(value)
	if err != nil {
		return fmt.Errorf("encode cache table: %w", err)
	}
	if err := os.WriteFile(c.path(digest, blobExt), blob, 0o644); err != nil {
		return fmt.Errorf("write cache table: %w", err)
	}
	return nil
}

// Get returns the cached table for key. A missing entry is reported with
// found == false and a nil error.
func (c *Cache) Get(key string) (table.Table, bool, error) {
	data, err := os.ReadFile(c.path(Digest(key), blobExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return table.Table{}, false, nil
		}
		return table.Table{}, false, fmt.Errorf("read cache table: %w", err)
	}
	value, err := table.UnmarshalParquet(data)
	if err != nil {
		return table.Table{}, false, fmt.Errorf("decode cache table: %w", err)
	}
	return value, true, nil
}

// Lookup returns the table together with the execution record stored beside it.
func (c *Cache) Lookup(key string) (Entry, bool, error) {
	value, found, err := c.Get(key)
	if err != nil || !found {
		return Entry{}, found, err
	}

	digest := Digest(key)
	entry := Entry{Key: key, Digest: digest, Table: value}
	raw, err := os.ReadFile(c.path(digest, metadataExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entry, true, nil
		}
		return Entry{}, false, fmt.Errorf("read cache metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache metadata: %w", err)
	}
	entry.Record = meta.QueryExecution
	return entry, true, nil
}

func (c *Cache) path(digest, ext string) string {
	return filepath.Join(c.dir, digest+ext)
}
