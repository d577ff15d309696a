// Package history records one entry per finished query so past runs can be
// listed without re-submitting them.
package history

import (
	"context"
	"time"
)

type Entry struct {
	ID             int64
	RunID          string
	ExecutionID    string
	Backend        string
	Database       string
	Query          string
	State          string
	Reason         string
	StatementType  string
	OutputLocation string
	Cached         bool
	Duration       time.Duration
	RecordedAt     time.Time
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
}

type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
