package execution

import (
	"context"
	"time"
)

type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether polling stops at s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

type StatementType string

const (
	StatementDDL     StatementType = "DDL"
	StatementDML     StatementType = "DML"
	StatementUtility StatementType = "UTILITY"
)

// Record is the remote service's status object for one submitted query.
type Record struct {
	ID                string        `json:"QueryExecutionId"`
	Query             string        `json:"Query,omitempty"`
	Database          string        `json:"Database,omitempty"`
	Workgroup         string        `json:"WorkGroup,omitempty"`
	State             State         `json:"State"`
	StateChangeReason string        `json:"StateChangeReason,omitempty"`
	OutputLocation    string        `json:"OutputLocation,omitempty"`
	StatementType     StatementType `json:"StatementType,omitempty"`
	SubmittedAt       *time.Time    `json:"SubmissionDateTime,omitempty"`
	CompletedAt       *time.Time    `json:"CompletionDateTime,omitempty"`
	DataScannedBytes  int64         `json:"DataScannedInBytes,omitempty"`
	EngineExecutionMs int64         `json:"EngineExecutionTimeInMillis,omitempty"`
}

type SubmitInput struct {
	Query          string
	Database       string
	Workgroup      string
	OutputLocation string
}

// Service is an asynchronous job runner for SQL text. Implementations are
// safe for sequential reuse; concurrent use needs external serialization
// unless the implementation says otherwise.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (string, error)
	Status(ctx context.Context, executionID string) (Record, error)
	Stop(ctx context.Context, executionID string) (string, error)
}
