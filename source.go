package collect

import (
	"context"
	"io"
	"time"
)

// Cursor is a lazy, forward-only sequence of rows over a materialized
// artifact. Next returns io.EOF after the last row. A Cursor is not
// restartable; to read the rows again, open a new one. Cursors are not
// threadsafe.
type Cursor interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Query describes a warehouse compute job. Inputs is the set of external
// names bounding the job; MaxDepth and Filters are fixed per collector.
type Query struct {
	Destination string
	Inputs      []string
	MaxDepth    int
	Filters     map[string]string
}

// JobState is the lifecycle state of a warehouse job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobDone      JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether no further state changes will happen.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// JobStatus is a snapshot of a job. Rows is the number of rows written to the
// destination so far; Error carries the job's diagnostic when it failed.
type JobStatus struct {
	State     JobState
	Rows      int64
	Error     string
	UpdatedAt time.Time
}

// Job is a handle on a submitted warehouse query.
type Job interface {
	ID() string
	Status(ctx context.Context) (JobStatus, error)
	Cancel(ctx context.Context) error
}

// Warehouse is the remote compute service collectors read from. Artifacts
// are addressed by name and are immutable once a job has written them.
type Warehouse interface {
	Exists(ctx context.Context, name string) (bool, error)
	Submit(ctx context.Context, q Query) (Job, error)
	Open(ctx context.Context, name string) (Cursor, error)
}

// SliceCursor is a Cursor over an in-memory slice of rows. It is mostly
// useful in tests.
type SliceCursor struct {
	rows   []Row
	pos    int
	closed bool
}

// NewSliceCursor returns a Cursor which yields rows in order.
func NewSliceCursor(rows []Row) *SliceCursor {
	return &SliceCursor{rows: rows}
}

// Next implements Cursor.
func (s *SliceCursor) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if s.closed || s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	s.pos++
	return s.rows[s.pos-1], nil
}

// Close implements Cursor.
func (s *SliceCursor) Close() error {
	s.closed = true
	return nil
}
