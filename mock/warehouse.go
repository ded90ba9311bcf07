package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// Warehouse is an in-memory collect.Warehouse. Submitted jobs write Rows to
// the destination artifact once they have been polled PollsToFinish times.
type Warehouse struct {
	mu        sync.Mutex
	artifacts map[string][]collect.Row

	// Rows is what every job writes to its destination.
	Rows []collect.Row
	// PollsToFinish is the number of Status calls a job stays running for.
	PollsToFinish int
	// FailJobs makes every job finish in the failed state with this detail.
	FailJobs string
	// ExistsErr is returned by Exists when set.
	ExistsErr error
	// StatusErrs is the number of Status calls that fail before succeeding.
	StatusErrs int

	// Submitted records every query submitted.
	Submitted []collect.Query
	// Cancelled records the ids of cancelled jobs.
	Cancelled []string
}

// NewWarehouse returns a Warehouse whose jobs produce rows.
func NewWarehouse(rows ...collect.Row) *Warehouse {
	return &Warehouse{
		artifacts: make(map[string][]collect.Row),
		Rows:      rows,
	}
}

// Put stores an artifact directly, as if a previous job had produced it.
func (w *Warehouse) Put(name string, rows []collect.Row) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.artifacts[name] = rows
}

// Delete removes an artifact, as a retention policy would.
func (w *Warehouse) Delete(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.artifacts, name)
}

// Exists implements collect.Warehouse.
func (w *Warehouse) Exists(ctx context.Context, name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ExistsErr != nil {
		return false, w.ExistsErr
	}
	_, ok := w.artifacts[name]
	return ok, nil
}

// Submit implements collect.Warehouse.
func (w *Warehouse) Submit(ctx context.Context, q collect.Query) (collect.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Submitted = append(w.Submitted, q)
	return &job{w: w, id: fmt.Sprintf("job-%d", len(w.Submitted)), q: q}, nil
}

// Open implements collect.Warehouse.
func (w *Warehouse) Open(ctx context.Context, name string) (collect.Cursor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.artifacts[name]
	if !ok {
		return nil, errors.Wrapf(collect.ErrArtifactNotFound, "%s", name)
	}
	return collect.NewSliceCursor(rows), nil
}

type job struct {
	w     *Warehouse
	id    string
	q     collect.Query
	polls int
	state collect.JobState
}

func (j *job) ID() string { return j.id }

func (j *job) Status(ctx context.Context) (collect.JobStatus, error) {
	j.w.mu.Lock()
	defer j.w.mu.Unlock()
	if j.w.StatusErrs > 0 {
		j.w.StatusErrs--
		return collect.JobStatus{}, errors.New("mock warehouse: status unavailable")
	}
	if j.state.Terminal() {
		return collect.JobStatus{State: j.state}, nil
	}
	j.polls++
	if j.polls <= j.w.PollsToFinish {
		return collect.JobStatus{State: collect.JobRunning}, nil
	}
	if j.w.FailJobs != "" {
		j.state = collect.JobFailed
		return collect.JobStatus{State: j.state, Error: j.w.FailJobs}, nil
	}
	j.state = collect.JobDone
	j.w.artifacts[j.q.Destination] = j.w.Rows
	return collect.JobStatus{State: j.state, Rows: int64(len(j.w.Rows))}, nil
}

func (j *job) Cancel(ctx context.Context) error {
	j.w.mu.Lock()
	defer j.w.mu.Unlock()
	j.w.Cancelled = append(j.w.Cancelled, j.id)
	if !j.state.Terminal() {
		j.state = collect.JobCancelled
	}
	return nil
}
