package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"
)

// ErrSchemaMismatch is returned (wrapped) by cursors when an artifact's rows
// do not have the expected shape.
var ErrSchemaMismatch = errors.New("artifact schema mismatch")

// JobError reports a warehouse job which finished in a failed state. It is
// never retried.
type JobError struct {
	JobID  string
	State  JobState
	Detail string
}

func (e *JobError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("job %s %s", e.JobID, e.State)
	}
	return fmt.Sprintf("job %s %s: %s", e.JobID, e.State, e.Detail)
}

// PhaseError records which phase of a collection run failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Cause returns the underlying error so that errors.Cause sees through a
// PhaseError.
func (e *PhaseError) Cause() error { return e.Err }

// Unwrap supports errors.Is and errors.As.
func (e *PhaseError) Unwrap() error { return e.Err }

type permanent struct {
	error
}

func (p permanent) Cause() error  { return p.error }
func (p permanent) Unwrap() error { return p.error }

// Permanent marks err as not worth retrying. Stores use it for errors such as
// constraint violations which will fail the same way on every attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// isCancellation reports whether err is the result of the run's context
// being cancelled. Deadline expiry is treated as a failure, not a
// cancellation.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

type transientClassifier struct{}

// Classify retries everything except permanent errors, job failures and
// context errors.
func (transientClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	var jerr *JobError
	if IsPermanent(err) || errors.As(err, &jerr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retrier.Fail
	}
	return retrier.Retry
}

func newRetrier(retries int, backoff time.Duration) *retrier.Retrier {
	if retries < 0 {
		retries = 0
	}
	return retrier.New(retrier.ExponentialBackoff(retries, backoff), transientClassifier{})
}

// ErrArtifactNotFound is returned (wrapped) by object stores when a named
// artifact does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")
