package collect

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Result is a handle on a materialized artifact. It borrows the Warehouse
// which produced it; opening a Cursor does not copy the artifact.
type Result struct {
	Name        string
	Fingerprint Fingerprint
	// Cached is true if the artifact already existed and no job was run.
	Cached bool
	// Rows is the row count reported by the job which produced the
	// artifact, or -1 when the artifact was cached.
	Rows int64
	JobID string

	wh Warehouse
}

// Open returns a new Cursor over the artifact's rows.
func (r *Result) Open(ctx context.Context) (Cursor, error) {
	cur, err := r.wh.Open(ctx, r.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening artifact %s", r.Name)
	}
	return cur, nil
}

// MaterializerOption is a functional option for NewMaterializer.
type MaterializerOption func(m *Materializer)

// OptMatPrefix sets the prefix of artifact names. Changing the prefix is the
// way to force recomputation after the query itself changes.
func OptMatPrefix(prefix string) MaterializerOption {
	return func(m *Materializer) {
		m.prefix = prefix
	}
}

// OptMatMaxDepth sets the traversal depth bound passed to every query.
func OptMatMaxDepth(depth int) MaterializerOption {
	return func(m *Materializer) {
		m.maxDepth = depth
	}
}

// OptMatFilter adds a fixed filter passed to every query.
func OptMatFilter(key, value string) MaterializerOption {
	return func(m *Materializer) {
		m.filters[key] = value
	}
}

// OptMatPollInterval sets how often a running job's status is checked.
func OptMatPollInterval(d time.Duration) MaterializerOption {
	return func(m *Materializer) {
		m.pollInterval = d
	}
}

// OptMatJobTimeout bounds how long EnsureMaterialized waits for a job.
func OptMatJobTimeout(d time.Duration) MaterializerOption {
	return func(m *Materializer) {
		m.jobTimeout = d
	}
}

// OptMatPollRetries sets how many times a failed status poll is retried
// before the wait is abandoned.
func OptMatPollRetries(n int, backoff time.Duration) MaterializerOption {
	return func(m *Materializer) {
		m.pollRetries = n
		m.pollBackoff = backoff
	}
}

// OptMatLogger sets the logger.
func OptMatLogger(l Logger) MaterializerOption {
	return func(m *Materializer) {
		m.log = l
	}
}

// OptMatStatter sets the statter.
func OptMatStatter(s Statter) MaterializerOption {
	return func(m *Materializer) {
		m.stats = s
	}
}

// Materializer ensures that the warehouse holds a computed artifact for an
// entity universe, computing it at most once per distinct universe.
//
// The check-then-submit sequence is not atomic across processes: two
// concurrent runs over the same universe may both submit a job. That only
// wastes compute, since both jobs write the same rows and edges are upserted.
type Materializer struct {
	wh           Warehouse
	prefix       string
	maxDepth     int
	filters      map[string]string
	pollInterval time.Duration
	jobTimeout   time.Duration
	pollRetries  int
	pollBackoff  time.Duration

	// known holds names which have been seen to exist. A retention policy
	// elsewhere may delete them; callers which find one gone call Forget.
	known *lru.Cache[string, struct{}]

	log   Logger
	stats Statter
}

// NewMaterializer returns a Materializer backed by wh.
func NewMaterializer(wh Warehouse, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		wh:           wh,
		prefix:       "npm",
		maxDepth:     5,
		filters:      make(map[string]string),
		pollInterval: 2 * time.Second,
		jobTimeout:   30 * time.Minute,
		pollRetries:  3,
		pollBackoff:  500 * time.Millisecond,
		log:          NopLogger{},
		stats:        NopStatter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.known, _ = lru.New[string, struct{}](256) // only errors on non-positive size
	return m
}

// EnsureMaterialized returns a Result for the artifact computed over
// entities, submitting and awaiting a job if the artifact doesn't exist yet.
func (m *Materializer) EnsureMaterialized(ctx context.Context, entities []Entity) (*Result, error) {
	fp := NewFingerprint(entities)
	name := ArtifactName(m.prefix, fp)
	res := &Result{Name: name, Fingerprint: fp, Rows: -1, wh: m.wh}

	m.log.Debugf("checking for artifact %s", name)
	exists := m.known.Contains(name)
	if !exists {
		var err error
		exists, err = m.wh.Exists(ctx, name)
		if err != nil {
			return nil, errors.Wrapf(err, "checking for artifact %s", name)
		}
	}
	if exists {
		m.log.Debugf("artifact %s exists. no need to compute", name)
		m.known.Add(name, struct{}{})
		m.stats.Count("materialize.hit", 1, 1)
		res.Cached = true
		return res, nil
	}
	m.stats.Count("materialize.miss", 1, 1)

	q := Query{
		Destination: name,
		Inputs:      make([]string, len(entities)),
		MaxDepth:    m.maxDepth,
		Filters:     make(map[string]string, len(m.filters)),
	}
	for i, e := range entities {
		q.Inputs[i] = e.Name
	}
	for k, v := range m.filters {
		q.Filters[k] = v
	}

	start := time.Now()
	job, err := m.wh.Submit(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "submitting job for %s", name)
	}
	m.log.Printf("submitted job %s for artifact %s over %d inputs", job.ID(), name, len(q.Inputs))

	status, err := m.await(ctx, job)
	if err != nil {
		return nil, errors.Wrapf(err, "awaiting job %s", job.ID())
	}
	m.stats.Timing("materialize.job", time.Since(start), 1)
	m.log.Printf("job %s complete: %d rows in %v", job.ID(), status.Rows, time.Since(start))

	m.known.Add(name, struct{}{})
	res.Rows = status.Rows
	res.JobID = job.ID()
	return res, nil
}

// Forget drops name from the artifacts known to exist, so the next
// EnsureMaterialized asks the warehouse again.
func (m *Materializer) Forget(name string) {
	m.known.Remove(name)
}

// await polls job until it reaches a terminal state. Transient poll errors
// are retried; a job which fails or is cancelled yields a *JobError. If ctx
// is done or the job timeout passes first, the job is cancelled.
func (m *Materializer) await(ctx context.Context, job Job) (JobStatus, error) {
	if m.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.jobTimeout)
		defer cancel()
	}
	rtr := newRetrier(m.pollRetries, m.pollBackoff)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		var status JobStatus
		err := rtr.RunCtx(ctx, func(ctx context.Context) error {
			var err error
			status, err = job.Status(ctx)
			if err != nil {
				m.log.Debugf("polling job %s: %v", job.ID(), err)
			}
			return err
		})
		if err != nil {
			m.cancelJob(ctx, job)
			return status, errors.Wrap(err, "polling job status")
		}
		switch status.State {
		case JobDone:
			return status, nil
		case JobFailed, JobCancelled:
			return status, &JobError{JobID: job.ID(), State: status.State, Detail: status.Error}
		}

		select {
		case <-ctx.Done():
			m.cancelJob(ctx, job)
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Materializer) cancelJob(ctx context.Context, job Job) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := job.Cancel(cctx); err != nil {
		m.log.Printf("cancelling job %s: %v", job.ID(), err)
	}
}
