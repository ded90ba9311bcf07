package warehouse

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// ArtifactStore is the object storage holding the source dataset and
// materialized artifacts. Implementations are the file and s3 packages.
type ArtifactStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, name string, r io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// EngineOption is a functional option for NewEngine.
type EngineOption func(e *Engine)

// OptEngineDataset sets the name of the source dataset queries read.
func OptEngineDataset(name string) EngineOption {
	return func(e *Engine) {
		e.dataset = name
	}
}

// OptEngineBlockSize sets the number of records per Avro block written.
func OptEngineBlockSize(n int) EngineOption {
	return func(e *Engine) {
		e.blockSize = n
	}
}

// OptEngineMaxJobs sets how many jobs the Engine remembers for Job. Once
// there are more, the oldest finished jobs are forgotten.
func OptEngineMaxJobs(n int) EngineOption {
	return func(e *Engine) {
		e.maxJobs = n
	}
}

// OptEngineLogger sets the logger.
func OptEngineLogger(l collect.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// Engine is a collect.Warehouse which computes dependents artifacts by
// scanning an Avro dataset in an ArtifactStore. Jobs run in their own
// goroutine and outlive the context passed to Submit; use Job.Cancel to
// stop one.
type Engine struct {
	store     ArtifactStore
	dataset   string
	blockSize int
	maxJobs   int
	log       collect.Logger

	mu    sync.Mutex
	jobs  map[string]*job
	order []string // job ids, oldest first
}

// NewEngine returns an Engine over store.
func NewEngine(store ArtifactStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		dataset:   "dependents",
		blockSize: 1000,
		maxJobs:   100,
		log:       collect.NopLogger{},
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.blockSize < 1 {
		e.blockSize = 1
	}
	if e.maxJobs < 1 {
		e.maxJobs = 1
	}
	return e
}

// Exists implements collect.Warehouse.
func (e *Engine) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := e.store.Exists(ctx, artifactKey(name))
	return ok, errors.Wrapf(err, "checking %s", name)
}

// Open implements collect.Warehouse.
func (e *Engine) Open(ctx context.Context, name string) (collect.Cursor, error) {
	rc, err := e.store.Get(ctx, artifactKey(name))
	if err != nil {
		return nil, err
	}
	return NewCursor(rc)
}

// EnsureDataset returns an error if the source dataset has not been
// imported.
func (e *Engine) EnsureDataset(ctx context.Context) error {
	ok, err := e.store.Exists(ctx, artifactKey(e.dataset))
	if err != nil {
		return errors.Wrapf(err, "checking dataset %s", e.dataset)
	}
	if !ok {
		return collect.Permanent(errors.Errorf("dataset %s does not exist. please create it", e.dataset))
	}
	return nil
}

// Submit implements collect.Warehouse. The job keeps every dataset record
// matching the query's filters whose minimum depth is below MaxDepth and
// whose package and dependent are both among the inputs.
func (e *Engine) Submit(ctx context.Context, q collect.Query) (collect.Job, error) {
	if q.Destination == "" {
		return nil, errors.New("query has no destination")
	}
	if err := e.EnsureDataset(ctx); err != nil {
		return nil, err
	}
	jctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
		status: collect.JobStatus{State: collect.JobPending, UpdatedAt: time.Now()},
	}
	e.mu.Lock()
	e.jobs[j.id] = j
	e.order = append(e.order, j.id)
	e.pruneJobs()
	e.mu.Unlock()

	go e.run(jctx, j, q)
	return j, nil
}

// Job returns the job with the given id, or false if this Engine never ran
// it or has since forgotten it.
func (e *Engine) Job(id string) (collect.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	return j, ok
}

// pruneJobs forgets the oldest finished jobs while more than maxJobs are
// held. Running jobs are kept. e.mu must be held.
func (e *Engine) pruneJobs() {
	excess := len(e.order) - e.maxJobs
	if excess <= 0 {
		return
	}
	kept := e.order[:0]
	for _, id := range e.order {
		if excess > 0 && e.jobs[id].state().Terminal() {
			delete(e.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
}

func (e *Engine) run(ctx context.Context, j *job, q collect.Query) {
	defer close(j.done)
	defer j.cancel()
	j.setState(collect.JobRunning, "")
	e.log.Debugf("job %s: materializing %s over %d inputs", j.id, q.Destination, len(q.Inputs))

	pr, pw := io.Pipe()
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		pw.CloseWithError(e.scan(ctx, j, q, pw))
	}()
	err := e.store.Put(ctx, artifactKey(q.Destination), pr)
	pr.CloseWithError(err) // unblocks the scanner if Put gave up early
	<-scanned

	switch {
	case err == nil:
		j.setState(collect.JobDone, "")
	case ctx.Err() != nil:
		j.setState(collect.JobCancelled, "")
	default:
		j.setState(collect.JobFailed, err.Error())
	}
	e.log.Debugf("job %s: %s", j.id, j.state())
}

// scan streams the filtered dataset into w as a result artifact.
func (e *Engine) scan(ctx context.Context, j *job, q collect.Query, w io.Writer) error {
	inputs := make(map[string]struct{}, len(q.Inputs))
	for _, in := range q.Inputs {
		inputs[strings.ToLower(in)] = struct{}{}
	}

	rc, err := e.store.Get(ctx, artifactKey(e.dataset))
	if err != nil {
		return errors.Wrapf(err, "opening dataset %s", e.dataset)
	}
	defer rc.Close()
	src, err := goavro.NewOCFReader(rc)
	if err != nil {
		return errors.Wrapf(err, "reading dataset %s", e.dataset)
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           resultCodec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return errors.Wrap(err, "creating result writer")
	}

	block := make([]interface{}, 0, e.blockSize)
	for src.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		datum, err := src.Read()
		if err != nil {
			return errors.Wrap(err, "decoding dataset record")
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return errors.Wrapf(collect.ErrSchemaMismatch, "dataset record is a %T", datum)
		}
		keep, err := matches(rec, q, inputs)
		if err != nil {
			return err
		} else if !keep {
			continue
		}
		block = append(block, map[string]interface{}{
			FieldPackageName:  rec[FieldPackageName],
			FieldDependent:    rec[FieldDependent],
			FieldMinimumDepth: rec[FieldMinimumDepth],
		})
		if len(block) == cap(block) {
			if err := ocf.Append(block); err != nil {
				return errors.Wrap(err, "writing result block")
			}
			j.addRows(int64(len(block)))
			block = block[:0]
		}
	}
	if err := src.Err(); err != nil {
		return errors.Wrap(err, "scanning dataset")
	}
	if len(block) > 0 {
		if err := ocf.Append(block); err != nil {
			return errors.Wrap(err, "writing result block")
		}
		j.addRows(int64(len(block)))
	}
	return nil
}

func matches(rec map[string]interface{}, q collect.Query, inputs map[string]struct{}) (bool, error) {
	for k, v := range q.Filters {
		field, err := stringField(rec, k)
		if err != nil {
			return false, err
		}
		if k == FilterSnapshot {
			field = snapshotDay(field)
		}
		if !strings.EqualFold(field, v) {
			return false, nil
		}
	}
	depth, err := longField(rec, FieldMinimumDepth)
	if err != nil {
		return false, err
	}
	if q.MaxDepth > 0 && depth >= int64(q.MaxDepth) {
		return false, nil
	}
	pkg, err := stringField(rec, FieldPackageName)
	if err != nil {
		return false, err
	}
	dep, err := stringField(rec, FieldDependent)
	if err != nil {
		return false, err
	}
	if _, ok := inputs[strings.ToLower(pkg)]; !ok {
		return false, nil
	}
	_, ok := inputs[strings.ToLower(dep)]
	return ok, nil
}

// snapshotDay truncates a snapshot timestamp such as "2023-10-16 00:00:00 UTC"
// or "2023-10-16T00:00:00Z" to its day. Values which don't start with a
// YYYY-MM-DD date are returned unchanged.
func snapshotDay(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < len(dayLayout) {
		return s
	}
	if _, err := time.Parse(dayLayout, s[:len(dayLayout)]); err != nil {
		return s
	}
	return s[:len(dayLayout)]
}

type job struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status collect.JobStatus
}

func (j *job) ID() string { return j.id }

func (j *job) Status(ctx context.Context) (collect.JobStatus, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, nil
}

// Cancel stops the job and waits for it to finish. Cancelling a finished job
// does nothing.
func (j *job) Cancel(ctx context.Context) error {
	j.cancel()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *job) state() collect.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.State
}

func (j *job) setState(s collect.JobState, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.State = s
	j.status.Error = detail
	j.status.UpdatedAt = time.Now()
}

func (j *job) addRows(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Rows += n
	j.status.UpdatedAt = time.Now()
}
