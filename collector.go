package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Phase is a state of a single collection run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoadingEntities
	PhaseEnsuringMaterialization
	PhaseStreaming
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{"idle", "loading entities", "ensuring materialization", "streaming", "done", "failed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) && p >= 0 {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status is the terminal outcome of a collection run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// CollectResponse summarizes a collection run. On failure Phase is
// PhaseFailed and Err is a *PhaseError naming the phase that failed; on
// cancellation Phase is the phase that was interrupted.
type CollectResponse struct {
	Collector     string
	Status        Status
	Phase         Phase
	RowsRead      int64
	RowsPersisted int64
	RowsSkipped   int64
	Flushes       int
	Artifact      string
	Cached        bool
	Duration      time.Duration
	Err           error
}

func (r CollectResponse) String() string {
	s := fmt.Sprintf("%s: %s read=%d persisted=%d skipped=%d flushes=%d artifact=%s cached=%v in %v",
		r.Collector, r.Status, r.RowsRead, r.RowsPersisted, r.RowsSkipped, r.Flushes, r.Artifact, r.Cached, r.Duration)
	if r.Err != nil {
		s += fmt.Sprintf(" error=%v", r.Err)
	}
	return s
}

// PeriodicCollector is the surface exposed to schedulers. Collect runs one
// collection to completion and never panics on external failures; every
// outcome is reported in the response. Implementations hold no state between
// calls.
type PeriodicCollector interface {
	Name() string
	Collect(ctx context.Context) CollectResponse
}

// GraphConfig configures a GraphCollector.
type GraphConfig struct {
	// Name identifies the collector in logs and stats.
	Name string
	// EntityType bounds the entity universe of a run.
	EntityType EntityType
	// Kind is the kind of edge recorded.
	Kind EdgeKind
	// BatchSize is the number of edges per flush.
	BatchSize int
	// FlushRetries and RetryBackoff bound retries of failed flushes.
	FlushRetries int
	RetryBackoff time.Duration
}

// GraphCollector collects relationships between the entities of one type:
// it loads the universe, materializes the relationships among them in the
// warehouse and records them as edges.
type GraphCollector struct {
	cfg      GraphConfig
	entities EntityStore
	edges    EdgeStore
	mat      *Materializer

	Log   Logger
	Stats Statter
}

// NewGraphCollector returns a GraphCollector. Zero values in cfg are replaced
// by the defaults of the dependents collector.
func NewGraphCollector(cfg GraphConfig, entities EntityStore, edges EdgeStore, mat *Materializer) *GraphCollector {
	if cfg.Name == "" {
		cfg.Name = "dependents"
	}
	if cfg.EntityType == "" {
		cfg.EntityType = NPMPackage
	}
	if cfg.Kind == "" {
		cfg.Kind = DependsOn
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2000
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &GraphCollector{
		cfg:      cfg,
		entities: entities,
		edges:    edges,
		mat:      mat,
		Log:      NopLogger{},
		Stats:    NopStatter{},
	}
}

// Name implements PeriodicCollector.
func (c *GraphCollector) Name() string { return c.cfg.Name }

// Collect implements PeriodicCollector.
func (c *GraphCollector) Collect(ctx context.Context) (resp CollectResponse) {
	start := time.Now()
	resp = CollectResponse{Collector: c.cfg.Name, Phase: PhaseIdle}
	c.Log.Printf("collecting %s for all %s entities", c.cfg.Kind, c.cfg.EntityType)

	stats := WithTags(c.Stats, "collector:"+c.cfg.Name)

	defer func() {
		resp.Duration = time.Since(start)
		stats.Count("collect.runs."+string(resp.Status), 1, 1)
		stats.Count("collect.rows.read", resp.RowsRead, 1)
		stats.Count("collect.rows.persisted", resp.RowsPersisted, 1)
		stats.Count("collect.rows.skipped", resp.RowsSkipped, 1)
		stats.Timing("collect.duration", resp.Duration, 1)
		c.Log.Printf("%v", resp)
	}()

	fail := func(err error) CollectResponse {
		if isCancellation(err) {
			resp.Status = StatusCancelled
			resp.Err = err
			return resp
		}
		resp.Status = StatusFailure
		resp.Err = &PhaseError{Phase: resp.Phase, Err: err}
		resp.Phase = PhaseFailed
		return resp
	}

	resp.Phase = PhaseLoadingEntities
	reg, err := LoadRegistry(ctx, c.entities, c.cfg.EntityType)
	if err != nil {
		return fail(err)
	}
	universe := reg.AllOfType(c.cfg.EntityType)
	c.Log.Debugf("loaded %d %s entities", len(universe), c.cfg.EntityType)
	if len(universe) == 0 {
		c.Log.Printf("no %s entities to collect for", c.cfg.EntityType)
		resp.Phase = PhaseDone
		resp.Status = StatusSuccess
		return resp
	}

	resp.Phase = PhaseEnsuringMaterialization
	result, err := c.mat.EnsureMaterialized(ctx, universe)
	if err != nil {
		return fail(err)
	}
	resp.Artifact = result.Name
	resp.Cached = result.Cached

	resp.Phase = PhaseStreaming
	cur, err := result.Open(ctx)
	if errors.Is(err, ErrArtifactNotFound) && result.Cached {
		// evicted since it was last seen
		c.Log.Printf("artifact %s is gone, materializing again", result.Name)
		c.mat.Forget(result.Name)
		resp.Phase = PhaseEnsuringMaterialization
		result, err = c.mat.EnsureMaterialized(ctx, universe)
		if err != nil {
			return fail(err)
		}
		resp.Artifact = result.Name
		resp.Cached = result.Cached
		resp.Phase = PhaseStreaming
		cur, err = result.Open(ctx)
	}
	if err != nil {
		return fail(err)
	}
	rec := NewRecorder(reg, c.edges,
		OptRecKind(c.cfg.Kind),
		OptRecBatchSize(c.cfg.BatchSize),
		OptRecRetries(c.cfg.FlushRetries, c.cfg.RetryBackoff),
		OptRecLogger(c.Log),
		OptRecStatter(stats),
	)
	rs, err := rec.Record(ctx, cur)
	resp.RowsRead, resp.RowsPersisted, resp.RowsSkipped, resp.Flushes = rs.Read, rs.Persisted, rs.Skipped, rs.Flushes
	if cerr := cur.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "closing cursor")
	}
	if err != nil {
		return fail(err)
	}

	resp.Phase = PhaseDone
	resp.Status = StatusSuccess
	return resp
}
