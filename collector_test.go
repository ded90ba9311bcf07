package collect_test

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/mock"
	"github.com/opensource-observer/collect/test"
	"github.com/pkg/errors"
)

func newTestCollector(store *mock.Store, wh *mock.Warehouse, cfg collect.GraphConfig) *collect.GraphCollector {
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return collect.NewGraphCollector(cfg, store, store, newTestMaterializer(wh))
}

func TestCollectDependents(t *testing.T) {
	store := mock.NewStore(test.Packages("A", "B", "C")...)
	wh := mock.NewWarehouse(
		collect.Row{From: "B", To: "A", Depth: 1},
		collect.Row{From: "C", To: "A", Depth: 2},
		collect.Row{From: "X", To: "A", Depth: 1},
	)
	stats := &mock.RecordingStatter{}
	c := newTestCollector(store, wh, collect.GraphConfig{})
	c.Stats = stats

	resp := c.Collect(context.Background())
	test.ErrNil(t, resp.Err, "Collect")
	test.MustBe(t, "dependents", c.Name())
	test.MustBe(t, collect.StatusSuccess, resp.Status)
	test.MustBe(t, collect.PhaseDone, resp.Phase)
	test.MustBe(t, int64(3), resp.RowsRead)
	test.MustBe(t, int64(2), resp.RowsPersisted)
	test.MustBe(t, int64(1), resp.RowsSkipped)
	test.MustBe(t, false, resp.Cached)
	test.MustBe(t, []string{"A", "B", "C"}, wh.Submitted[0].Inputs)
	test.MustBe(t, int64(1), stats.Get("collect.runs.success"))
	test.MustBe(t, int64(2), stats.Get("collect.rows.persisted"))
	test.MustBe(t, []string{"collector:dependents"}, stats.Tags["collect.rows.persisted"])
	test.MustBe(t, int64(1), stats.Get("recorder.rows.skipped"))

	// second run reuses the artifact and changes nothing
	resp = c.Collect(context.Background())
	test.ErrNil(t, resp.Err, "second Collect")
	test.MustBe(t, true, resp.Cached)
	test.MustBe(t, 1, len(wh.Submitted))
	n, _ := store.CountEdges(context.Background())
	test.MustBe(t, 2, n)
}

func TestCollectArtifactEvicted(t *testing.T) {
	store := mock.NewStore(test.Packages("A", "B")...)
	wh := mock.NewWarehouse(collect.Row{From: "B", To: "A", Depth: 1})
	c := newTestCollector(store, wh, collect.GraphConfig{})

	resp := c.Collect(context.Background())
	test.ErrNil(t, resp.Err, "first Collect")
	test.MustBe(t, 1, len(wh.Submitted))

	wh.Delete(resp.Artifact)
	resp = c.Collect(context.Background())
	test.ErrNil(t, resp.Err, "Collect after eviction")
	test.MustBe(t, collect.StatusSuccess, resp.Status)
	test.MustBe(t, false, resp.Cached)
	test.MustBe(t, int64(1), resp.RowsRead)
	test.MustBe(t, 2, len(wh.Submitted))

	resp = c.Collect(context.Background())
	test.ErrNil(t, resp.Err, "third Collect")
	test.MustBe(t, true, resp.Cached)
	test.MustBe(t, 2, len(wh.Submitted))
}

func TestCollectEmptyUniverse(t *testing.T) {
	wh := mock.NewWarehouse()
	c := newTestCollector(mock.NewStore(), wh, collect.GraphConfig{})
	resp := c.Collect(context.Background())
	test.MustBe(t, collect.StatusSuccess, resp.Status)
	test.MustBe(t, collect.PhaseDone, resp.Phase)
	test.MustBe(t, 0, len(wh.Submitted))
}

func TestCollectJobFailure(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.FailJobs = "syntax error"
	c := newTestCollector(mock.NewStore(test.Packages("A")...), wh, collect.GraphConfig{})
	resp := c.Collect(context.Background())
	test.MustBe(t, collect.StatusFailure, resp.Status)
	test.MustBe(t, collect.PhaseFailed, resp.Phase)
	var perr *collect.PhaseError
	if !errors.As(resp.Err, &perr) {
		t.Fatalf("expected a PhaseError, got %v", resp.Err)
	}
	test.MustBe(t, collect.PhaseEnsuringMaterialization, perr.Phase)
	var jerr *collect.JobError
	if !errors.As(resp.Err, &jerr) {
		t.Fatalf("expected a JobError, got %v", resp.Err)
	}
}

func TestCollectFlushFailure(t *testing.T) {
	store := mock.NewStore(test.Packages("A", "B")...)
	store.FailNext = 10
	wh := mock.NewWarehouse(collect.Row{From: "B", To: "A", Depth: 1})
	c := newTestCollector(store, wh, collect.GraphConfig{FlushRetries: 1})
	resp := c.Collect(context.Background())
	test.MustBe(t, collect.StatusFailure, resp.Status)
	var perr *collect.PhaseError
	if !errors.As(resp.Err, &perr) {
		t.Fatalf("expected a PhaseError, got %v", resp.Err)
	}
	test.MustBe(t, collect.PhaseStreaming, perr.Phase)
	test.MustBe(t, 2, store.Calls)
	test.MustBe(t, int64(1), resp.RowsRead)
	test.MustBe(t, int64(0), resp.RowsPersisted)
}

func TestCollectCancelled(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.PollsToFinish = 1 << 30
	c := newTestCollector(mock.NewStore(test.Packages("A")...), wh, collect.GraphConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	resp := c.Collect(ctx)
	test.MustBe(t, collect.StatusCancelled, resp.Status)
	test.MustBe(t, collect.PhaseEnsuringMaterialization, resp.Phase)
	test.MustBe(t, []string{"job-1"}, wh.Cancelled)
}

func TestPhaseString(t *testing.T) {
	test.MustBe(t, "ensuring materialization", collect.PhaseEnsuringMaterialization.String())
	test.MustBe(t, "phase(42)", collect.Phase(42).String())
}
