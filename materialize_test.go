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

func newTestMaterializer(wh collect.Warehouse, opts ...collect.MaterializerOption) *collect.Materializer {
	opts = append([]collect.MaterializerOption{
		collect.OptMatPollInterval(time.Millisecond),
		collect.OptMatPollRetries(2, time.Millisecond),
	}, opts...)
	return collect.NewMaterializer(wh, opts...)
}

func TestEnsureMaterializedSubmitsOnce(t *testing.T) {
	wh := mock.NewWarehouse(collect.Row{From: "b", To: "a", Depth: 1})
	wh.PollsToFinish = 2
	stats := &mock.RecordingStatter{}
	m := newTestMaterializer(wh, collect.OptMatStatter(stats), collect.OptMatFilter("system", "NPM"))
	ents := test.Packages("a", "b")

	res, err := m.EnsureMaterialized(context.Background(), ents)
	test.ErrNil(t, err, "first EnsureMaterialized")
	test.MustBe(t, false, res.Cached)
	test.MustBe(t, int64(1), res.Rows)
	test.MustBe(t, "job-1", res.JobID)
	test.MustBe(t, 1, len(wh.Submitted))
	q := wh.Submitted[0]
	test.MustBe(t, res.Name, q.Destination)
	test.MustBe(t, []string{"a", "b"}, q.Inputs)
	test.MustBe(t, 5, q.MaxDepth)
	test.MustBe(t, map[string]string{"system": "NPM"}, q.Filters)

	// same universe in another order
	res2, err := m.EnsureMaterialized(context.Background(), []collect.Entity{ents[1], ents[0]})
	test.ErrNil(t, err, "second EnsureMaterialized")
	test.MustBe(t, true, res2.Cached)
	test.MustBe(t, res.Name, res2.Name)
	test.MustBe(t, 1, len(wh.Submitted))
	test.MustBe(t, int64(1), stats.Get("materialize.hit"))
	test.MustBe(t, int64(1), stats.Get("materialize.miss"))
}

func TestEnsureMaterializedExistingArtifact(t *testing.T) {
	wh := mock.NewWarehouse()
	ents := test.Packages("a")
	name := collect.ArtifactName("deps", collect.NewFingerprint(ents))
	wh.Put(name, nil)

	m := newTestMaterializer(wh, collect.OptMatPrefix("deps"))
	res, err := m.EnsureMaterialized(context.Background(), ents)
	test.ErrNil(t, err, "EnsureMaterialized")
	test.MustBe(t, true, res.Cached)
	test.MustBe(t, int64(-1), res.Rows)
	test.MustBe(t, 0, len(wh.Submitted))
}

func TestEnsureMaterializedNewEntityRecomputes(t *testing.T) {
	wh := mock.NewWarehouse()
	m := newTestMaterializer(wh)
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a", "b"))
	test.ErrNil(t, err, "first")
	_, err = m.EnsureMaterialized(context.Background(), test.Packages("a", "b", "c"))
	test.ErrNil(t, err, "second")
	test.MustBe(t, 2, len(wh.Submitted))
}

func TestEnsureMaterializedJobFailure(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.FailJobs = "quota exceeded"
	m := newTestMaterializer(wh)
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a"))
	var jerr *collect.JobError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected a JobError, got %v", err)
	}
	test.MustBe(t, collect.JobFailed, jerr.State)
	test.MustBe(t, "quota exceeded", jerr.Detail)

	// a failed job leaves nothing behind, so the next run submits again
	wh.FailJobs = ""
	_, err = m.EnsureMaterialized(context.Background(), test.Packages("a"))
	test.ErrNil(t, err, "retry run")
	test.MustBe(t, 2, len(wh.Submitted))
}

func TestEnsureMaterializedRetriesStatus(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.StatusErrs = 2
	m := newTestMaterializer(wh)
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a"))
	test.ErrNil(t, err, "EnsureMaterialized")
}

func TestEnsureMaterializedStatusUnavailable(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.StatusErrs = 10
	m := newTestMaterializer(wh)
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a"))
	test.ErrContains(t, err, "status unavailable")
	test.MustBe(t, []string{"job-1"}, wh.Cancelled)
}

func TestEnsureMaterializedTimeout(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.PollsToFinish = 1 << 30
	m := newTestMaterializer(wh, collect.OptMatJobTimeout(20*time.Millisecond))
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	test.MustBe(t, []string{"job-1"}, wh.Cancelled)
}

func TestEnsureMaterializedExistsError(t *testing.T) {
	wh := mock.NewWarehouse()
	wh.ExistsErr = errors.New("unreachable")
	m := newTestMaterializer(wh)
	_, err := m.EnsureMaterialized(context.Background(), test.Packages("a"))
	test.ErrContains(t, err, "unreachable")
	test.MustBe(t, 0, len(wh.Submitted))
}
