package collect

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// RecordStats are the counts produced by Recorder.Record.
type RecordStats struct {
	// Read is the number of rows pulled from the cursor.
	Read int64
	// Persisted is the number of rows written in successful flushes.
	Persisted int64
	// Skipped is the number of rows with an endpoint that did not resolve.
	Skipped int64
	// Flushes is the number of successful batch writes.
	Flushes int
	// Affected is the sum of the new-or-changed counts reported by the
	// store. It is lower than Persisted on a re-run.
	Affected int64
}

// RecorderOption is a functional option for NewRecorder.
type RecorderOption func(r *Recorder)

// OptRecBatchSize sets the number of resolved rows written per flush.
func OptRecBatchSize(n int) RecorderOption {
	return func(r *Recorder) {
		r.batchSize = n
	}
}

// OptRecKind sets the kind of the edges produced.
func OptRecKind(kind EdgeKind) RecorderOption {
	return func(r *Recorder) {
		r.kind = kind
	}
}

// OptRecRetries sets how many times a failed flush is retried and the
// initial backoff between attempts. Backoff doubles on each attempt.
func OptRecRetries(n int, backoff time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.retries = n
		r.backoff = backoff
	}
}

// OptRecFlushHook registers a function called with every batch after it has
// been written successfully. The slice must not be retained.
func OptRecFlushHook(fn func(batch []Edge)) RecorderOption {
	return func(r *Recorder) {
		r.onFlush = fn
	}
}

// OptRecLogger sets the logger.
func OptRecLogger(l Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = l
	}
}

// OptRecStatter sets the statter.
func OptRecStatter(s Statter) RecorderOption {
	return func(r *Recorder) {
		r.stats = s
	}
}

// Recorder turns a stream of raw rows into edges and writes them to an
// EdgeStore in fixed-size batches. A Recorder is a single writer: it does not
// pull the next row until the previous flush has returned, so it never holds
// more than one batch of edges. Recorders may be reused but not shared
// between goroutines.
type Recorder struct {
	resolver  Resolver
	store     EdgeStore
	kind      EdgeKind
	batchSize int
	retries   int
	backoff   time.Duration
	onFlush   func(batch []Edge)

	log   Logger
	stats Statter

	batch []Edge
}

// NewRecorder returns a Recorder resolving names with resolver and writing to
// store.
func NewRecorder(resolver Resolver, store EdgeStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		resolver:  resolver,
		store:     store,
		kind:      DependsOn,
		batchSize: 2000,
		retries:   3,
		backoff:   500 * time.Millisecond,
		log:       NopLogger{},
		stats:     NopStatter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.batchSize < 1 {
		r.batchSize = 1
	}
	r.batch = make([]Edge, 0, r.batchSize)
	return r
}

// Record drains cur into the store. Unresolvable rows are skipped and
// counted; they never fail the run. Record returns early with the first
// fatal error: a cursor error or a flush which failed after all retries.
//
// If ctx is cancelled while a batch is being written, the write is allowed
// to finish; Record then returns context.Canceled. Rows accumulated since the
// last flush are dropped, which is harmless because a re-run upserts them.
func (r *Recorder) Record(ctx context.Context, cur Cursor) (stats RecordStats, err error) {
	r.batch = r.batch[:0]
	defer func() {
		r.stats.Count("recorder.rows.read", stats.Read, 1)
		r.stats.Count("recorder.rows.persisted", stats.Persisted, 1)
		r.stats.Count("recorder.rows.skipped", stats.Skipped, 1)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		row, err := cur.Next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return stats, errors.Wrapf(err, "reading row %d", stats.Read)
		}
		stats.Read++

		from, ok := r.resolver.Resolve(row.From)
		if !ok {
			stats.Skipped++
			r.log.Debugf("skipping row %d: unknown entity '%s' (%+v)", stats.Read, row.From, row)
			continue
		}
		to, ok := r.resolver.Resolve(row.To)
		if !ok {
			stats.Skipped++
			r.log.Debugf("skipping row %d: unknown entity '%s' (%+v)", stats.Read, row.To, row)
			continue
		}
		r.batch = append(r.batch, Edge{FromID: from.ID, ToID: to.ID, Kind: r.kind, Depth: row.Depth})

		if len(r.batch) >= r.batchSize {
			if err := r.flush(ctx, &stats); err != nil {
				return stats, err
			}
		}
	}

	if len(r.batch) > 0 {
		if err := r.flush(ctx, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// flush writes the current batch, retrying transient failures. The write
// itself runs on a context which ignores cancellation so that a batch is
// never abandoned half way; cancellation is still honored between attempts.
func (r *Recorder) flush(ctx context.Context, stats *RecordStats) error {
	start := time.Now()
	var affected int
	attempt := 0
	err := newRetrier(r.retries, r.backoff).RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		var err error
		affected, err = r.store.UpsertEdges(context.WithoutCancel(ctx), r.batch)
		if err != nil {
			r.log.Printf("flushing batch of %d edges (attempt %d): %v", len(r.batch), attempt, err)
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "flushing batch %d after %d attempts", stats.Flushes+1, attempt)
	}

	stats.Flushes++
	stats.Persisted += int64(len(r.batch))
	stats.Affected += int64(affected)
	r.stats.Timing("recorder.flush", time.Since(start), 1)
	r.log.Debugf("flushed batch %d: %d edges, %d new or changed", stats.Flushes, len(r.batch), affected)
	if r.onFlush != nil {
		r.onFlush(r.batch)
	}
	r.batch = r.batch[:0]
	return nil
}
