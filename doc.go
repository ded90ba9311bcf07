// Package collect pulls large external datasets into a local store. It
// contains the pieces shared by every periodic collector; concrete stores,
// object stores and the warehouse engine live in sub-packages.
//
// A collection run has four stages.
//
// 1. Registry
//
//    A Registry is built once per run from an EntityStore. It maps the
//    external names found in warehouse rows (e.g. npm package names) to the
//    internal Entity records, and lists the entities of a type in ascending id
//    order so that the same universe always produces the same query.
//
// 2. Materializer
//
//    The Materializer fingerprints the entity universe and derives an
//    artifact name from it. If the Warehouse already holds an artifact with
//    that name nothing is computed; otherwise a query job is submitted and
//    awaited. Either way the caller gets back a Result which can open a
//    Cursor over the artifact's rows. Artifacts are never modified once
//    written, so repeated runs over an unchanged universe are cheap.
//
// 3. Recorder
//
//    The Recorder pulls rows from a Cursor, resolves both endpoints of each
//    row through the Registry and accumulates the resulting Edges until the
//    batch is full, at which point the batch is upserted into an EdgeStore in
//    a single call. Rows which reference unknown entities are counted and
//    skipped. Because the Recorder only pulls the next row after a flush has
//    finished, it never holds more than one batch in memory.
//
// 4. Collector
//
//    A PeriodicCollector ties the above together and reports a terminal
//    CollectResponse. Collectors keep no state between runs; a scheduler
//    (cron, the CLI's --every flag, or RunAll) simply calls Collect again.
//
// Edges are written with upsert semantics keyed by (from, to, kind), so
// retrying a batch or re-running a collector converges rather than
// accumulating duplicates.
package collect
