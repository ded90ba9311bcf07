// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package dependents wires the dependents collector: NPM packages and the
// packages which depend on them, computed by the warehouse engine and
// recorded as depends-on edges.
package dependents

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/kafka"
	"github.com/opensource-observer/collect/pilosa"
	"github.com/opensource-observer/collect/statsd"
	"github.com/opensource-observer/collect/termstat"
	"github.com/opensource-observer/collect/warehouse"
	"github.com/pkg/errors"
)

// Main holds the configuration of the dependents collector.
type Main struct {
	BatchSize      int           `help:"Number of edges written to the store per flush."`
	FlushRetries   int           `help:"Number of times a failed flush is retried."`
	RetryBackoff   time.Duration `help:"Initial backoff between retries. Doubles on each attempt."`
	PollInterval   time.Duration `help:"How often a running warehouse job is polled."`
	JobTimeout     time.Duration `help:"How long to wait for a warehouse job before cancelling it."`
	MaxDepth       int           `help:"Only dependents found at a depth below this are collected."`
	System         string        `help:"Package system to collect for."`
	Snapshot       string        `help:"Snapshot day of the dependents dataset (YYYY-MM-DD)."`
	ArtifactPrefix string        `help:"Prefix of materialized artifact names. Changing it forces recomputation."`
	Store          string        `help:"Entity and edge store DSN: bolt://<file>, leveldb://<dir>, sqlite://<file> or postgres://..."`
	Artifacts      string        `help:"Object store URL holding the dataset and artifacts: file://<dir> or s3://<bucket>/<prefix>."`
	Dataset        string        `help:"Name of the source dependents dataset in the object store."`
	KafkaHosts     []string      `help:"Comma separated list of Kafka brokers. Edges are published when set."`
	KafkaTopic     string        `help:"Kafka topic edges are published to."`
	PilosaHosts    []string      `help:"Comma separated list of Pilosa host:port pairs. Edges are mirrored when set."`
	PilosaIndex    string        `help:"Pilosa index edges are mirrored to."`
	Statsd         string        `help:"host:port of a statsd agent. Empty means stats are printed to stderr when verbose."`
	Every          time.Duration `help:"Run again at this interval until interrupted. Zero runs once."`
	Verbose        bool          `help:"Enable verbose logging."`
	LogPath        string        `help:"Log file to write to. Empty means stderr."`

	Stderr io.Writer       `flag:"-"`
	Log    collect.Logger  `flag:"-"`
	Stats  collect.Statter `flag:"-"`

	closers []io.Closer
}

// NewMain returns a Main with the default configuration.
func NewMain() *Main {
	return &Main{
		BatchSize:      2000,
		FlushRetries:   3,
		RetryBackoff:   500 * time.Millisecond,
		PollInterval:   2 * time.Second,
		JobTimeout:     30 * time.Minute,
		MaxDepth:       5,
		System:         "NPM",
		Snapshot:       "2023-10-16",
		ArtifactPrefix: "npm",
		Dataset:        "dependents",
		KafkaTopic:     "oso-edges",
		PilosaIndex:    "oso",
		Stderr:         os.Stderr,
	}
}

func (m *Main) validate() error {
	if m.Store == "" {
		return errors.New("configuration error: store is required")
	}
	if m.Artifacts == "" {
		return errors.New("configuration error: artifacts is required")
	}
	if m.BatchSize < 1 {
		return errors.Errorf("configuration error: batch-size must be positive, got %d", m.BatchSize)
	}
	if m.FlushRetries < 0 {
		return errors.Errorf("configuration error: flush-retries must not be negative, got %d", m.FlushRetries)
	}
	if m.PollInterval <= 0 {
		return errors.Errorf("configuration error: poll-interval must be positive, got %v", m.PollInterval)
	}
	if m.MaxDepth < 1 {
		return errors.Errorf("configuration error: max-depth must be positive, got %d", m.MaxDepth)
	}
	if _, err := time.Parse("2006-01-02", m.Snapshot); err != nil {
		return errors.Wrap(err, "configuration error: parsing snapshot")
	}
	if len(m.KafkaHosts) > 0 && m.KafkaTopic == "" {
		return errors.New("configuration error: kafka-topic is required with kafka-hosts")
	}
	if len(m.PilosaHosts) > 0 && m.PilosaIndex == "" {
		return errors.New("configuration error: pilosa-index is required with pilosa-hosts")
	}
	return nil
}

func (m *Main) setupLogging() error {
	if m.Log != nil {
		return nil
	}
	out := m.Stderr
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		m.closers = append(m.closers, f)
		out = f
	}
	m.Log = collect.NewLogger(out, m.Verbose)
	return nil
}

func (m *Main) setupStats() error {
	if m.Stats != nil {
		return nil
	}
	switch {
	case m.Statsd != "":
		s, err := statsd.New(m.Statsd, "oso.")
		if err != nil {
			return errors.Wrap(err, "connecting to statsd")
		}
		m.closers = append(m.closers, s)
		m.Stats = s
	case m.Verbose:
		ts := termstat.NewCollector(m.Stderr, time.Second)
		m.closers = append(m.closers, ts)
		m.Stats = ts
	default:
		m.Stats = collect.NopStatter{}
	}
	return nil
}

// NewCollector validates the configuration, opens every store it names and
// returns the collector. Close releases what was opened.
func (m *Main) NewCollector(ctx context.Context) (*collect.GraphCollector, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Stderr == nil {
		m.Stderr = os.Stderr
	}
	if err := m.setupLogging(); err != nil {
		return nil, err
	}
	if err := m.setupStats(); err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, m.Store)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	m.closers = append(m.closers, store)

	artifacts, err := OpenArtifacts(m.Artifacts)
	if err != nil {
		return nil, errors.Wrap(err, "opening artifacts")
	}
	engine := warehouse.NewEngine(artifacts,
		warehouse.OptEngineDataset(m.Dataset),
		warehouse.OptEngineLogger(m.Log))
	if err := engine.EnsureDataset(ctx); err != nil {
		return nil, err
	}

	mat := collect.NewMaterializer(engine,
		collect.OptMatPrefix(m.ArtifactPrefix),
		collect.OptMatMaxDepth(m.MaxDepth),
		collect.OptMatFilter(warehouse.FilterSystem, m.System),
		collect.OptMatFilter(warehouse.FilterSnapshot, m.Snapshot),
		collect.OptMatPollInterval(m.PollInterval),
		collect.OptMatJobTimeout(m.JobTimeout),
		collect.OptMatPollRetries(m.FlushRetries, m.RetryBackoff),
		collect.OptMatLogger(m.Log),
		collect.OptMatStatter(m.Stats),
	)

	edges, err := m.edgeStore(store)
	if err != nil {
		return nil, err
	}

	c := collect.NewGraphCollector(collect.GraphConfig{
		Name:         "dependents",
		EntityType:   collect.NPMPackage,
		Kind:         collect.DependsOn,
		BatchSize:    m.BatchSize,
		FlushRetries: m.FlushRetries,
		RetryBackoff: m.RetryBackoff,
	}, store, edges, mat)
	c.Log = m.Log
	c.Stats = m.Stats
	return c, nil
}

// edgeStore puts the configured mirrors in front of store.
func (m *Main) edgeStore(store collect.EdgeStore) (collect.EdgeStore, error) {
	var mirrors []collect.EdgeStore
	if len(m.PilosaHosts) > 0 {
		ps, err := pilosa.NewEdgeStore(m.PilosaHosts, m.PilosaIndex, m.BatchSize)
		if err != nil {
			return nil, errors.Wrap(err, "setting up pilosa")
		}
		mirrors = append(mirrors, ps)
	}
	edges := collect.NewTeeEdgeStore(store, mirrors...)
	if len(m.KafkaHosts) > 0 {
		producer, err := kafka.NewProducer(m.KafkaHosts)
		if err != nil {
			return nil, errors.Wrap(err, "setting up kafka")
		}
		pub := kafka.NewPublisher(edges, producer, m.KafkaTopic)
		m.closers = append(m.closers, pub)
		edges = pub
	}
	return edges, nil
}

// Close releases everything opened by NewCollector, most recent first.
func (m *Main) Close() error {
	var first error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	return first
}

// Run collects once, or every m.Every until ctx is done. A single run
// returns the run's error; periodic runs only log failures and return when
// ctx is done.
func (m *Main) Run(ctx context.Context) (err error) {
	c, err := m.NewCollector(ctx)
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	if err != nil {
		return errors.Wrap(err, "setting up collector")
	}

	if m.Every > 0 {
		collect.Every(ctx, m.Every, c, func(resp collect.CollectResponse) {
			if resp.Status == collect.StatusFailure {
				m.Log.Printf("run failed, next in %v: %v", m.Every, resp.Err)
			}
		})
		return nil
	}
	resp := c.Collect(ctx)
	if resp.Status != collect.StatusSuccess {
		return resp.Err
	}
	return nil
}
