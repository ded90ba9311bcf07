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

// Package csv imports entities from CSV files with an id, name and type
// column, in any order. Extra columns are ignored.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/dependents"
	"github.com/pkg/errors"
)

// Main holds the configuration of an entity import.
type Main struct {
	Store     string `help:"Entity store DSN: bolt://<file>, leveldb://<dir>, sqlite://<file> or postgres://..."`
	File      string `help:"CSV file to import. Empty or - reads stdin."`
	BatchSize int    `help:"Number of entities written to the store at once."`

	Stdin io.Reader      `flag:"-"`
	Log   collect.Logger `flag:"-"`
}

// NewMain returns a Main with the default configuration.
func NewMain() *Main {
	return &Main{
		BatchSize: 1000,
		Stdin:     os.Stdin,
		Log:       collect.NopLogger{},
	}
}

// Run imports m.File into m.Store.
func (m *Main) Run(ctx context.Context) error {
	start := time.Now()
	if m.Store == "" {
		return errors.New("configuration error: store is required")
	}
	in := m.Stdin
	if m.File != "" && m.File != "-" {
		f, err := os.Open(m.File)
		if err != nil {
			return errors.Wrap(err, "opening file")
		}
		defer f.Close()
		in = f
	}
	store, err := dependents.OpenStore(ctx, m.Store)
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer store.Close()

	num, err := ImportEntities(ctx, store, in, m.BatchSize)
	if err != nil {
		return errors.Wrapf(err, "importing after %d entities", num)
	}
	m.Log.Printf("Num: %d, Duration: %s", num, time.Since(start))
	return nil
}

type columns struct {
	id, name, typ int
	width         int
}

func processHeader(reader *csv.Reader) (columns, error) {
	header, err := reader.Read()
	if err != nil {
		return columns{}, errors.Wrap(err, "reading CSV header")
	}
	cols := columns{id: -1, name: -1, typ: -1, width: len(header)}
	seen := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return columns{}, errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := seen[h]; exists {
			return columns{}, errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		seen[h] = i
		switch h {
		case "id":
			cols.id = i
		case "name":
			cols.name = i
		case "type":
			cols.typ = i
		}
	}
	if cols.id < 0 || cols.name < 0 || cols.typ < 0 {
		return columns{}, errors.Errorf("header must contain id, name and type: %v", header)
	}
	return cols, nil
}

func (c columns) parse(row []string) (collect.Entity, error) {
	if len(row) < c.width {
		return collect.Entity{}, errors.Errorf("header/row len mismatch: %d vs %d", c.width, len(row))
	}
	id, err := strconv.ParseUint(strings.TrimSpace(row[c.id]), 10, 64)
	if err != nil {
		return collect.Entity{}, errors.Wrap(err, "parsing id")
	}
	typ, err := collect.ParseEntityType(row[c.typ])
	if err != nil {
		return collect.Entity{}, err
	}
	name := strings.TrimSpace(row[c.name])
	if name == "" {
		return collect.Entity{}, errors.Errorf("entity %d has no name", id)
	}
	return collect.Entity{ID: id, Name: name, Type: typ}, nil
}

// ImportEntities reads entities from r and writes them to w in batches of
// batchSize. It returns the number of entities written. Entities are
// written whole batches at a time, so on error the count is that of the
// batches which were written before it.
func ImportEntities(ctx context.Context, w collect.EntityWriter, r io.Reader, batchSize int) (n uint64, err error) {
	if batchSize < 1 {
		batchSize = 1
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	cols, err := processHeader(reader)
	if err != nil {
		return 0, errors.Wrap(err, "processing header")
	}

	batch := make([]collect.Entity, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.PutEntities(ctx, batch); err != nil {
			return errors.Wrap(err, "putting entities")
		}
		n += uint64(len(batch))
		batch = batch[:0]
		return nil
	}

	line := 1
	var row []string
	for row, err = reader.Read(); err == nil; row, err = reader.Read() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ent, err := cols.parse(row)
		if err != nil {
			return n, errors.Wrapf(err, "line %d", line)
		}
		batch = append(batch, ent)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err != io.EOF {
		return n, errors.Wrapf(err, "reading csv, line %d", line+1)
	}
	return n, flush()
}
