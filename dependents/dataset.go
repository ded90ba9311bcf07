package dependents

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/warehouse"
	"github.com/pkg/errors"
)

// DatasetMain holds the configuration of a dependents dataset import: a CSV
// export with system, snapshot_at, package_name, dependent_name and
// minimum_depth columns converted to the dataset read by the warehouse.
type DatasetMain struct {
	Artifacts string `help:"Object store URL to write the dataset to: file://<dir> or s3://<bucket>/<prefix>."`
	Dataset   string `help:"Name of the dataset to write."`
	File      string `help:"CSV file to import. Empty or - reads stdin."`

	Stdin io.Reader      `flag:"-"`
	Log   collect.Logger `flag:"-"`
}

// NewDatasetMain returns a DatasetMain with the default configuration.
func NewDatasetMain() *DatasetMain {
	return &DatasetMain{
		Dataset: "dependents",
		Stdin:   os.Stdin,
		Log:     collect.NopLogger{},
	}
}

// Run imports m.File into the object store.
func (m *DatasetMain) Run(ctx context.Context) error {
	start := time.Now()
	if m.Artifacts == "" {
		return errors.New("configuration error: artifacts is required")
	}
	if m.Dataset == "" {
		return errors.New("configuration error: dataset is required")
	}
	store, err := OpenArtifacts(m.Artifacts)
	if err != nil {
		return errors.Wrap(err, "opening artifacts")
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
	n, err := warehouse.ImportCSV(ctx, store, m.Dataset, in)
	if err != nil {
		return errors.Wrapf(err, "importing %s", m.Dataset)
	}
	m.Log.Printf("imported %d rows into %s in %v", n, m.Dataset, time.Since(start))
	return nil
}

// ArtifactsMain lists the artifacts in an object store.
type ArtifactsMain struct {
	Artifacts string `help:"Object store URL: file://<dir> or s3://<bucket>/<prefix>."`
	Prefix    string `help:"Only list artifacts whose names start with this."`

	Stdout io.Writer `flag:"-"`
}

// NewArtifactsMain returns an ArtifactsMain with the default configuration.
func NewArtifactsMain() *ArtifactsMain {
	return &ArtifactsMain{Stdout: os.Stdout}
}

// Run writes one artifact name per line to m.Stdout.
func (m *ArtifactsMain) Run(ctx context.Context) error {
	if m.Artifacts == "" {
		return errors.New("configuration error: artifacts is required")
	}
	store, err := OpenArtifacts(m.Artifacts)
	if err != nil {
		return errors.Wrap(err, "opening artifacts")
	}
	names, err := store.List(ctx, m.Prefix)
	if err != nil {
		return errors.Wrap(err, "listing artifacts")
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(m.Stdout, name); err != nil {
			return err
		}
	}
	return nil
}
