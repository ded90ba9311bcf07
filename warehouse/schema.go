package warehouse

import (
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// Field names of the source dataset and of result artifacts.
const (
	FieldSystem       = "system"
	FieldSnapshotAt   = "snapshot_at"
	FieldPackageName  = "package_name"
	FieldDependent    = "dependent_name"
	FieldMinimumDepth = "minimum_depth"
)

// Filter keys recognized in collect.Query.Filters. Each filter must equal
// (case insensitively) the source field of the same name. The snapshot
// filter is a day and matches any timestamp within it.
const (
	FilterSystem   = FieldSystem
	FilterSnapshot = FieldSnapshotAt
)

const dayLayout = "2006-01-02"

// DatasetSchema is the Avro schema of the source dependents dataset: one
// record per (package, dependent) pair per daily snapshot.
const DatasetSchema = `{
  "type": "record",
  "name": "Dependent",
  "namespace": "io.opensource_observer",
  "fields": [
    {"name": "system", "type": "string"},
    {"name": "snapshot_at", "type": "string"},
    {"name": "package_name", "type": "string"},
    {"name": "dependent_name", "type": "string"},
    {"name": "minimum_depth", "type": "long"}
  ]
}`

// ResultSchema is the Avro schema of materialized artifacts.
const ResultSchema = `{
  "type": "record",
  "name": "DependentEdge",
  "namespace": "io.opensource_observer",
  "fields": [
    {"name": "package_name", "type": "string"},
    {"name": "dependent_name", "type": "string"},
    {"name": "minimum_depth", "type": "long"}
  ]
}`

var (
	datasetCodec = mustCodec(DatasetSchema)
	resultCodec  = mustCodec(ResultSchema)
)

func mustCodec(schema string) *goavro.Codec {
	c, err := goavro.NewCodec(schema)
	if err != nil {
		panic(errors.Wrap(err, "compiling schema"))
	}
	return c
}

// artifactKey is the object store key of the artifact name.
func artifactKey(name string) string {
	return name + ".avro"
}
