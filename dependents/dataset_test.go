package dependents_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/opensource-observer/collect/dependents"
	"github.com/opensource-observer/collect/test"
)

func TestDatasetAndArtifacts(t *testing.T) {
	ctx := context.Background()
	url := "file://" + t.TempDir()

	dm := dependents.NewDatasetMain()
	dm.Artifacts = url
	dm.Stdin = strings.NewReader(dependentsCSV)
	test.ErrNil(t, dm.Run(ctx), "importing dataset")

	dm.Dataset = "other"
	dm.Stdin = strings.NewReader("system,snapshot_at,package_name,dependent_name\n")
	test.ErrContains(t, dm.Run(ctx), "importing other")

	buf := &bytes.Buffer{}
	am := dependents.NewArtifactsMain()
	am.Artifacts = url
	am.Stdout = buf
	test.ErrNil(t, am.Run(ctx), "listing")
	test.MustBe(t, "dependents.avro\n", buf.String())

	buf.Reset()
	am.Prefix = "npm"
	test.ErrNil(t, am.Run(ctx), "listing with prefix")
	test.MustBe(t, "", buf.String())

	am.Artifacts = ""
	test.ErrContains(t, am.Run(ctx), "configuration error")
}
