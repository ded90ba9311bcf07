package csv_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/csv"
	"github.com/opensource-observer/collect/mock"
	"github.com/opensource-observer/collect/test"
)

func TestImportEntities(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	data := `name,extra,TYPE,id
react,x,npm_package,1
org,y,GITHUB_ORG,2
left-pad,z,NPM_PACKAGE,3
`
	n, err := csv.ImportEntities(ctx, store, strings.NewReader(data), 2)
	test.ErrNil(t, err, "importing")
	test.MustBe(t, uint64(3), n)

	pkgs, err := store.EntitiesByType(ctx, collect.NPMPackage)
	test.ErrNil(t, err, "getting packages")
	test.MustBe(t, []collect.Entity{
		{ID: 1, Name: "react", Type: collect.NPMPackage},
		{ID: 3, Name: "left-pad", Type: collect.NPMPackage},
	}, pkgs)
	orgs, err := store.EntitiesByType(ctx, collect.GithubOrg)
	test.ErrNil(t, err, "getting orgs")
	test.MustBe(t, 1, len(orgs))
}

func TestImportEntitiesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  string
		n    uint64
	}{
		{name: "missing column", data: "id,name\n1,react\n", err: "header must contain id, name and type"},
		{name: "duplicate column", data: "id,name,type,id\n", err: "id appeared at both 0 and 3"},
		{name: "bad id", data: "id,name,type\nx,react,NPM_PACKAGE\n", err: "line 2: parsing id"},
		{name: "bad type", data: "id,name,type\n1,react,NPM_PACKAGE\n2,foo,CRATE\n", err: "unknown entity type 'CRATE'", n: 1},
		{name: "short row", data: "id,name,type\n1,react\n", err: "header/row len mismatch"},
		{name: "no name", data: "id,name,type\n1, ,NPM_PACKAGE\n", err: "entity 1 has no name"},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			n, err := csv.ImportEntities(context.Background(), mock.NewStore(), strings.NewReader(tst.data), 1)
			test.ErrContains(t, err, tst.err)
			test.MustBe(t, tst.n, n)
		})
	}
}

func TestMainRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	name := filepath.Join(dir, "entities.csv")
	err := os.WriteFile(name, []byte("id,name,type\n1,react,NPM_PACKAGE\n2,next,NPM_PACKAGE\n"), 0600)
	test.ErrNil(t, err, "writing file")

	m := csv.NewMain()
	m.Store = "leveldb://" + filepath.Join(dir, "store")
	m.File = name
	test.ErrNil(t, m.Run(ctx), "running")

	m.File = ""
	m.Stdin = strings.NewReader("id,name,type\n3,left-pad,NPM_PACKAGE\n")
	test.ErrNil(t, m.Run(ctx), "running from stdin")

	m.Store = ""
	test.ErrContains(t, m.Run(ctx), "configuration error")
}
