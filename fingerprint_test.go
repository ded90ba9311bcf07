package collect_test

import (
	"strings"
	"testing"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/test"
)

func TestFingerprintOrderIndependent(t *testing.T) {
	a := test.Packages("left-pad", "react", "lodash")
	b := []collect.Entity{a[2], a[0], a[1]}
	test.MustBe(t, collect.NewFingerprint(a), collect.NewFingerprint(b))
}

func TestFingerprintDistinguishesUniverses(t *testing.T) {
	base := test.Packages("left-pad", "react")
	super := test.Packages("left-pad", "react", "lodash")
	renamed := test.Packages("left-pad", "preact")

	fp := collect.NewFingerprint(base)
	if fp == collect.NewFingerprint(super) {
		t.Fatalf("superset has the same fingerprint")
	}
	if fp == collect.NewFingerprint(renamed) {
		t.Fatalf("renamed entity has the same fingerprint")
	}
	if fp == collect.NewFingerprint(nil) {
		t.Fatalf("empty universe has the same fingerprint")
	}
}

func TestArtifactName(t *testing.T) {
	fp := collect.NewFingerprint(test.Packages("react"))
	tests := []struct {
		prefix string
		exp    string
	}{
		{prefix: "npm", exp: "npm_" + fp.String()},
		{prefix: "npm_", exp: "npm_" + fp.String()},
		{prefix: "", exp: fp.String()},
	}
	for _, tst := range tests {
		test.MustBe(t, tst.exp, collect.ArtifactName(tst.prefix, fp), tst.prefix)
	}
	if len(fp.String()) != 40 || strings.ToLower(fp.String()) != fp.String() {
		t.Fatalf("unexpected fingerprint encoding: %s", fp)
	}
}
