package test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/opensource-observer/collect"
)

// MustBe uses reflect.DeepEqual to assert that thing1 and thing2 are equal, and
// fails otherwise.
func MustBe(t *testing.T, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) == 0 {
		ctx = ""
	} else {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(thing1, thing2) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, thing1, thing2)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t *testing.T, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// ErrContains asserts that err is non-nil and that its message contains
// substr.
func ErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing '%s', got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing '%s', got '%v'", substr, err)
	}
}

// Packages returns NPM package entities with ids 1..len(names) in order.
func Packages(names ...string) []collect.Entity {
	ents := make([]collect.Entity, len(names))
	for i, n := range names {
		ents[i] = collect.Entity{ID: uint64(i + 1), Name: n, Type: collect.NPMPackage}
	}
	return ents
}

// Edges returns depends-on edges for pairs of ids, all at depth 1.
func Edges(pairs ...[2]uint64) []collect.Edge {
	edges := make([]collect.Edge, len(pairs))
	for i, p := range pairs {
		edges[i] = collect.Edge{FromID: p[0], ToID: p[1], Kind: collect.DependsOn, Depth: 1}
	}
	return edges
}
