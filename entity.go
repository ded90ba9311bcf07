package collect

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// EntityType enumerates the kinds of artifacts tracked by the store.
type EntityType string

const (
	NPMPackage    EntityType = "NPM_PACKAGE"
	GithubOrg     EntityType = "GITHUB_ORG"
	GitRepository EntityType = "GIT_REPOSITORY"
	EOAAddress    EntityType = "EOA_ADDRESS"
	ContractAddr  EntityType = "CONTRACT_ADDRESS"
)

var entityTypes = []EntityType{NPMPackage, GithubOrg, GitRepository, EOAAddress, ContractAddr}

// EntityTypes returns every known EntityType.
func EntityTypes() []EntityType {
	ret := make([]EntityType, len(entityTypes))
	copy(ret, entityTypes)
	return ret
}

// ParseEntityType returns the EntityType named by s. Matching is case
// insensitive.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range entityTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown entity type '%s'", s)
}

// Entity is an internally tracked artifact. Entities are created by an import
// step and are read-only to collectors.
type Entity struct {
	ID   uint64
	Name string
	Type EntityType
}

func (e Entity) String() string {
	return fmt.Sprintf("%s(%d:%s)", e.Type, e.ID, e.Name)
}

// EdgeKind tags the relationship an Edge represents.
type EdgeKind string

// DependsOn is the kind of edge recorded by the dependents collector. The
// From entity depends on the To entity.
const DependsOn EdgeKind = "depends-on"

// Edge is a directed relationship between two entities. Depth is the minimum
// traversal depth reported by the source (1 for direct dependencies).
type Edge struct {
	FromID uint64
	ToID   uint64
	Kind   EdgeKind
	Depth  int64
}

// EdgeKey is the natural key of an Edge. Stores upsert on it.
type EdgeKey struct {
	FromID uint64
	ToID   uint64
	Kind   EdgeKind
}

// Key returns the natural key of e.
func (e Edge) Key() EdgeKey {
	return EdgeKey{FromID: e.FromID, ToID: e.ToID, Kind: e.Kind}
}

// Row is a raw row read from a warehouse artifact. From and To are external
// names which still need resolving through a Registry.
type Row struct {
	From  string
	To    string
	Depth int64
}
