package dependents

import (
	"context"
	"net/url"
	"strings"

	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/aws/s3"
	"github.com/opensource-observer/collect/boltdb"
	"github.com/opensource-observer/collect/file"
	"github.com/opensource-observer/collect/leveldb"
	"github.com/opensource-observer/collect/postgres"
	"github.com/opensource-observer/collect/sqlite"
	"github.com/opensource-observer/collect/warehouse"
	"github.com/pkg/errors"
)

// ArtifactStore is an object store which can also list what it holds.
type ArtifactStore interface {
	warehouse.ArtifactStore
	List(ctx context.Context, prefix string) ([]string, error)
}

// splitDSN returns the scheme of dsn and everything after "scheme://".
func splitDSN(dsn string) (scheme, rest string, err error) {
	i := strings.Index(dsn, "://")
	if i <= 0 {
		return "", "", errors.Errorf("'%s' has no scheme", dsn)
	}
	return strings.ToLower(dsn[:i]), dsn[i+3:], nil
}

// OpenStore opens the entity and edge store named by dsn. Supported schemes
// are bolt://<file>, leveldb://<dir>, sqlite://<file> and postgres:// (any
// DSN pgx accepts). Postgres schemas are migrated on open.
func OpenStore(ctx context.Context, dsn string) (collect.Store, error) {
	scheme, rest, err := splitDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parsing store DSN")
	}
	if rest == "" {
		return nil, errors.Errorf("store DSN '%s' has no location", dsn)
	}
	switch scheme {
	case "bolt", "boltdb":
		return boltdb.NewStore(rest)
	case "leveldb":
		return leveldb.NewStore(rest)
	case "sqlite", "sqlite3":
		return sqlite.NewStore(rest)
	case "postgres", "postgresql":
		return postgres.NewStore(ctx, dsn)
	}
	return nil, errors.Errorf("unknown store scheme '%s'", scheme)
}

// OpenArtifacts opens the object store named by rawurl: file://<dir> or
// s3://<bucket>[/<prefix>]. For s3 the region and endpoint query parameters
// are honoured, e.g. s3://bucket/oso?region=us-west-2.
func OpenArtifacts(rawurl string) (ArtifactStore, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrap(err, "parsing artifacts URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			return nil, errors.Errorf("artifacts URL '%s' has no directory", rawurl)
		}
		return file.NewStore(dir)
	case "s3":
		if u.Host == "" {
			return nil, errors.Errorf("artifacts URL '%s' has no bucket", rawurl)
		}
		opts := []s3.StoreOption{s3.OptStorePrefix(u.Path)}
		if r := u.Query().Get("region"); r != "" {
			opts = append(opts, s3.OptStoreRegion(r))
		}
		if e := u.Query().Get("endpoint"); e != "" {
			opts = append(opts, s3.OptStoreEndpoint(e))
		}
		return s3.NewStore(u.Host, opts...)
	}
	return nil, errors.Errorf("unknown artifacts scheme '%s'", u.Scheme)
}
