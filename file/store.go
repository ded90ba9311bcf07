package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// Store keeps artifacts as files in a single local directory. Writes go to a
// temporary file which is renamed into place, so readers never see a
// partially written artifact.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating artifact directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", errors.Errorf("invalid artifact name '%s'", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Exists reports whether the artifact name has been written.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "statting %s", p)
	}
	return true, nil
}

// Put writes everything read from r to the artifact name, replacing any
// previous content.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), p), "renaming into %s", p)
}

// Get opens the artifact name for reading.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(collect.ErrArtifactNotFound, "%s", name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "opening %s", p)
	}
	return f, nil
}

// List returns the names of the artifacts starting with prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading directory")
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		n := info.Name()
		if info.IsDir() || strings.HasPrefix(n, ".") || !strings.HasPrefix(n, prefix) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
