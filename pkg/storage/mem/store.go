package mem

import (
	"bytes"
	"io"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/storage"
)

// pathPrefix namespaces in-memory paths so they are never mistaken for files.
const pathPrefix = "memory:/"

// Store implements an in-memory staging store.  Nothing survives a restart, so it is only suitable
// for development and tests.
type Store struct {
	sync.Mutex
	blobs   map[string]*blob
	markers map[string][]byte
}

type blob struct {
	source []byte
	staged time.Time
}

var _ storage.Store = &Store{}

// New returns an empty memory store.
func New(cfg config.Staging) (storage.Store, error) {
	return &Store{
		blobs:   make(map[string]*blob),
		markers: make(map[string][]byte),
	}, nil
}

// Path returns the staging path for a message ID.
func (s *Store) Path(id string) string {
	return pathPrefix + id
}

// Write replaces the blob at path with the contents of r.
func (s *Store) Write(path string, r io.Reader) (int64, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return 0, &storage.IOError{Op: "write", Path: path, Err: err}
	}
	s.Lock()
	defer s.Unlock()
	s.blobs[path] = &blob{source: source, staged: time.Now()}
	return int64(len(source)), nil
}

// Source returns a reader over the blob as it was when Source was called.
func (s *Store) Source(path string) (io.ReadCloser, error) {
	s.Lock()
	defer s.Unlock()
	b, ok := s.blobs[path]
	if !ok {
		return nil, &storage.IOError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(b.source)), nil
}

// MarkError records the marker for path.
func (s *Store) MarkError(path string, metadata []byte) error {
	s.Lock()
	defer s.Unlock()
	s.markers[path] = append([]byte(nil), metadata...)
	return nil
}

// ErrorMarker returns the marker for path.
func (s *Store) ErrorMarker(path string) ([]byte, error) {
	s.Lock()
	defer s.Unlock()
	m, ok := s.markers[path]
	if !ok {
		return nil, &storage.IOError{
			Op: "read marker", Path: storage.MarkerPath(path), Err: fs.ErrNotExist}
	}
	return m, nil
}

// Remove deletes the blob at path, its marker is retained.
func (s *Store) Remove(path string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return &storage.IOError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(s.blobs, path)
	return nil
}

// Visit calls f for each blob ordered by path.  The store is not locked while f runs.
func (s *Store) Visit(f func(storage.Entry) (cont bool)) error {
	s.Lock()
	entries := make([]storage.Entry, 0, len(s.blobs))
	for path, b := range s.blobs {
		_, marked := s.markers[path]
		entries = append(entries, storage.Entry{
			ID:          path[len(pathPrefix):],
			Path:        path,
			Size:        int64(len(b.source)),
			Staged:      b.staged,
			Quarantined: marked,
		})
	}
	s.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, e := range entries {
		if !f(e) {
			break
		}
	}
	return nil
}
