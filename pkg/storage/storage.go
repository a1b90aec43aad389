// Package storage contains implementation independent staging store logic.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/inbucket/aliasrelay/pkg/config"
)

// MarkerSuffix is appended to a staged path to form its quarantine marker path.
const MarkerSuffix = ".error"

var (
	// ErrNotExist indicates the requested staged message or marker does not exist.
	ErrNotExist = errors.New("staged message does not exist")

	// Constructors tracks registered staging store constructors.
	Constructors = make(map[string]func(config.Staging) (Store, error))
)

// Store is the staging area for inbound messages.  A staged message is in one of three states:
// staged (body present), quarantined (body present plus an error marker), or removed.
type Store interface {
	// Path returns the staging path for a message ID.
	Path(id string) string
	// Write creates or replaces the blob at path, returning the number of bytes written.
	Write(path string, r io.Reader) (int64, error)
	// Source opens the blob at path for streaming.
	Source(path string) (io.ReadCloser, error)
	// MarkError writes metadata to the marker for path without touching the blob itself.
	MarkError(path string, metadata []byte) error
	// ErrorMarker returns the marker contents for path.
	ErrorMarker(path string) ([]byte, error)
	// Remove deletes the blob at path.
	Remove(path string) error
	// Visit calls f for each staged blob while it continues to return true.
	Visit(f func(Entry) (cont bool)) error
}

// Entry describes a staged blob found by Store.Visit.
type Entry struct {
	ID          string
	Path        string
	Size        int64
	Staged      time.Time
	Quarantined bool
}

// IOError wraps a storage level failure, keeping disk faults distinguishable from parse or
// resolution faults further up the pipeline.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("staging %s %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports missing files as ErrNotExist.
func (e *IOError) Is(target error) bool {
	return target == ErrNotExist && errors.Is(e.Err, fs.ErrNotExist)
}

// MarkerPath returns the quarantine marker path for a staged path.
func MarkerPath(path string) string {
	return path + MarkerSuffix
}

// FromConfig creates an instance of the Store based on the provided configuration.
func FromConfig(c config.Staging) (store Store, err error) {
	if cf := Constructors[c.Type]; cf != nil {
		return cf(c)
	}

	return nil, fmt.Errorf("unknown staging store type configured: %q", c.Type)
}
