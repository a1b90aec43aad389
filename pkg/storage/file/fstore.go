package file

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Prefix and suffix of in-progress writes; these are renamed into place once complete.
const (
	tempPrefix = "."
	tempSuffix = ".tmp"
)

// Store implements storage.Store on a single directory.  Each staged message is a file named by
// its ID, and its quarantine marker sits beside it with the storage.MarkerSuffix.
type Store struct {
	path          string
	bufReaderPool sync.Pool
}

var _ storage.Store = &Store{}

// New creates a new file Store rooted at the configured staging path.
func New(cfg config.Staging) (storage.Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("staging path not specified")
	}

	path := getStagingPath(cfg.Path)
	if _, err := os.Stat(path); err != nil {
		// Staging directory does not yet exist, create it.
		if err = os.MkdirAll(path, 0770); err != nil {
			log.Error().Str("module", "storage").Str("path", path).Err(err).
				Msg("Error creating dir")
			return nil, err
		}
	}

	return &Store{
		path: path,
		bufReaderPool: sync.Pool{
			New: func() interface{} {
				return bufio.NewReader(nil)
			},
		},
	}, nil
}

// Path returns the staging path for a message ID.
func (fs *Store) Path(id string) string {
	return filepath.Join(fs.path, id)
}

// Write streams r into a temporary file, then renames it over path.
func (fs *Store) Write(path string, r io.Reader) (int64, error) {
	size, err := writeAtomic(path, r)
	if err != nil {
		return 0, &storage.IOError{Op: "write", Path: path, Err: err}
	}

	return size, nil
}

// Source opens the staged file for buffered reading.
func (fs *Store) Source(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &storage.IOError{Op: "open", Path: path, Err: err}
	}

	return &pooledReader{Reader: fs.getPooledReader(file), file: file, store: fs}, nil
}

// MarkError writes the quarantine marker for path, leaving the staged file untouched.
func (fs *Store) MarkError(path string, metadata []byte) error {
	markerPath := storage.MarkerPath(path)
	if _, err := writeAtomic(markerPath, bytes.NewReader(metadata)); err != nil {
		return &storage.IOError{Op: "mark", Path: markerPath, Err: err}
	}

	return nil
}

// ErrorMarker reads the quarantine marker for path.
func (fs *Store) ErrorMarker(path string) ([]byte, error) {
	markerPath := storage.MarkerPath(path)
	b, err := os.ReadFile(markerPath)
	if err != nil {
		return nil, &storage.IOError{Op: "read marker", Path: markerPath, Err: err}
	}

	return b, nil
}

// Remove unlinks the staged file.
func (fs *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return &storage.IOError{Op: "remove", Path: path, Err: err}
	}

	return nil
}

// Visit calls f for each staged file, ordered by name, while f continues to return true.
func (fs *Store) Visit(f func(storage.Entry) (cont bool)) error {
	names, err := readDirNames(fs.path)
	if err != nil {
		return &storage.IOError{Op: "list", Path: fs.path, Err: err}
	}
	sort.Strings(names)

	markers := make(map[string]bool)
	for _, name := range names {
		if strings.HasSuffix(name, storage.MarkerSuffix) {
			markers[strings.TrimSuffix(name, storage.MarkerSuffix)] = true
		}
	}

	for _, name := range names {
		if strings.HasPrefix(name, tempPrefix) || strings.HasSuffix(name, storage.MarkerSuffix) {
			continue
		}
		path := filepath.Join(fs.path, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Removed by a pipeline since the directory was read.
				continue
			}
			return &storage.IOError{Op: "stat", Path: path, Err: err}
		}
		if info.IsDir() {
			continue
		}
		entry := storage.Entry{
			ID:          name,
			Path:        path,
			Size:        info.Size(),
			Staged:      info.ModTime(),
			Quarantined: markers[name],
		}
		if !f(entry) {
			return nil
		}
	}

	return nil
}

// getPooledReader pulls a buffered reader from the fs.bufReaderPool.
func (fs *Store) getPooledReader(r io.Reader) *bufio.Reader {
	br := fs.bufReaderPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// putPooledReader returns a buffered reader to the fs.bufReaderPool.
func (fs *Store) putPooledReader(br *bufio.Reader) {
	br.Reset(nil)
	fs.bufReaderPool.Put(br)
}

// pooledReader returns its buffer to the pool when closed.
type pooledReader struct {
	*bufio.Reader
	file  *os.File
	store *Store
}

func (r *pooledReader) Close() error {
	r.store.putPooledReader(r.Reader)
	return r.file.Close()
}

// writeAtomic copies r into a temporary file in the same directory as path, then renames it into
// place so readers never observe a partial write.
func writeAtomic(path string, r io.Reader) (int64, error) {
	tmpPath := filepath.Join(filepath.Dir(path), tempPrefix+filepath.Base(path)+tempSuffix)
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(file)
	size, err := io.Copy(w, r)
	if err != nil {
		// Try to remove the file.
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	return size, nil
}

// getStagingPath converts the configured `path` into the effective staging path.  Within the path,
// '$' is replaced with ':' to support Windows drive letters with our env->config map syntax.
func getStagingPath(base string) string {
	path := strings.ReplaceAll(base, "$", ":")
	return filepath.Join(path, "staging")
}

// readDirNames returns a slice of filenames in the specified directory or an error.
func readDirNames(elem ...string) ([]string, error) {
	f, err := os.Open(filepath.Join(elem...))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	return f.Readdirnames(0)
}
