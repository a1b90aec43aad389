package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSuite runs storage package test suite on file store.
func TestSuite(t *testing.T) {
	test.StoreSuite(t, func() (storage.Store, func(), error) {
		ds := setupDataStore(t)
		return ds, func() {}, nil
	})
}

// Test filestore initialization.
func TestFSNew(t *testing.T) {
	// Should fail if no path specified.
	ds, err := New(config.Staging{})
	require.ErrorContains(t, err, "path not specified")
	assert.Nil(t, ds)
}

func TestFSGetStagingPath(t *testing.T) {
	// Path should have `staging` dir appended.
	got := getStagingPath(`one`)
	assert.Regexp(t, "^one.staging$", got, "Expected one/staging or similar")

	// Path should convert `$` to `:`.
	got = getStagingPath(`C$\aliasrelay`)
	assert.Regexp(t, "^C:.aliasrelay.staging$", got, "Expected C:\\aliasrelay\\staging or similar")
}

// Test directory structure created by filestore.
func TestFSDirStructure(t *testing.T) {
	ds := setupDataStore(t)
	root := ds.path
	assert.True(t, isDir(root), "Expected %q to be a directory", root)

	path := test.StageMessage(t, ds, "1234-abcd", "Subject: x\r\n\r\nbody\r\n")
	assert.Equal(t, filepath.Join(root, "1234-abcd"), path)
	assert.True(t, isFile(path), "Expected %q to be a file", path)

	// Quarantine creates a sibling marker.
	require.NoError(t, ds.MarkError(path, []byte("{}")))
	assert.True(t, isFile(path+".error"), "Expected %q to be a file", path+".error")
	assert.True(t, isFile(path), "Expected %q to survive quarantine", path)

	// Remove leaves the marker for operators.
	require.NoError(t, ds.Remove(path))
	assert.False(t, isPresent(path), "Did not expect %q to exist", path)
	assert.True(t, isFile(path+".error"), "Expected %q to be a file", path+".error")

	// No temporary files left behind.
	names, err := readDirNames(root)
	require.NoError(t, err)
	for _, name := range names {
		assert.False(t, strings.HasSuffix(name, tempSuffix), "Unexpected temp file %q", name)
	}
}

// Test a failed write leaves no staged file.
func TestFSWriteFailure(t *testing.T) {
	ds := setupDataStore(t)
	path := ds.Path("broken")

	_, err := ds.Write(path, &failingReader{})
	require.Error(t, err)
	var ioErr *storage.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
	assert.False(t, isPresent(path), "Did not expect %q to exist", path)
	test.AssertEntries(t, ds, 0, 0)
}

// Test Visit ignores in-progress temporary files and directories.
func TestFSVisitSkipsTemporary(t *testing.T) {
	ds := setupDataStore(t)
	test.StageMessage(t, ds, "real", "x")
	require.NoError(t, os.WriteFile(filepath.Join(ds.path, ".partial.tmp"), []byte("x"), 0660))
	require.NoError(t, os.Mkdir(filepath.Join(ds.path, "subdir"), 0770))

	test.AssertEntries(t, ds, 1, 0)
}

// setupDataStore creates a new file store in a temporary directory.
func setupDataStore(t *testing.T) *Store {
	t.Helper()
	ds, err := New(config.Staging{Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return ds.(*Store)
}

type failingReader struct{}

func (r *failingReader) Read(p []byte) (int, error) {
	return 0, os.ErrClosed
}

func isPresent(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isFile(path string) bool {
	if fi, err := os.Lstat(path); err == nil {
		return !fi.IsDir()
	}
	return false
}

func isDir(path string) bool {
	if fi, err := os.Lstat(path); err == nil {
		return fi.IsDir()
	}
	return false
}
