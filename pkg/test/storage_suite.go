package test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory returns a new store for the test suite.
type StoreFactory func() (store storage.Store, destroy func(), err error)

// StoreSuite runs a set of general tests on the provided Store.
func StoreSuite(t *testing.T, factory StoreFactory) {
	testCases := []struct {
		name string
		test func(*testing.T, storage.Store)
	}{
		{"write and read", testWriteRead},
		{"overwrite", testOverwrite},
		{"missing", testMissing},
		{"mark error", testMarkError},
		{"remove", testRemove},
		{"visit", testVisit},
		{"visit stops", testVisitStops},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, destroy, err := factory()
			if err != nil {
				t.Fatal(err)
			}
			tc.test(t, store)
			destroy()
		})
	}
}

// testWriteRead verifies content is stored and streamed back unchanged.
func testWriteRead(t *testing.T, store storage.Store) {
	content := "Subject: hello\r\n\r\nbody\r\n"
	path := store.Path("msg-1")
	n, err := store.Write(path, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	assert.Equal(t, content, ReadSource(t, store, path))
}

// testOverwrite verifies a second write replaces the first.
func testOverwrite(t *testing.T, store storage.Store) {
	path := store.Path("msg-1")
	_, err := store.Write(path, strings.NewReader("first version"))
	require.NoError(t, err)
	_, err = store.Write(path, strings.NewReader("second"))
	require.NoError(t, err)

	assert.Equal(t, "second", ReadSource(t, store, path))
}

// testMissing verifies missing blobs and markers surface as storage errors.
func testMissing(t *testing.T, store storage.Store) {
	path := store.Path("nope")

	_, err := store.Source(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotExist)
	var ioErr *storage.IOError
	assert.True(t, errors.As(err, &ioErr), "want *storage.IOError, got %T", err)

	_, err = store.ErrorMarker(path)
	assert.ErrorIs(t, err, storage.ErrNotExist)

	err = store.Remove(path)
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

// testMarkError verifies the marker is written without disturbing the staged blob.
func testMarkError(t *testing.T, store storage.Store) {
	path := store.Path("poison")
	content := "not really mime"
	_, err := store.Write(path, strings.NewReader(content))
	require.NoError(t, err)

	err = store.MarkError(path, []byte(`{"aliasId":"abc"}`))
	require.NoError(t, err)

	got, err := store.ErrorMarker(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aliasId":"abc"}`, string(got))
	assert.Equal(t, content, ReadSource(t, store, path))

	// Re-marking replaces the previous marker.
	err = store.MarkError(path, []byte(`{"aliasId":"def"}`))
	require.NoError(t, err)
	got, err = store.ErrorMarker(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aliasId":"def"}`, string(got))
}

// testRemove verifies removed blobs are gone.
func testRemove(t *testing.T, store storage.Store) {
	path := store.Path("done")
	_, err := store.Write(path, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(path))

	_, err = store.Source(path)
	assert.ErrorIs(t, err, storage.ErrNotExist)
	AssertEntries(t, store, 0, 0)
}

// testVisit verifies Visit reports staged and quarantined blobs.
func testVisit(t *testing.T, store storage.Store) {
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Write(store.Path(id), strings.NewReader("content "+id))
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkError(store.Path("b"), []byte("{}")))

	var got []storage.Entry
	err := store.Visit(func(e storage.Entry) bool {
		got = append(got, e)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, store.Path("a"), got[0].Path)
	assert.Equal(t, int64(len("content a")), got[0].Size)
	assert.False(t, got[0].Quarantined)
	assert.False(t, got[0].Staged.IsZero())
	assert.Equal(t, "b", got[1].ID)
	assert.True(t, got[1].Quarantined)
	assert.Equal(t, "c", got[2].ID)
	assert.False(t, got[2].Quarantined)
}

// testVisitStops verifies Visit honors a false return.
func testVisitStops(t *testing.T, store storage.Store) {
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Write(store.Path(id), strings.NewReader(id))
		require.NoError(t, err)
	}

	count := 0
	err := store.Visit(func(e storage.Entry) bool {
		count++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// ReadSource reads the full content of a staged blob or fails the test.
func ReadSource(t *testing.T, store storage.Store, path string) string {
	t.Helper()
	r, err := store.Source(path)
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
	}()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}
