package test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/inbucket/aliasrelay/pkg/storage"
)

// StageMessage writes source into store under id, returning its path.
func StageMessage(t *testing.T, store storage.Store, id string, source string) string {
	t.Helper()
	path := store.Path(id)
	if _, err := store.Write(path, strings.NewReader(source)); err != nil {
		t.Fatalf("Failed to stage %q: %v", id, err)
	}
	return path
}

// IsStaged reports whether path still holds a staged blob.
func IsStaged(t *testing.T, store storage.Store, path string) bool {
	t.Helper()
	found := false
	err := store.Visit(func(e storage.Entry) bool {
		if e.Path == path {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		t.Fatalf("Failed to visit store: %v", err)
	}
	return found
}

// ReadMarker decodes the quarantine marker for path into a generic map, returning nil if there is
// no marker.
func ReadMarker(t *testing.T, store storage.Store, path string) map[string]interface{} {
	t.Helper()
	b, err := store.ErrorMarker(path)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Marker for %q is not JSON: %v\n%s", path, err, b)
	}
	return m
}

// AssertEntries expects the store to contain the given number of staged and quarantined blobs.
func AssertEntries(t *testing.T, store storage.Store, staged, quarantined int) {
	t.Helper()
	gotStaged, gotQuarantined := 0, 0
	err := store.Visit(func(e storage.Entry) bool {
		if e.Quarantined {
			gotQuarantined++
		} else {
			gotStaged++
		}
		return true
	})
	if err != nil {
		t.Fatalf("Failed to visit store: %v", err)
	}
	if gotStaged != staged {
		t.Errorf("Got %v staged entries, want: %v", gotStaged, staged)
	}
	if gotQuarantined != quarantined {
		t.Errorf("Got %v quarantined entries, want: %v", gotQuarantined, quarantined)
	}
}
