package storage

import (
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStore is a shared mock for unit testing failure paths.
type MockStore struct {
	mock.Mock
}

var _ Store = &MockStore{}

// Path mock function
func (m *MockStore) Path(id string) string {
	args := m.Called(id)
	return args.String(0)
}

// Write mock function
func (m *MockStore) Write(path string, r io.Reader) (int64, error) {
	args := m.Called(path, r)
	return args.Get(0).(int64), args.Error(1)
}

// Source mock function
func (m *MockStore) Source(path string) (io.ReadCloser, error) {
	args := m.Called(path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

// MarkError mock function
func (m *MockStore) MarkError(path string, metadata []byte) error {
	args := m.Called(path, metadata)
	return args.Error(0)
}

// ErrorMarker mock function
func (m *MockStore) ErrorMarker(path string) ([]byte, error) {
	args := m.Called(path)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// Remove mock function
func (m *MockStore) Remove(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

// Visit mock function, visits the entries provided to Return.
func (m *MockStore) Visit(f func(Entry) (cont bool)) error {
	args := m.Called()
	entries, _ := args.Get(0).([]Entry)
	for _, e := range entries {
		if !f(e) {
			break
		}
	}
	return args.Error(1)
}
