// Package rastore provides the disk-resident array abstraction behind every
// swath and grid array in the pipeline. Arrays are headerless row-major
// binary blobs; shape and dtype live only in metadata, so external writers
// can memory-map the files directly.
package rastore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	MemoryStoreType = "MemoryStore"
	FileStoreType   = "FileStore"
)

// Array is one randomly-addressable 2-D array of numbers. Load and Put move
// the whole array; block access has never been needed because swaths are
// processed a full geolocation surface at a time.
type Array interface {
	Rows() int
	Cols() int
	DType() DType
	// Path is the store key the array was created or opened under, valid
	// as an argument to the owning store's Open and Remove. File stores
	// lay keys out under their base directory.
	Path() string
	Load() ([]float64, error)
	Put(vals []float64) error
}

// Store creates and reopens Arrays by key. The orchestrator owns collision
// and cleanup policy, so Create always clobbers; callers check Exists first
// when overwriting matters.
type Store interface {
	Create(path string, dt DType, rows, cols int) (Array, error)
	Open(path string, dt DType, rows, cols int) (Array, error)
	Exists(path string) bool
	Remove(path string) error
	Type() string
}

type memArray struct {
	store *MemStore
	key   string
	dt    DType
	rows  int
	cols  int
}

func (a *memArray) Rows() int    { return a.rows }
func (a *memArray) Cols() int    { return a.cols }
func (a *memArray) DType() DType { return a.dt }
func (a *memArray) Path() string { return a.key }

func (a *memArray) Load() ([]float64, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	d, ok := a.store.data[a.key]
	if !ok {
		return nil, fmt.Errorf("rastore: %q has been removed", a.key)
	}
	out := make([]float64, len(d))
	copy(out, d)
	return out, nil
}

func (a *memArray) Put(vals []float64) error {
	if len(vals) != a.rows*a.cols {
		return fmt.Errorf("rastore: put %d values into %dx%d array %q", len(vals), a.rows, a.cols, a.key)
	}
	d := make([]float64, len(vals))
	copy(d, vals)
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	a.store.data[a.key] = d
	return nil
}

// MemStore keeps arrays in process memory. Correctness tests run against it
// so they never touch a filesystem.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]float64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{data: map[string][]float64{}}
}

func (s *MemStore) Type() string { return MemoryStoreType }

func (s *MemStore) Create(path string, dt DType, rows, cols int) (Array, error) {
	s.mu.Lock()
	s.data[path] = make([]float64, rows*cols)
	s.mu.Unlock()
	return &memArray{store: s, key: path, dt: dt, rows: rows, cols: cols}, nil
}

func (s *MemStore) Open(path string, dt DType, rows, cols int) (Array, error) {
	s.mu.Lock()
	_, ok := s.data[path]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rastore: %q not found", path)
	}
	return &memArray{store: s, key: path, dt: dt, rows: rows, cols: cols}, nil
}

func (s *MemStore) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[path]
	return ok
}

func (s *MemStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[path]; !ok {
		return fmt.Errorf("rastore: %q not found", path)
	}
	delete(s.data, path)
	return nil
}

type fileArray struct {
	abs  string
	rel  string
	dt   DType
	rows int
	cols int
}

func (a *fileArray) Rows() int    { return a.rows }
func (a *fileArray) Cols() int    { return a.cols }
func (a *fileArray) DType() DType { return a.dt }
func (a *fileArray) Path() string { return a.rel }

func (a *fileArray) Load() ([]float64, error) {
	buf, err := os.ReadFile(a.abs)
	if err != nil {
		return nil, err
	}
	vals, err := decode(buf, a.dt)
	if err != nil {
		return nil, err
	}
	if len(vals) != a.rows*a.cols {
		return nil, fmt.Errorf("rastore: %s holds %d elements, expected %dx%d", a.rel, len(vals), a.rows, a.cols)
	}
	return vals, nil
}

func (a *fileArray) Put(vals []float64) error {
	if len(vals) != a.rows*a.cols {
		return fmt.Errorf("rastore: put %d values into %dx%d array %s", len(vals), a.rows, a.cols, a.rel)
	}
	return os.WriteFile(a.abs, encode(vals, a.dt), 0o644)
}

// FileStore lays arrays out as flat binary files under a base directory.
type FileStore struct {
	base string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(base string) (*FileStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{base: base}, nil
}

func (s *FileStore) Type() string { return FileStoreType }

func (s *FileStore) Create(path string, dt DType, rows, cols int) (Array, error) {
	a := &fileArray{abs: filepath.Join(s.base, path), rel: path, dt: dt, rows: rows, cols: cols}
	if err := a.Put(make([]float64, rows*cols)); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *FileStore) Open(path string, dt DType, rows, cols int) (Array, error) {
	abs := filepath.Join(s.base, path)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if want := int64(rows * cols * dt.Size()); info.Size() != want {
		return nil, fmt.Errorf("rastore: %s is %d bytes, expected %d for %dx%d %s", path, info.Size(), want, rows, cols, dt)
	}
	return &fileArray{abs: abs, rel: path, dt: dt, rows: rows, cols: cols}, nil
}

func (s *FileStore) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(s.base, path))
	return err == nil
}

func (s *FileStore) Remove(path string) error {
	if err := os.Remove(filepath.Join(s.base, path)); err != nil {
		logrus.Debugf("rastore: remove %s: %v", path, err)
		return err
	}
	return nil
}
