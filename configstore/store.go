// Package configstore provides the single persistence primitive used by
// every JSON document this repo keeps on disk: AgentConfig, the
// controller's saved-device list, and its credential cache all share the
// same atomic-write, single-writer, snapshot-on-read discipline. The
// plain-text device-id file is written by the identity package itself.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/copystructure"
)

// Store is a mutex-guarded, atomically-persisted JSON document of type T.
// Mutations are serialised through the single writer lock; readers take the
// lock only long enough to clone a snapshot, per spec.md §4.2 and §5.
type Store[T any] struct {
	path string

	mu  sync.Mutex
	doc T
}

// Open loads path into a new Store, applying seed as the in-memory value if
// the file does not yet exist. If the file exists but fails to parse, Open
// returns the error -- callers decide whether that's fatal (load MUST
// succeed on any file whose JSON is parseable; a corrupt file is not).
func Open[T any](path string, seed T) (*Store[T], error) {
	s := &Store[T]{path: path, doc: seed}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.persist(seed); err != nil {
			return nil, fmt.Errorf("configstore: seeding %s: %w", path, err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("configstore: reading %s: %w", path, err)
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("configstore: parsing %s: %w", path, err)
	}
	s.doc = doc
	return s, nil
}

// Snapshot returns a deep copy of the current document so callers never
// observe a torn read and can never mutate the store's internal state by
// reference.
func (s *Store[T]) Snapshot() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.doc)
}

// Mutate runs fn against a snapshot of the document, persists the result if
// fn returns a nil error, and on success swaps it in as the new in-memory
// document. fn must not retain the pointer it's given past return.
func (s *Store[T]) Mutate(fn func(*T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clone(s.doc)
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

// persist writes doc to s.path atomically: write to a temp file in the same
// directory, fsync, then rename over the destination. Callers must hold s.mu.
func (s *Store[T]) persist(doc T) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("configstore: encoding %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("configstore: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("configstore: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("configstore: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("configstore: syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("configstore: closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("configstore: renaming %s to %s: %w", tmpPath, s.path, err)
	}
	return nil
}

func clone[T any](v T) T {
	copied, err := copystructure.Copy(v)
	if err != nil {
		// copystructure only fails on unsupported field kinds (e.g. chans,
		// funcs); every document type stored here is plain data.
		panic(fmt.Sprintf("configstore: value of type %T is not cloneable: %v", v, err))
	}
	return copied.(T)
}
