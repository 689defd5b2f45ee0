// Package sequence records poses into an ordered list, saves and loads
// that list as JSON, and plays it back to the arm.
package sequence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gwillem/magarm/pkg/robot"
)

var (
	// ErrOutOfRange is returned when deleting an index that does not exist.
	ErrOutOfRange = errors.New("index out of range")
	// ErrEmptySequence is returned when saving or playing an empty sequence.
	ErrEmptySequence = errors.New("no saved positions")

	errNotArray = errors.New("sequence must be a JSON array")
)

// FileError reports a failed save or load together with its cause.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Store is an ordered list of recorded poses. Insertion order is playback
// order and duplicates are allowed.
type Store struct {
	mu        sync.RWMutex
	positions []robot.Position
}

// NewStore creates a store holding ps.
func NewStore(ps ...robot.Position) *Store {
	return &Store{positions: slices.Clone(ps)}
}

// Record appends p and returns its index.
func (s *Store) Record(p robot.Position) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p.Clamped())
	return len(s.positions) - 1
}

// Delete removes the entry at index i.
func (s *Store) Delete(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.positions) {
		return fmt.Errorf("%w: index %d, %d positions", ErrOutOfRange, i, len(s.positions))
	}
	s.positions = slices.Delete(s.positions, i, i+1)
	return nil
}

// Len returns the number of recorded poses.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// At returns the pose at index i.
func (s *Store) At(i int) (robot.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.positions) {
		return robot.Position{}, fmt.Errorf("%w: index %d, %d positions", ErrOutOfRange, i, len(s.positions))
	}
	return s.positions[i], nil
}

// Positions returns a copy of the recorded poses.
func (s *Store) Positions() []robot.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.positions)
}

// Replace swaps the whole list for ps.
func (s *Store) Replace(ps []robot.Position) {
	clamped := make([]robot.Position, len(ps))
	for i, p := range ps {
		clamped[i] = p.Clamped()
	}
	s.mu.Lock()
	s.positions = clamped
	s.mu.Unlock()
}

// MarshalJSON encodes the store as an array of [m1,m2,m3,m4,mag] arrays.
func (s *Store) MarshalJSON() ([]byte, error) {
	ps := s.Positions()
	if ps == nil {
		ps = []robot.Position{}
	}
	return json.Marshal(ps)
}

// UnmarshalJSON replaces the store's contents. The input must be an
// array; on error the store is left unchanged.
func (s *Store) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errNotArray
	}
	var ps []robot.Position
	if err := json.Unmarshal(data, &ps); err != nil {
		return err
	}
	s.Replace(ps)
	return nil
}

// Save writes the store to path as indented JSON and returns the path
// written. A path without an extension gets ".json". An empty store is
// rejected before the filesystem is touched.
func (s *Store) Save(path string) (string, error) {
	if s.Len() == 0 {
		return "", ErrEmptySequence
	}
	if filepath.Ext(path) == "" {
		path += ".json"
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", &FileError{Op: "save", Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", &FileError{Op: "save", Path: path, Err: err}
	}
	return path, nil
}

// Load replaces the store with the contents of path. On error the store
// is left unchanged.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileError{Op: "load", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, s); err != nil {
		return &FileError{Op: "load", Path: path, Err: err}
	}
	return nil
}
