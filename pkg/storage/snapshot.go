// Package storage persists daemon state as a gob snapshot on disk.
package storage

import (
	"encoding/gob"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Snapshotter saves and loads a single snapshot file. Writes go through
// a temp file and rename, so a crash mid-save never corrupts the
// previous snapshot.
type Snapshotter struct {
	path string
	lock sync.Mutex
}

func NewSnapshotter(path string) *Snapshotter {
	return &Snapshotter{path: path}
}

// Path returns the snapshot file location.
func (s *Snapshotter) Path() string {
	return s.path
}

// Load decodes the snapshot into v. A missing file is not an error, it
// just reports that nothing was found.
func (s *Snapshotter) Load(v interface{}) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to open snapshot %v", s.path)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return false, errors.Wrapf(err, "failed to decode snapshot %v", s.path)
	}

	return true, nil
}

// Save encodes v and atomically replaces the snapshot file.
func (s *Snapshotter) Save(v interface{}) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "failed to create snapshot temp file")
	}

	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrap(err, "failed to encode snapshot")
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "failed to close snapshot temp file")
	}

	if err := os.Rename(f.Name(), s.path); err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "failed to replace snapshot %v", s.path)
	}

	return nil
}

// SaveAsync saves in the background, logging failures instead of
// returning them.
func (s *Snapshotter) SaveAsync(v interface{}) {
	go func() {
		if err := s.Save(v); err != nil {
			log.Printf("error occurred while saving snapshot: %v\n", err)
		}
	}()
}
