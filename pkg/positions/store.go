// Package positions persists hedge positions and decides when an open one
// should be closed.
package positions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haoxu/ivarb/pkg/models"
)

// Store is the durable home of the full position set, open and closed.
// The unit of persistence is the whole set: load everything, rewrite
// everything, one writer.
type Store interface {
	LoadAll() ([]*models.Position, error)
	RewriteAll([]*models.Position) error
}

// FileStore keeps positions in one JSON file. Rewrites go through a temp
// file in the same directory followed by a rename, so a crash mid-write
// never leaves a torn file behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LoadAll() ([]*models.Position, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading positions file: %w", err)
	}

	var out []*models.Position
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding positions file: %w", err)
	}
	return out, nil
}

func (s *FileStore) RewriteAll(positions []*models.Position) error {
	if positions == nil {
		positions = []*models.Position{}
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating positions directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".positions-*.json")
	if err != nil {
		return fmt.Errorf("creating temp positions file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp positions file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing positions file: %w", err)
	}
	return nil
}
