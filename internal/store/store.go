package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pavelanni/athena-playground/internal/model"
)

// DataURLPlaceholder is replaced in exercise and submission documents with
// the absolute URL under which the exercise directory can be downloaded.
const DataURLPlaceholder = "{{exerciseDataUrl}}"

// Store reads and writes fixture documents below a root directory with one
// subdirectory per data mode. There is no locking: concurrent writers to the
// same partition race and the last rename wins.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) partitionDir(mode model.DataMode) (string, error) {
	if _, err := model.ParseDataMode(string(mode)); err != nil {
		return "", err
	}
	return filepath.Join(s.root, string(mode)), nil
}

// requirePartition returns the partition directory or ErrNotFound.
func (s *Store) requirePartition(mode model.DataMode) (string, error) {
	dir, err := s.partitionDir(mode)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", fmt.Errorf("partition %s: %w", mode, model.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return dir, nil
}

// ListPartitions returns the data modes present on disk.
func (s *Store) ListPartitions() ([]model.DataMode, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var modes []model.DataMode
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mode, err := model.ParseDataMode(e.Name())
		if err != nil {
			continue
		}
		modes = append(modes, mode)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes, nil
}

// DeletePartition removes a partition and everything in it.
func (s *Store) DeletePartition(mode model.DataMode) error {
	dir, err := s.requirePartition(mode)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete partition %s: %w", mode, err)
	}
	slog.Info("deleted partition", "mode", mode)
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filepath.Base(path), model.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to path through a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
