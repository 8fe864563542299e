// Package local implements a filesystem-backed key/value store. Each key is
// written to its own file named after the SHA-256 of the key.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/JakeFAU/linkmeta/internal/hash/sha256"
	"github.com/JakeFAU/linkmeta/internal/store"
)

const fileExt = ".json"

var errNoSpace error = syscall.ENOSPC

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where entries are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store persists entries as JSON files under a base directory.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	hasher  *sha256.KeyHasher
}

type record struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// New creates a new filesystem-backed store, creating BaseDir when needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{
		baseDir: filepath.Clean(cfg.BaseDir),
		hasher:  sha256.New(fileExt),
	}, nil
}

// Get reads the entry file for key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.read(s.path(key))
	if err != nil {
		return nil, err
	}
	if rec.Key != key {
		// digest collision or a foreign file; treat as absent
		return nil, store.ErrNotFound
	}
	return rec.Value, nil
}

// Set writes value atomically via a temp file and rename.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	payload, err := json.Marshal(record{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.path(key)
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return wrapWriteErr(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return wrapWriteErr(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}

// Delete removes the entry file for key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// Keys scans the base directory and returns keys starting with prefix.
func (s *Store) Keys(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var keys []string
	for _, name := range names {
		rec, err := s.read(filepath.Join(s.baseDir, name))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		keys = append(keys, rec.Key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.baseDir, s.hasher.Name(key))
}

func (s *Store) read(path string) (record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest inside baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return record{}, store.ErrNotFound
		}
		return record{}, fmt.Errorf("read entry: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("decode entry: %w", err)
	}
	return rec, nil
}

func wrapWriteErr(err error) error {
	if errors.Is(err, errNoSpace) {
		return fmt.Errorf("write entry: %w", store.ErrQuotaExceeded)
	}
	return fmt.Errorf("write entry: %w", err)
}
