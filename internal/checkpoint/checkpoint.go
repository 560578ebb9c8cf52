// Package checkpoint implements the persistence backend the service façade
// delegates Checkpoint/startup-load to. The spec treats the Checkpointer as
// an external collaborator; FileCheckpointer is the minimal concrete
// backend that makes the service runnable end to end.
package checkpoint

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cartridge/replay/internal/item"
	"github.com/cartridge/replay/internal/table"
)

// ErrNotFound is returned by LoadLatest/LoadFallback when no checkpoint
// exists at the configured location.
var ErrNotFound = errors.New("checkpoint: not found")

// snapshotter is implemented by concrete Tables (such as
// *table.PriorityTable) that support being checkpointed.
type snapshotter interface {
	Snapshot() []*item.Item
	Restore(items []*item.Item) error
}

// Checkpointer is the persistence collaborator used by the service façade.
type Checkpointer interface {
	// LoadLatest restores every table present in tables (keyed by name)
	// from the newest checkpoint found. Returns ErrNotFound if none exists.
	LoadLatest(tables map[string]table.Table) error

	// LoadFallback is attempted when LoadLatest reports ErrNotFound.
	LoadFallback(tables map[string]table.Table) error

	// Save snapshots every table and returns the path written.
	Save(tables map[string]table.Table, generation int) (string, error)
}

// FileCheckpointer persists one gob-encoded snapshot file per table per
// generation under Dir, and optionally consults a read-only FallbackDir
// seeded by a previous experiment.
type FileCheckpointer struct {
	mu          sync.Mutex
	Dir         string
	FallbackDir string
}

// New creates a FileCheckpointer rooted at dir, with an optional fallback
// directory (empty string disables the fallback).
func New(dir, fallbackDir string) *FileCheckpointer {
	return &FileCheckpointer{Dir: dir, FallbackDir: fallbackDir}
}

func (c *FileCheckpointer) LoadLatest(tables map[string]table.Table) error {
	return c.load(c.Dir, tables)
}

func (c *FileCheckpointer) LoadFallback(tables map[string]table.Table) error {
	if c.FallbackDir == "" {
		return ErrNotFound
	}
	return c.load(c.FallbackDir, tables)
}

func (c *FileCheckpointer) Save(tables map[string]table.Table, generation int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: create dir: %w", err)
	}
	if latest, err := latestGeneration(c.Dir); err == nil && generation <= latest {
		generation = latest + 1
	}
	genDir := filepath.Join(c.Dir, strconv.Itoa(generation))
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: create generation dir: %w", err)
	}

	var g errgroup.Group
	for name, t := range tables {
		name, t := name, t
		snap, ok := t.(snapshotter)
		if !ok {
			return "", fmt.Errorf("checkpoint: table %q does not support snapshotting", name)
		}
		g.Go(func() error {
			if err := writeGob(filepath.Join(genDir, name+".gob"), snap.Snapshot()); err != nil {
				return fmt.Errorf("checkpoint: save table %q: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return genDir, nil
}

func (c *FileCheckpointer) load(dir string, tables map[string]table.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dir == "" {
		return ErrNotFound
	}
	gen, err := latestGeneration(dir)
	if err != nil {
		return err
	}
	genDir := filepath.Join(dir, strconv.Itoa(gen))

	var g errgroup.Group
	for name, t := range tables {
		name, t := name, t
		snap, ok := t.(snapshotter)
		if !ok {
			continue
		}
		g.Go(func() error {
			path := filepath.Join(genDir, name+".gob")
			items, err := readGob(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("checkpoint: load table %q: %w", name, err)
			}
			if err := snap.Restore(items); err != nil {
				return fmt.Errorf("checkpoint: restore table %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func latestGeneration(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("checkpoint: list %q: %w", dir, err)
	}
	best := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(e.Name())); err == nil && n > best {
			best = n
		}
	}
	if best < 0 {
		return 0, ErrNotFound
	}
	return best, nil
}

func writeGob(path string, items []*item.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(items)
}

func readGob(path string) ([]*item.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var items []*item.Item
	if err := gob.NewDecoder(f).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}
