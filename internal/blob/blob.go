// Package blob stores content-addressed payloads (lesson material,
// diploma attachments) outside the relational tables. Keys are content
// ids, so a payload can never change under its key and Put is
// idempotent.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/slonigiraf/slonledger/internal/record"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("blob: not found")

// Store reads and writes content-addressed blobs.
type Store interface {
	// Put stores data and returns its content id. Storing the same
	// bytes twice returns the same id and writes nothing new.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes for a content id, or ErrNotFound.
	Get(ctx context.Context, cid string) ([]byte, error)
}

// Memory is an in-process Store for tests and ephemeral sessions.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	cid := record.ContentID(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[cid]; !ok {
		buf := make([]byte, len(data))
		copy(buf, data)
		m.blobs[cid] = buf
	}
	return cid, nil
}

func (m *Memory) Get(_ context.Context, cid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[cid]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// validCID matches the hex content ids this package writes. Dir uses
// it to reject path-traversal keys before touching the filesystem.
var validCID = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Dir is a filesystem Store, one file per blob under a flat directory.
type Dir struct {
	root string
}

// NewDir creates the directory if needed and returns a store over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(cid string) string {
	return filepath.Join(d.root, cid)
}

func (d *Dir) Put(_ context.Context, data []byte) (string, error) {
	cid := record.ContentID(data)
	path := d.path(cid)
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}

	// Write-then-rename so a crash never leaves a truncated blob
	// under a valid content id.
	tmp, err := os.CreateTemp(d.root, ".put-*")
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("put blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("put blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("put blob: %w", err)
	}
	return cid, nil
}

func (d *Dir) Get(_ context.Context, cid string) ([]byte, error) {
	if !validCID.MatchString(cid) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(d.path(cid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}
