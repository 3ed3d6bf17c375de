// Package store implements the key-value snapshot store described in §6:
// get/put/delete keyed by room id plus a prefix listing used by the room
// registry. Snapshots are opaque bytes to the store; handengine.Room never
// appears in this package's API.
//
// Grounded on internal/server/hand_history's Manager: a mutex-guarded map
// plus file persistence, generalized from "flush hand-history files" into
// "hold the latest snapshot per room and write it through to disk on every
// Put" since this module drops per-event history (§1 Non-goals) in favor of
// whole-room snapshots. There is no background or interval flush.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemroom/fileutil"
)

// ErrNotFound is returned by Get when no snapshot exists for a key.
var ErrNotFound = errors.New("store: snapshot not found")

// Store is the persistence contract §6 requires of the RoomCoordinator's
// collaborator: atomic snapshot writes keyed by room id, shared across
// coordinators.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, snapshot []byte) error
	Delete(ctx context.Context, key string) error
	ListWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Memory is an in-process Store. It is the default for tests and for
// single-process deployments; DiskBacked layers a write-through file copy
// on top of it for process-restart durability.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Put(_ context.Context, key string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	m.data[key] = cp
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) ListWithPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DiskBacked wraps a Memory store and mirrors every write to a JSON file
// under baseDir, one file per key. It loads existing files at construction
// so a process restart recovers the last snapshot of every room, matching
// the coordinator's "reloaded from the last successful snapshot" recovery
// path (§7).
type DiskBacked struct {
	mem     *Memory
	baseDir string
	logger  *log.Logger
}

// NewDiskBacked opens (or creates) baseDir and loads any snapshots found
// there into memory.
func NewDiskBacked(baseDir string, logger *log.Logger) (*DiskBacked, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	d := &DiskBacked{mem: NewMemory(), baseDir: baseDir, logger: logger}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(baseDir, e.Name()))
		if err != nil {
			if logger != nil {
				logger.Warn("skipping unreadable snapshot file", "file", e.Name(), "err", err)
			}
			continue
		}
		key := decodeFileKey(strings.TrimSuffix(e.Name(), ".json"))
		d.mem.data[key] = raw
	}
	return d, nil
}

func (d *DiskBacked) Get(ctx context.Context, key string) ([]byte, error) {
	return d.mem.Get(ctx, key)
}

func (d *DiskBacked) Put(ctx context.Context, key string, snapshot []byte) error {
	if err := d.mem.Put(ctx, key, snapshot); err != nil {
		return err
	}
	path := filepath.Join(d.baseDir, encodeFileKey(key)+".json")
	return fileutil.WriteFileAtomic(path, snapshot, 0o644)
}

func (d *DiskBacked) Delete(ctx context.Context, key string) error {
	if err := d.mem.Delete(ctx, key); err != nil {
		return err
	}
	path := filepath.Join(d.baseDir, encodeFileKey(key)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *DiskBacked) ListWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return d.mem.ListWithPrefix(ctx, prefix)
}

// encodeFileKey/decodeFileKey assume keys are "room:<id>" with no
// underscores in <id> (true for the uuid.NewString ids this module mints).
func encodeFileKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

func decodeFileKey(name string) string {
	return strings.Replace(name, "_", ":", 1)
}

// Encode marshals any snapshot-shaped value (e.g. room.RoomSnapshot) into the
// opaque bytes the Store contract expects.
func Encode(v any) ([]byte, error) { return json.Marshal(v) }

// Decode is Encode's inverse.
func Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
