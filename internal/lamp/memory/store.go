// Package memory implements the agent-facing long-term memory store
// (spec.md §4.G: remember/recall/forgetMemory/listMemory): a flat
// key/value map persisted to a single JSON file with atomic, durable
// writes. Grounded on ManuGH-xg2g's internal/jobs/write_unix.go pattern
// (renameio.NewPendingFile + CloseAtomicallyReplace), adapted from
// playlist/XMLTV payloads to a JSON map.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// Store is a thread-safe, disk-backed key/value memory.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

// Open loads path if it exists, or starts empty if it does not. Remember
// and Forget persist every change to path themselves.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]string)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode memory file: %w", err)
	}
	return s, nil
}

// Remember stores value under key and persists the whole store.
func (s *Store) Remember(key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	snapshot := s.cloneLocked()
	s.mu.Unlock()
	return s.save(snapshot)
}

// Recall returns the value stored under key.
func (s *Store) Recall(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Forget removes key and persists the change. Returns false if key was
// not present.
func (s *Store) Forget(key string) (bool, error) {
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	snapshot := s.cloneLocked()
	s.mu.Unlock()
	if !existed {
		return false, nil
	}
	return true, s.save(snapshot)
}

// List returns every key/value pair (listMemory tool).
func (s *Store) List() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocked()
}

func (s *Store) cloneLocked() map[string]string {
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

func (s *Store) save(snapshot map[string]string) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory file: %w", err)
	}
	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("create pending memory file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(raw); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace memory file: %w", err)
	}
	return nil
}
