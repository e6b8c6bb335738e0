package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// FileRegistry is a disk-backed Registry (definePipeline/deletePipeline),
// persisted the same way the memory store is: a single JSON file written
// atomically via renameio (ManuGH-xg2g's internal/jobs/write_unix.go
// pattern).
type FileRegistry struct {
	mu   sync.RWMutex
	path string
	defs map[string]Definition
}

// OpenRegistry loads path if present, starting empty otherwise.
func OpenRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path, defs: make(map[string]Definition)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read pipeline registry: %w", err)
	}
	if len(raw) == 0 {
		return r, nil
	}
	var defs map[string]Definition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode pipeline registry: %w", err)
	}
	r.defs = defs
	return r, nil
}

// Get returns a pipeline definition by name.
func (r *FileRegistry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// List returns every registered pipeline (listPipelines tool).
func (r *FileRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// Define upserts a pipeline and persists the registry.
func (r *FileRegistry) Define(def Definition) error {
	r.mu.Lock()
	r.defs[def.Name] = def
	snapshot := r.cloneLocked()
	r.mu.Unlock()
	return r.save(snapshot)
}

// Delete removes a pipeline and persists the registry. Returns false if
// the name was not registered.
func (r *FileRegistry) Delete(name string) (bool, error) {
	r.mu.Lock()
	_, existed := r.defs[name]
	delete(r.defs, name)
	snapshot := r.cloneLocked()
	r.mu.Unlock()
	if !existed {
		return false, nil
	}
	return true, r.save(snapshot)
}

func (r *FileRegistry) cloneLocked() map[string]Definition {
	out := make(map[string]Definition, len(r.defs))
	for k, v := range r.defs {
		out[k] = v
	}
	return out
}

func (r *FileRegistry) save(snapshot map[string]Definition) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pipeline registry: %w", err)
	}
	pending, err := renameio.NewPendingFile(r.path)
	if err != nil {
		return fmt.Errorf("create pending pipeline registry file: %w", err)
	}
	defer pending.Cleanup()
	if _, err := pending.Write(raw); err != nil {
		return fmt.Errorf("write pipeline registry: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}
