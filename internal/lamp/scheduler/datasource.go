package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/adaptlight/lampcore/internal/lamp/engine"
)

// ToolExecutor is the narrow tool-surface view the scheduler needs to run
// a data source's fetch step — the same contract a custom agent-defined
// tool registry satisfies (internal/lamp/tools.CustomToolRegistry.CallTool), kept here as its own
// interface to avoid importing the tools package.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// DataVarStore is the variable-store view store_mapping writes through.
type DataVarStore interface {
	Set(key string, value any)
}

// DataSource is a periodically polled external data feed (spec.md §4.E).
type DataSource struct {
	Name            string
	ToolName        string
	FetchArgs       map[string]any
	IntervalMs      int
	StoreMapping    map[string]string // result dotted path -> variable name
	FiresTransition string            // event name enqueued to the engine on success
	Timeout         time.Duration

	LastError string
}

const defaultDataSourceTimeout = 30 * time.Second

// RegisterDataSource adds a data source and starts its poller goroutine.
// Re-registering a name restarts the poller with the new definition.
func (s *Scheduler) RegisterDataSource(ds DataSource) {
	if ds.Timeout <= 0 {
		ds.Timeout = defaultDataSourceTimeout
	}

	s.dsMu.Lock()
	if cancel, ok := s.dsCancel[ds.Name]; ok {
		cancel()
	}
	cp := ds
	s.dataSources[ds.Name] = &cp
	ctx, cancel := context.WithCancel(context.Background())
	s.dsCancel[ds.Name] = cancel
	s.dsMu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(ctx, ds.Name)
}

// RemoveDataSource stops polling and forgets a data source.
func (s *Scheduler) RemoveDataSource(name string) {
	s.dsMu.Lock()
	defer s.dsMu.Unlock()
	if cancel, ok := s.dsCancel[name]; ok {
		cancel()
		delete(s.dsCancel, name)
	}
	delete(s.dataSources, name)
}

func (s *Scheduler) pollLoop(ctx context.Context, name string) {
	defer s.wg.Done()
	ds := s.dataSourceSnapshot(name)
	if ds == nil {
		return
	}
	ticker := time.NewTicker(time.Duration(ds.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDataSourceCycle(ctx, name)
		}
	}
}

func (s *Scheduler) dataSourceSnapshot(name string) *DataSource {
	s.dsMu.Lock()
	defer s.dsMu.Unlock()
	ds, ok := s.dataSources[name]
	if !ok {
		return nil
	}
	cp := *ds
	return &cp
}

// TriggerDataSource runs one fetch-and-store cycle immediately (spec.md
// §4.E "triggered on demand").
func (s *Scheduler) TriggerDataSource(ctx context.Context, name string) error {
	ds := s.dataSourceSnapshot(name)
	if ds == nil {
		return fmt.Errorf("data source %q not registered", name)
	}
	s.runDataSourceCycle(ctx, name)
	return nil
}

func (s *Scheduler) runDataSourceCycle(parent context.Context, name string) {
	ds := s.dataSourceSnapshot(name)
	if ds == nil || s.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, ds.Timeout)
	defer cancel()

	result, err := s.fetcher.CallTool(ctx, ds.ToolName, ds.FetchArgs)
	if err != nil {
		s.recordDataSourceError(name, err.Error())
		return
	}

	if s.varStore != nil {
		for path, varName := range ds.StoreMapping {
			value := gjson.GetBytes(result, path)
			if value.Exists() {
				s.varStore.Set(varName, value.Value())
			}
		}
	}

	if ds.FiresTransition != "" && s.engine != nil {
		if firer, ok := s.engine.(EventFirer); ok {
			if _, err := firer.ExecuteEvent(ctx, ds.FiresTransition); err != nil && s.logger != nil {
				s.logger.Warn(ctx, "data source transition event failed", "source", name, "error", err)
			}
		}
	}
}

func (s *Scheduler) recordDataSourceError(name, msg string) {
	s.dsMu.Lock()
	defer s.dsMu.Unlock()
	if ds, ok := s.dataSources[name]; ok {
		ds.LastError = msg
	}
}

// EventFirer is the engine surface for ordinary (non-targeted) event
// delivery, which data-source cycles use (as opposed to rule-targeted
// timer fires, which use RuleFirer).
type EventFirer interface {
	ExecuteEvent(ctx context.Context, event string) (engine.ExecuteResult, error)
}
