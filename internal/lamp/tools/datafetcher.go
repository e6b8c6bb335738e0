package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adaptlight/lampcore/internal/lamp/apiexec"
)

// dataFetcher implements scheduler.ToolExecutor by routing a data source's
// named tool to whichever side defines it: a preset API first (apiexec's
// nine built-ins), falling back to an agent-defined CustomTool. This is
// the same two-namespace lookup createDataSource's doc string promises
// ("preset API or custom tool name").
type dataFetcher struct {
	apis  *apiexec.Executor
	tools *CustomToolRegistry
}

func (f *dataFetcher) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if f.apis != nil {
		for _, preset := range f.apis.Names() {
			if preset == name {
				result, err := f.apis.Call(ctx, name, args)
				if err != nil {
					return nil, err
				}
				return json.Marshal(result)
			}
		}
	}
	if f.tools != nil {
		if _, ok := f.tools.Get(name); ok {
			return f.tools.CallTool(ctx, name, args)
		}
	}
	return nil, fmt.Errorf("no preset API or custom tool named %q", name)
}
