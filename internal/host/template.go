package host

import (
	"maps"
	"slices"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/supervisor"
)

// BuildLaunchTemplate turns the backend configuration into the template the
// supervisor launches: runtime, runtime arguments, then the entry point, run
// from the engine directory
func BuildLaunchTemplate(b core.BackendConfig) supervisor.LaunchTemplate {
	args := slices.Concat(b.Args, []string{b.EntryPointPath()})

	env := maps.Clone(b.Environment)
	if env == nil {
		env = make(map[string]string)
	}

	return supervisor.LaunchTemplate{
		Executable:   b.RuntimePath(),
		Args:         args,
		Dir:          b.EngineDirPath(),
		Environment:  env,
		PortVariable: b.PortVariable,
	}
}
