package supervisor

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// BuildEnvironment returns the variables set for one launch attempt: the
// template's extra environment plus the port variable, which always wins
func BuildEnvironment(t LaunchTemplate, port int) map[string]string {
	env := make(map[string]string, len(t.Environment)+1)
	maps.Copy(env, t.Environment)

	name := t.PortVariable
	if name == "" {
		name = DefaultPortVariable
	}
	env[name] = strconv.Itoa(port)
	return env
}

// environ merges overrides into a KEY=VALUE list, dropping base entries that
// are overridden. Overrides are appended in sorted order.
func environ(base []string, overrides map[string]string) []string {
	result := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		result = append(result, kv)
	}
	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		result = append(result, key+"="+overrides[key])
	}
	return result
}
