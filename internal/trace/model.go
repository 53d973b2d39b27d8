package trace

import (
	"path/filepath"
	"strings"

	"github.com/skilleval/engine/pkg/types"
)

// Basename strips directories from an adapter-reported path. Both slash
// styles are accepted since adapters may run on either platform.
func Basename(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// BasenameSet returns the set of basenames for the given paths.
func BasenameSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if b := Basename(p); b != "" {
			set[b] = struct{}{}
		}
	}
	return set
}

// TouchedPaths returns created then modified paths.
func TouchedPaths(t *types.Trace) []string {
	out := make([]string, 0, len(t.FilesCreated)+len(t.FilesModified))
	out = append(out, t.FilesCreated...)
	out = append(out, t.FilesModified...)
	return out
}

// ToolCallCount returns the number of tool invocations in the trace.
func ToolCallCount(t *types.Trace) int {
	return len(t.ToolCalls)
}

// ToolSet returns the distinct tool names invoked.
func ToolSet(t *types.Trace) map[string]struct{} {
	set := make(map[string]struct{}, len(t.ToolCalls))
	for _, name := range t.ToolCalls {
		set[name] = struct{}{}
	}
	return set
}
