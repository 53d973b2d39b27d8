package trace

import (
	"strings"

	"github.com/google/uuid"

	"github.com/skilleval/engine/pkg/types"
)

// Normalize trims identifiers, drops blank entries, de-duplicates the file
// sets (first occurrence wins) and assigns a session id when the adapter
// did not provide one.
func Normalize(t *types.Trace) {
	t.SessionID = strings.TrimSpace(t.SessionID)
	t.SkillName = strings.TrimSpace(t.SkillName)
	t.TestName = strings.TrimSpace(t.TestName)
	if t.SessionID == "" {
		t.SessionID = uuid.NewString()
	}

	t.ToolCalls = compact(t.ToolCalls, false)
	t.CommandsRan = compact(t.CommandsRan, false)
	t.FilesCreated = compact(t.FilesCreated, true)
	t.FilesModified = compact(t.FilesModified, true)
}

func compact(in []string, dedupe bool) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if dedupe {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}
