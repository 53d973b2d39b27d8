package security_test

import (
	"strings"
	"testing"

	"github.com/skilleval/engine/internal/security"
)

// FuzzTraversalDecoding checks that encoded traversal cannot hide behind
// surrounding path components and that decoding never panics.
func FuzzTraversalDecoding(f *testing.F) {
	f.Add("../etc/passwd")
	f.Add("%2e%2e/etc/passwd")
	f.Add("%2E%2E%2Fetc")
	f.Add("%252e%252e%252f")
	f.Add(`..\..\boot.ini`)
	f.Add("a/b/c")
	f.Add("%zz/..")
	f.Add("")
	f.Add("%")

	f.Fuzz(func(t *testing.T, p string) {
		decoded := security.DecodePath(p)
		if strings.Contains(decoded, "\\") {
			t.Errorf("DecodePath left a backslash: input=%q decoded=%q", p, decoded)
		}

		if !security.HasTraversal(p) {
			return
		}
		wrapped := "x/" + p + "/y"
		if !security.HasTraversal(wrapped) {
			t.Errorf("traversal lost when wrapped: input=%q wrapped=%q", p, wrapped)
		}
		if len(security.FindPathTraversal([]string{"ok.txt", p})) != 1 {
			t.Errorf("FindPathTraversal disagrees with HasTraversal for %q", p)
		}
	})
}
