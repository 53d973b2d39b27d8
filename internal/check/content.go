package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/skilleval/engine/pkg/types"
)

// maxFileRead bounds how much of a file the content checks inspect.
const maxFileRead = 10 << 20

func checkFileContains(_ context.Context, env *Env) []types.CheckResult {
	const name = "file_contains"
	var problems []string
	for _, path := range sortedKeys(env.Spec.FileContains) {
		content, err := readFile(env.Cwd, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				problems = append(problems, fmt.Sprintf("%s: file does not exist", path))
			} else {
				problems = append(problems, fmt.Sprintf("%s: %v", path, err))
			}
			continue
		}
		var missing []string
		for _, s := range env.Spec.FileContains[path] {
			if !strings.Contains(content, strings.ToLower(s)) {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s: missing %v", path, missing))
		}
	}
	expected := formatFileMap(env.Spec.FileContains)
	if len(problems) > 0 {
		return one(fail(name, expected, truncate(strings.Join(problems, "; "), maxReported), strings.Join(problems, "; ")))
	}
	return one(pass(name, expected, "all strings found", fmt.Sprintf("all %d files contain their expected strings", len(env.Spec.FileContains))))
}

// checkFileNotContains passes for files that do not exist: an absent file
// cannot contain the forbidden text.
func checkFileNotContains(_ context.Context, env *Env) []types.CheckResult {
	const name = "file_not_contains"
	var problems []string
	for _, path := range sortedKeys(env.Spec.FileNotContains) {
		content, err := readFile(env.Cwd, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			problems = append(problems, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		var found []string
		for _, s := range env.Spec.FileNotContains[path] {
			if strings.Contains(content, strings.ToLower(s)) {
				found = append(found, s)
			}
		}
		if len(found) > 0 {
			problems = append(problems, fmt.Sprintf("%s: contains %v", path, found))
		}
	}
	expected := "none of " + formatFileMap(env.Spec.FileNotContains)
	if len(problems) > 0 {
		return one(fail(name, expected, truncate(strings.Join(problems, "; "), maxReported), strings.Join(problems, "; ")))
	}
	return one(pass(name, expected, "no forbidden strings found", "no file contains its forbidden strings"))
}

// readFile returns the lower-cased content of path, resolved against cwd
// when relative.
func readFile(cwd, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxFileRead))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.ToLower(string(data)), nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatFileMap(m map[string][]string) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, k+": "+formatList(m[k]))
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
