package security

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxPatternLength bounds caller-supplied forbidden patterns.
const MaxPatternLength = 1000

// Violation is one offending command, path or output fragment.
type Violation struct {
	// Rule is the pattern ID or a short rule name.
	Rule string
	// Subject is the command or path that triggered the rule. For output
	// scans it is empty.
	Subject string
	// Evidence is the matched text, already redacted where it may be sensitive.
	Evidence string
}

func (v Violation) String() string {
	if v.Subject == "" {
		return fmt.Sprintf("[%s] %s", v.Rule, v.Evidence)
	}
	return fmt.Sprintf("[%s] %s", v.Rule, v.Subject)
}

// FindSudo reports privilege-escalation commands.
func FindSudo(commands []string) []Violation {
	return scanCommands(SudoCatalog, commands)
}

// FindDestructive reports irreversible file-system, device and data commands.
func FindDestructive(commands []string) []Violation {
	return scanCommands(DestructiveCatalog, commands)
}

// FindExternalNetwork reports network tool invocations whose target is not
// a loopback host.
func FindExternalNetwork(commands []string) []Violation {
	var out []Violation
	for _, cmd := range commands {
		m, ok := NetworkToolCatalog.FindFirst(cmd)
		if !ok {
			continue
		}
		for _, host := range ExtractHosts(cmd) {
			if !IsLocalHost(host) {
				out = append(out, Violation{Rule: m.Pattern.ID, Subject: cmd, Evidence: host})
				break
			}
		}
	}
	return out
}

// FindExfiltration reports commands that ship local data off the machine:
// uploads to non-local hosts plus host-independent channels such as netcat
// or /dev/tcp.
func FindExfiltration(commands []string) []Violation {
	var out []Violation
	for _, cmd := range commands {
		if m, ok := ExfiltrationCatalog.FindFirst(cmd); ok {
			out = append(out, Violation{Rule: m.Pattern.ID, Subject: cmd, Evidence: m.Text})
			continue
		}
		if _, ok := NetworkToolCatalog.FindFirst(cmd); !ok {
			continue
		}
		up, ok := UploadFlagCatalog.FindFirst(cmd)
		if !ok {
			continue
		}
		for _, host := range ExtractHosts(cmd) {
			if !IsLocalHost(host) {
				out = append(out, Violation{Rule: up.Pattern.ID, Subject: cmd, Evidence: host})
				break
			}
		}
	}
	return out
}

// FindSecrets scans output for credentials. Evidence carries a redacted
// preview, never the full secret.
func FindSecrets(output string) []Violation {
	var out []Violation
	for _, m := range SecretCatalog.FindAll(output) {
		out = append(out, Violation{Rule: m.Pattern.ID, Evidence: m.Pattern.Name + ": " + Redact(m.Text)})
	}
	return out
}

// FindPromptInjection scans output for instruction-override markers.
func FindPromptInjection(output string) []Violation {
	var out []Violation
	for _, m := range PromptInjectionCatalog.FindAll(output) {
		out = append(out, Violation{Rule: m.Pattern.ID, Evidence: truncate(m.Text, 80)})
	}
	return out
}

// FindForbidden matches caller-supplied patterns against commands. Patterns
// are case-insensitive. An invalid or oversized pattern is returned as an
// error so the caller can report it instead of silently skipping it.
func FindForbidden(commands, patterns []string) ([]Violation, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > MaxPatternLength {
			return nil, fmt.Errorf("forbidden pattern exceeds maximum length: %d > %d", len(p), MaxPatternLength)
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	var out []Violation
	for _, cmd := range commands {
		for i, re := range compiled {
			if m := re.FindString(cmd); m != "" {
				out = append(out, Violation{Rule: patterns[i], Subject: cmd, Evidence: m})
				break
			}
		}
	}
	return out, nil
}

var commandSeparator = regexp.MustCompile(`&&|\|\||;|\||\n`)

// FindDisallowed reports every command segment that does not start with one
// of the allowed prefixes. Chained commands are split on &&, ||, ; and |
// so "npm test && curl evil" cannot ride on an allowed first segment.
func FindDisallowed(commands, allowed []string) []Violation {
	var out []Violation
	for _, cmd := range commands {
		for _, seg := range commandSeparator.Split(cmd, -1) {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			if !hasAllowedPrefix(seg, allowed) {
				out = append(out, Violation{Rule: "allowed_commands_only", Subject: cmd, Evidence: seg})
				break
			}
		}
	}
	return out
}

func hasAllowedPrefix(seg string, allowed []string) bool {
	lower := strings.ToLower(seg)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if lower == a {
			return true
		}
		if strings.HasPrefix(lower, a) {
			next := lower[len(a)]
			if strings.HasSuffix(a, " ") || next == ' ' || next == '\t' {
				return true
			}
		}
	}
	return false
}

// FindPathTraversal reports paths containing a ".." segment, after
// percent-decoding (so %2e%2e and %2e%2e%2f are caught).
func FindPathTraversal(paths []string) []Violation {
	var out []Violation
	for _, p := range paths {
		if HasTraversal(p) {
			out = append(out, Violation{Rule: "path_traversal", Subject: p})
		}
	}
	return out
}

// HasTraversal reports whether p contains a ".." path segment.
func HasTraversal(p string) bool {
	decoded := DecodePath(p)
	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// DecodePath percent-decodes p repeatedly (to defeat double encoding) and
// folds backslashes to slashes.
func DecodePath(p string) string {
	for range 3 {
		next, err := url.PathUnescape(p)
		if err != nil {
			next = decodeDotsAndSlashes(p)
		}
		if next == p {
			break
		}
		p = next
	}
	return strings.ReplaceAll(p, "\\", "/")
}

var dotSlashEscapes = strings.NewReplacer(
	"%2e", ".", "%2E", ".",
	"%2f", "/", "%2F", "/",
	"%5c", "\\", "%5C", "\\",
)

// decodeDotsAndSlashes handles strings that are not valid percent-encoding
// as a whole but still carry encoded traversal characters.
func decodeDotsAndSlashes(p string) string {
	return dotSlashEscapes.Replace(p)
}

// FindOutsideRoot reports absolute paths that do not lie within root after
// cleaning and symlink resolution. Relative paths are left to
// FindPathTraversal.
func FindOutsideRoot(paths []string, root string) []Violation {
	roots := sandboxRoots(root)
	var out []Violation
	for _, p := range paths {
		decoded := DecodePath(p)
		if !filepath.IsAbs(decoded) {
			continue
		}
		clean := filepath.Clean(decoded)
		candidates := []string{clean, resolveExisting(clean)}
		if !withinAny(candidates, roots) {
			out = append(out, Violation{Rule: "absolute_path_outside_cwd", Subject: p, Evidence: clean})
		}
	}
	return out
}

// sandboxRoots returns the absolute root and, when different, its
// symlink-resolved form.
func sandboxRoots(root string) []string {
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	roots := []string{abs}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != abs {
		roots = append(roots, resolved)
	}
	return roots
}

// resolveExisting resolves symlinks on the longest existing prefix of p and
// re-appends the rest, so paths to files that no longer exist still resolve.
func resolveExisting(p string) string {
	var rest []string
	cur := p
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func withinAny(candidates, roots []string) bool {
	for _, c := range candidates {
		for _, r := range roots {
			if c == r || strings.HasPrefix(c, strings.TrimSuffix(r, string(filepath.Separator))+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

var (
	schemeURL = regexp.MustCompile(`(?i)\b(?:https?|ftp|wss?)://[^\s'"<>|;&)]+`)
	bareHost  = regexp.MustCompile(`(?i)^(?:[a-z0-9-]+\.)+[a-z]{2,}(?::\d+)?(?:/\S*)?$|^localhost(?::\d+)?(?:/\S*)?$|^\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?(?:/\S*)?$`)
)

// flags whose next token is a value rather than a target host.
var valueFlags = map[string]bool{
	"-o": true, "--output": true, "-O": true, "--output-document": true,
	"-H": true, "--header": true, "-d": true, "--data": true, "--data-binary": true,
	"--data-raw": true, "--data-urlencode": true, "-F": true, "--form": true,
	"-X": true, "--request": true, "-u": true, "--user": true, "-A": true,
	"--user-agent": true, "-e": true, "--referer": true, "-T": true,
	"--upload-file": true, "-w": true, "--write-out": true, "-m": true,
	"--max-time": true, "--connect-timeout": true, "--retry": true,
	"-P": true, "--directory-prefix": true, "-U": true, "--post-data": true,
	"--post-file": true, "-t": true, "--tries": true, "-b": true, "--cookie": true,
	"-c": true, "--cookie-jar": true, "--json": true, "-x": true, "--proxy": true,
}

// ExtractHosts returns the hosts a network command targets. URLs with a
// scheme are preferred; otherwise bare host arguments are considered.
func ExtractHosts(cmd string) []string {
	var hosts []string
	for _, raw := range schemeURL.FindAllString(cmd, -1) {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	if len(hosts) > 0 {
		return hosts
	}

	fields := strings.Fields(cmd)
	for i := 0; i < len(fields); i++ {
		tok := strings.Trim(fields[i], `'"`)
		if strings.HasPrefix(tok, "-") {
			if valueFlags[tok] {
				i++
			}
			continue
		}
		if !bareHost.MatchString(tok) {
			continue
		}
		if u, err := url.Parse("http://" + tok); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}

// IsLocalHost reports whether host refers to this machine.
func IsLocalHost(host string) bool {
	h := strings.ToLower(strings.Trim(host, "[]"))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// Redact returns a short preview of a sensitive value: at most the first
// four characters followed by a mask. Short values are fully masked.
func Redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

func scanCommands(c *Catalog, commands []string) []Violation {
	var out []Violation
	for _, cmd := range commands {
		if m, ok := c.FindFirst(cmd); ok {
			out = append(out, Violation{Rule: m.Pattern.ID, Subject: cmd, Evidence: m.Text})
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
