package security

import (
	"regexp"
	"strings"
)

// CatalogVersion tracks the pattern database version. Bump it whenever a
// pattern is added, removed or its expression changes.
const CatalogVersion = "2026.10"

// Pattern is one named detection rule.
//
// Patterns are matched case-insensitively unless CaseSensitive is set.
// They are immutable after the catalog is built and safe for concurrent use.
type Pattern struct {
	// ID is the stable rule identifier (e.g. DES-001).
	ID string

	// Name is a short human label used in check messages.
	Name string

	// Expr is the RE2 expression.
	Expr string

	CaseSensitive bool

	re *regexp.Regexp
}

// Regexp returns the compiled expression.
func (p *Pattern) Regexp() *regexp.Regexp { return p.re }

// Catalog is a named, ordered set of patterns.
type Catalog struct {
	Name     string
	Patterns []*Pattern
}

// Match is a single pattern hit.
type Match struct {
	Pattern *Pattern
	Text    string
}

// FindFirst returns the first pattern in catalog order that matches s.
func (c *Catalog) FindFirst(s string) (Match, bool) {
	for _, p := range c.Patterns {
		if m := p.re.FindString(s); m != "" {
			return Match{Pattern: p, Text: m}, true
		}
	}
	return Match{}, false
}

// FindAll returns one match per pattern that matches s.
func (c *Catalog) FindAll(s string) []Match {
	var out []Match
	for _, p := range c.Patterns {
		if m := p.re.FindString(s); m != "" {
			out = append(out, Match{Pattern: p, Text: m})
		}
	}
	return out
}

func newCatalog(name string, patterns []*Pattern) *Catalog {
	for _, p := range patterns {
		expr := p.Expr
		if !p.CaseSensitive {
			expr = "(?i)" + expr
		}
		p.re = regexp.MustCompile(expr)
	}
	return &Catalog{Name: name, Patterns: patterns}
}

// Privilege escalation.
var SudoCatalog = newCatalog("sudo", []*Pattern{
	{ID: "PRV-001", Name: "sudo", Expr: `\bsudo\b`},
	{ID: "PRV-002", Name: "su to another user", Expr: `(?:^|[;&|(]\s*|\s)su(?:\s+-\w*|\s+root\b|\s*$)`},
	{ID: "PRV-003", Name: "doas", Expr: `\bdoas\b`},
	{ID: "PRV-004", Name: "pkexec", Expr: `\bpkexec\b`},
})

// NetworkToolCatalog identifies commands that reach the network. Whether
// the target is external is decided separately by host extraction.
var NetworkToolCatalog = newCatalog("network_tool", []*Pattern{
	{ID: "NET-001", Name: "curl", Expr: `\bcurl\b`},
	{ID: "NET-002", Name: "wget", Expr: `\bwget\b`},
	{ID: "NET-003", Name: "fetch", Expr: `(?:^|[;&|(]\s*|\s)fetch\s`},
	{ID: "NET-004", Name: "httpie", Expr: `(?:^|[;&|(]\s*|\s)https?\s+(?:get|post|put|delete|patch)?\s*\S+\.\S+`},
	{ID: "NET-005", Name: "powershell web request", Expr: `\b(?:invoke-webrequest|invoke-restmethod|iwr|irm)\b`},
})

// UploadFlagCatalog matches curl/wget options that send local data.
var UploadFlagCatalog = newCatalog("upload_flag", []*Pattern{
	{ID: "UPL-001", Name: "curl data flag", Expr: `(?:^|\s)(?:-d|--data(?:-binary|-raw|-urlencode|-ascii)?|--json)(?:\s|=|$)`, CaseSensitive: true},
	{ID: "UPL-002", Name: "curl form flag", Expr: `(?:^|\s)(?:-F|--form(?:-string)?)(?:\s|=|$)`, CaseSensitive: true},
	{ID: "UPL-003", Name: "curl upload flag", Expr: `(?:^|\s)(?:-T|--upload-file)(?:\s|=|$)`, CaseSensitive: true},
	{ID: "UPL-004", Name: "explicit POST/PUT", Expr: `(?:^|\s)(?:-X|--request)\s*=?\s*['"]?(?i:post|put|patch)\b`, CaseSensitive: true},
	{ID: "UPL-005", Name: "wget post", Expr: `--post-(?:data|file)\b|--body-(?:data|file)\b|--method\s*=?\s*(?:post|put)\b`},
})

// ExfiltrationCatalog covers channels that do not depend on the target host.
var ExfiltrationCatalog = newCatalog("exfiltration", []*Pattern{
	{ID: "EXF-001", Name: "netcat", Expr: `(?:^|[;&|(]\s*|\s)(?:nc|ncat|netcat|socat)\s`},
	{ID: "EXF-002", Name: "python http one-liner", Expr: `\bpython[0-9.]*\s+-c\s+.*\b(?:requests|urllib|http\.client|socket|httpx)\b`},
	{ID: "EXF-003", Name: "node http one-liner", Expr: `\bnode\s+(?:-e|--eval)\s+.*\b(?:https?\.request|fetch|axios|net\.connect)\b`},
	{ID: "EXF-004", Name: "ruby http one-liner", Expr: `\bruby\s+-e\s+.*\b(?:net/http|open-uri|socket)\b`},
	{ID: "EXF-005", Name: "perl http one-liner", Expr: `\bperl\s+-e\s+.*\b(?:lwp|io::socket|http::tiny)\b`},
	{ID: "EXF-006", Name: "php http one-liner", Expr: `\bphp\s+-r\s+.*\b(?:curl_exec|fsockopen|file_get_contents\s*\(\s*['"]https?:)`},
	{ID: "EXF-007", Name: "base64 piped to network", Expr: `\bbase64\b.*\|\s*(?:curl|wget|nc|ncat|netcat|socat)\b`},
	{ID: "EXF-008", Name: "/dev/tcp redirection", Expr: `/dev/(?:tcp|udp)/`},
	{ID: "EXF-009", Name: "remote copy", Expr: `\b(?:scp|rsync)\s+.*\s\S+@[^\s:]+:`},
})

// DestructiveCatalog covers irreversible file-system, device and data operations.
var DestructiveCatalog = newCatalog("destructive", []*Pattern{
	{ID: "DES-001", Name: "rm -rf", Expr: rmRecursiveForce()},
	{ID: "DES-002", Name: "dd to device", Expr: `\bdd\s+.*\bof=/dev/`},
	{ID: "DES-003", Name: "mkfs", Expr: `\bmkfs(?:\.\w+)?\b`},
	{ID: "DES-004", Name: "format drive", Expr: `\bformat\s+[a-z]:`},
	{ID: "DES-005", Name: "SQL drop/truncate", Expr: `\b(?:drop\s+(?:table|database|schema)|truncate\s+table)\b`},
	{ID: "DES-006", Name: "git reset --hard", Expr: `\bgit\s+reset\b[^;&|]*\s--hard\b`},
	{ID: "DES-007", Name: "git clean -f", Expr: `\bgit\s+clean\b[^;&|]*\s(?:-[a-z]*f[a-z]*|--force)\b`},
	{ID: "DES-008", Name: "recursive chmod/chown on /", Expr: `\bch(?:mod|own|grp)\s+(?:\S+\s+)*(?:-[a-z]*r[a-z]*|--recursive)\s+(?:\S+\s+)*/\*?(?:\s|$|;|&|\|)`},
	{ID: "DES-009", Name: "shred/wipefs", Expr: `\b(?:shred|wipefs)\b`},
	{ID: "DES-010", Name: "fork bomb", Expr: `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`},
	{ID: "DES-011", Name: "raw device write", Expr: `>\s*/dev/(?:sd[a-z]|nvme\d|hd[a-z]|disk\d)`},
})

// rmRecursiveForce matches rm with both recursive and force flags, in any
// order and whether combined (-rf, -fR, -rvf) or separate (-r -f, --force -r).
func rmRecursiveForce() string {
	rec := `(?:-[a-z]*r[a-z]*|--recursive)`
	force := `(?:-[a-z]*f[a-z]*|--force)`
	flags := `(?:-\S+\s+)*`
	return `\brm\s+` + flags + `(?:` + strings.Join([]string{
		`-[a-z]*r[a-z]*f`,
		`-[a-z]*f[a-z]*r`,
		rec + `\s+` + flags + force,
		force + `\s+` + flags + rec,
	}, "|") + `)`
}

// SecretCatalog detects credentials leaked into agent output. Vendor
// prefixes come before the generic key=value rule so reports name the
// most specific kind.
var SecretCatalog = newCatalog("secrets", []*Pattern{
	{ID: "SEC-001", Name: "anthropic api key", Expr: `\bsk-ant-[a-z0-9_\-]{20,}`},
	{ID: "SEC-002", Name: "openai api key", Expr: `\bsk-(?:proj-|svcacct-)?[a-z0-9_\-]{20,}`},
	{ID: "SEC-003", Name: "aws access key id", Expr: `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`, CaseSensitive: true},
	{ID: "SEC-004", Name: "github token", Expr: `\b(?:gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,})`, CaseSensitive: true},
	{ID: "SEC-005", Name: "slack token", Expr: `\bxox[abprs]-[a-z0-9\-]{10,}`},
	{ID: "SEC-006", Name: "pem private key", Expr: `-----BEGIN (?:[A-Z]+ )*PRIVATE KEY-----`},
	{ID: "SEC-007", Name: "bearer token", Expr: `\bbearer\s+[a-z0-9._\-~+/]{20,}=*`},
	{ID: "SEC-008", Name: "generic secret assignment", Expr: `\b(?:api[_-]?key|secret(?:[_-]?key)?|access[_-]?token|auth[_-]?token|password|passwd|client[_-]?secret)\s*[:=]\s*['"]?[a-z0-9_\-/+=.]{8,}`},
})

// PromptInjectionCatalog detects instruction-override markers in output.
var PromptInjectionCatalog = newCatalog("prompt_injection", []*Pattern{
	{ID: "INJ-001", Name: "ignore previous instructions", Expr: `\b(?:ignore|disregard|forget|override)\s+(?:all\s+)?(?:of\s+)?(?:the\s+|your\s+)?(?:previous|prior|above|earlier|preceding)\s+(?:instructions|prompts?|rules|directions)`},
	{ID: "INJ-002", Name: "role hijack", Expr: `\byou\s+are\s+(?:now|no\s+longer)\s+(?:dan\b|in\s+developer\s+mode|an?\s+(?:unrestricted|unfiltered|jailbroken)|bound\s+by)`},
	{ID: "INJ-003", Name: "system prompt override", Expr: `\b(?:new|updated|override)\s+system\s+(?:prompt|instructions)\s*:`},
	{ID: "INJ-004", Name: "chatml token", Expr: `<\|(?:im_start|im_end|system|endoftext)\|>`},
	{ID: "INJ-005", Name: "llama instruction token", Expr: `\[/?INST\]|<</?SYS>>`},
})
