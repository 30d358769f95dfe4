// File: internal/bulk/sanitize.go
package bulk

import (
	"html"
	"regexp"
	"strings"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// fieldThreat pairs a matched pattern family with its report text.
type fieldThreat struct {
	threatType schemas.ThreatType
	message    string
}

// The four pattern families every field is scanned against.
var (
	sqlInjectionRe = regexp.MustCompile(`(?i)('|--|;|/\*|\*/|\bunion\b.*\bselect\b|\bselect\b.*\bfrom\b|\bdrop\s+table\b|\binsert\s+into\b|\bdelete\s+from\b|\bupdate\b.*\bset\b|\bexec(ute)?\b|\bxp_\w+)`)

	scriptInjectionRe = regexp.MustCompile(`(?i)(<\s*script|<\s*/\s*script|<\s*iframe|javascript\s*:|\bon(load|error|click|mouseover)\s*=|<\s*img\b[^>]*\bsrc|\balert\s*\(|document\s*\.\s*(cookie|write)|eval\s*\()`)

	pathTraversalRe = regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e|%252e|/etc/passwd|c:\\windows)`)

	commandInjectionRe = regexp.MustCompile("(?i)(\\$\\(|`|\\|\\||&&|;\\s*(rm|cat|ls|wget|curl|nc|bash|sh|powershell)\\b|\\b(rm|wget|curl|nc)\\s+-|>\\s*/dev/)")
)

var identifierCleanRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// scanField checks one field value against the four pattern families,
// returning the first match.
func scanField(value string) (fieldThreat, bool) {
	if value == "" {
		return fieldThreat{}, false
	}
	switch {
	case sqlInjectionRe.MatchString(value):
		return fieldThreat{schemas.ThreatSQLInjection, "SQL injection tokens detected"}, true
	case scriptInjectionRe.MatchString(value):
		return fieldThreat{schemas.ThreatScriptInjection, "script or HTML injection detected"}, true
	case pathTraversalRe.MatchString(strings.ToLower(value)):
		return fieldThreat{schemas.ThreatPathTraversal, "path traversal sequence detected"}, true
	case commandInjectionRe.MatchString(value):
		return fieldThreat{schemas.ThreatCommandInjection, "shell metacharacters detected"}, true
	}
	return fieldThreat{}, false
}

// sanitizeIdentifier reduces an identifier-like field (SKU, reference) to
// [A-Za-z0-9_-]. Sanitizing an already-clean value is a no-op.
func sanitizeIdentifier(value string) string {
	return identifierCleanRe.ReplaceAllString(value, "")
}

// sanitizeFreeText HTML-entity-escapes a free-text field.
func sanitizeFreeText(value string) string {
	return html.EscapeString(value)
}
