// File: internal/judge/injection.go
package judge

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// injectionPattern pairs a compiled pattern with the finding it produces.
type injectionPattern struct {
	re       *regexp.Regexp
	severity schemas.Severity
	reason   string
}

// Pattern families for prompt-injection attempts. Matching is case-insensitive.
var injectionPatterns = []injectionPattern{
	// System-prompt override.
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|earlier)\s+(instructions|prompts|rules)`), schemas.SeverityHigh, "attempt to override system instructions"},
	{regexp.MustCompile(`(?i)disregard\s+(the\s+)?(system\s+prompt|your\s+instructions|your\s+rules)`), schemas.SeverityHigh, "attempt to override system instructions"},
	{regexp.MustCompile(`(?i)forget\s+(everything|all|your)\s+(you|instructions|training|rules)`), schemas.SeverityHigh, "attempt to override system instructions"},
	{regexp.MustCompile(`(?i)new\s+(system\s+)?instructions?\s*:`), schemas.SeverityHigh, "attempt to inject replacement instructions"},

	// Role-play induction.
	{regexp.MustCompile(`(?i)(pretend|imagine)\s+(you\s+are|to\s+be|you're)\s`), schemas.SeverityHigh, "role-play induction"},
	{regexp.MustCompile(`(?i)act\s+as\s+(an?\s+)?(admin|administrator|developer|system|root|dan)`), schemas.SeverityHigh, "role-play induction"},
	{regexp.MustCompile(`(?i)you\s+are\s+n(o|ow)\s+(an?\s+)?(unrestricted|jailbroken|different)`), schemas.SeverityHigh, "role-play induction"},

	// Instruction-block injection.
	{regexp.MustCompile(`(?i)\[\s*(system|assistant|inst)\s*\]`), schemas.SeverityHigh, "instruction-block injection"},
	{regexp.MustCompile(`(?i)<<\s*sys\s*>>|<\|\s*(system|im_start)\s*\|>`), schemas.SeverityHigh, "instruction-block injection"},
	{regexp.MustCompile(`(?i)#{2,}\s*(system|instruction)`), schemas.SeverityHigh, "instruction-block injection"},

	// Fabricated prior-context claims.
	{regexp.MustCompile(`(?i)(as|like)\s+(we|you)\s+(discussed|agreed|decided)\s+(earlier|before|previously)`), schemas.SeverityMedium, "fabricated prior-context claim"},
	{regexp.MustCompile(`(?i)you\s+(previously|already)\s+(agreed|promised|confirmed|approved)`), schemas.SeverityMedium, "fabricated prior-context claim"},
	{regexp.MustCompile(`(?i)remember\s+when\s+you\s+(said|told|offered)`), schemas.SeverityMedium, "fabricated prior-context claim"},
}

var (
	base64TokenRe    = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	percentEncodedRe = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	unicodeEscapeRe  = regexp.MustCompile(`\\u[0-9A-Fa-f]{4}`)
)

// injectionLayer detects prompt-injection attempts, combining the pattern
// families with encoding/obfuscation heuristics.
type injectionLayer struct {
	policy config.JudgePolicy
}

func newInjectionLayer(p config.JudgePolicy) *injectionLayer {
	return &injectionLayer{policy: p}
}

func (l *injectionLayer) name() string { return "prompt_injection" }

func (l *injectionLayer) validate(content string, _ *schemas.ConversationState) []schemas.ValidationResult {
	var findings []schemas.ValidationResult

	for _, p := range injectionPatterns {
		if p.re.MatchString(content) {
			findings = append(findings, schemas.Invalid(p.severity, schemas.CategoryPromptInjection, p.reason))
		}
	}

	// Long base64-shaped tokens are a common smuggling vector.
	for _, token := range strings.Fields(content) {
		if len(token) > l.policy.MaxBase64TokenLen && base64TokenRe.MatchString(token) {
			findings = append(findings, schemas.Invalid(schemas.SeverityHigh, schemas.CategoryPromptInjection,
				"suspicious base64-like token"))
			break
		}
	}

	if n := len(percentEncodedRe.FindAllString(content, -1)); n > l.policy.MaxPercentEncoded {
		findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryPromptInjection,
			fmt.Sprintf("excessive percent-encoding (%d sequences)", n)))
	}

	if n := len(unicodeEscapeRe.FindAllString(content, -1)); n > l.policy.MaxUnicodeEscapes {
		findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryPromptInjection,
			fmt.Sprintf("excessive unicode escapes (%d sequences)", n)))
	}

	if ratio := symbolRatio(content); ratio > l.policy.MaxSymbolRatio {
		findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryPromptInjection,
			fmt.Sprintf("abnormal symbol density (%.2f)", ratio)))
	}

	return findings
}

// symbolRatio is the share of non-alphanumeric, non-space runes in content.
func symbolRatio(content string) float64 {
	if content == "" {
		return 0
	}
	total, symbols := 0, 0
	for _, r := range content {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(symbols) / float64(total)
}
