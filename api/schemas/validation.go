// File: api/schemas/validation.go
package schemas

// Severity ranks a validation finding. The numeric scores are used to pick
// the single worst finding when several layers fail at once.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a severity onto its ordinal weight (critical > high > medium > low).
func (s Severity) Score() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 10
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ValidationCategory names which Judge layer produced a finding.
type ValidationCategory string

const (
	CategoryPromptInjection   ValidationCategory = "prompt_injection"
	CategoryPriceManipulation ValidationCategory = "price_manipulation"
	CategoryBusinessRule      ValidationCategory = "business_rule"
)

// ValidationResult is the outcome of one Judge call. Results are ephemeral;
// failed ones may additionally be recorded into the conversation's
// SecurityContext.
type ValidationResult struct {
	IsValid  bool               `json:"is_valid"`
	Severity Severity           `json:"severity,omitempty"`
	Category ValidationCategory `json:"category,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

// Valid is the result every layer returns when content passes.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true}
}

// Invalid builds a failed result.
func Invalid(sev Severity, cat ValidationCategory, reason string) ValidationResult {
	return ValidationResult{IsValid: false, Severity: sev, Category: cat, Reason: reason}
}
