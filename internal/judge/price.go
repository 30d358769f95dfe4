// File: internal/judge/price.go
package judge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// Pattern families for price manipulation. All of these are critical: they
// only appear when someone is trying to change what they pay.
var pricePatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	// Direct price overrides.
	{regexp.MustCompile(`(?i)(set|change|update|make|override)\s+(the\s+)?price(\s+of\s+\S+)?\s+to\b`), "direct price override"},
	{regexp.MustCompile(`(?i)price\s*[:=]\s*\$?\d`), "direct price override"},
	{regexp.MustCompile(`(?i)(make|mark)\s+(it|this|everything)\s+free`), "direct price override"},

	// Discount and coupon abuse.
	{regexp.MustCompile(`(?i)(give|apply|add)\s+me\s+(a\s+)?\d{2,3}\s*%\s*(off|discount)`), "discount abuse"},
	{regexp.MustCompile(`(?i)(stack|combine)\s+(all\s+)?(the\s+)?(coupons|discounts|promo)`), "discount abuse"},
	{regexp.MustCompile(`(?i)unlimited\s+(discount|coupon|credit)`), "discount abuse"},

	// System-exploit phrasing.
	{regexp.MustCompile(`(?i)(bypass|skip|disable)\s+(the\s+)?(payment|checkout|price|billing)\s*(validation|check|step)?`), "checkout exploit phrasing"},
	{regexp.MustCompile(`(?i)(modify|edit|hack)\s+(the\s+)?(database|backend|order\s+total)`), "checkout exploit phrasing"},
	{regexp.MustCompile(`(?i)negative\s+(price|quantity|amount)`), "checkout exploit phrasing"},
}

var (
	currencyAmountRe = regexp.MustCompile(`\$\s*(\d+(?:\.\d{1,2})?)`)
	percentRe        = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	couponContextRe  = regexp.MustCompile(`(?i)(coupon|promo|discount)\s*(code)?\s*[:\s]\s*([A-Za-z0-9_-]{2,40})`)
)

// priceLayer detects price-manipulation attempts.
type priceLayer struct {
	policy config.JudgePolicy
}

func newPriceLayer(p config.JudgePolicy) *priceLayer {
	return &priceLayer{policy: p}
}

func (l *priceLayer) name() string { return "price_manipulation" }

func (l *priceLayer) validate(content string, _ *schemas.ConversationState) []schemas.ValidationResult {
	var findings []schemas.ValidationResult

	for _, p := range pricePatterns {
		if p.re.MatchString(content) {
			findings = append(findings, schemas.Invalid(schemas.SeverityCritical, schemas.CategoryPriceManipulation, p.reason))
		}
	}

	// Coupon tokens containing operator-ish words are treated as probes for
	// internal codes.
	for _, m := range couponContextRe.FindAllStringSubmatch(content, -1) {
		code := strings.ToLower(m[3])
		for _, word := range l.policy.SuspiciousCouponWords {
			if strings.Contains(code, strings.ToLower(word)) {
				findings = append(findings, schemas.Invalid(schemas.SeverityCritical, schemas.CategoryPriceManipulation,
					fmt.Sprintf("suspicious coupon token %q", m[3])))
			}
		}
	}

	// Numeric heuristics: zero or near-zero currency amounts, absurd percents.
	for _, m := range currencyAmountRe.FindAllStringSubmatch(content, -1) {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if amount < l.policy.MinPrice {
			findings = append(findings, schemas.Invalid(schemas.SeverityHigh, schemas.CategoryPriceManipulation,
				fmt.Sprintf("implausible price $%s", m[1])))
		}
	}

	for _, m := range percentRe.FindAllStringSubmatch(content, -1) {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if pct > l.policy.MaxDiscountPercent {
			findings = append(findings, schemas.Invalid(schemas.SeverityMedium, schemas.CategoryPriceManipulation,
				fmt.Sprintf("discount of %.0f%% exceeds the %.0f%% ceiling", pct, l.policy.MaxDiscountPercent)))
		}
	}

	return findings
}
