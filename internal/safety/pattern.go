package safety

import (
	"regexp"
	"strings"
)

// PatternScreen is the fast first-pass classifier. It runs ordered regex
// tiers against lower-cased text with no external calls: the first matching
// pattern decides, there is no scoring across multiple matches.
type PatternScreen struct {
	injection []*regexp.Regexp
	exfil     []*regexp.Regexp
	blocked   []*regexp.Regexp // operator-configured dangerous request patterns
	sensitive []*regexp.Regexp // warn-only tier, never blocks
	pii       []piiPattern
}

type piiPattern struct {
	re    *regexp.Regexp
	label string
}

// Built-in input tiers. Declared order is match order.
var injectionPatterns = compilePatterns([]string{
	`ignore\s+(previous|all|above)\s+instructions`,
	`disregard\s+(your|the)\s+(instructions|rules)`,
	`you\s+are\s+now\s+a`,
	`pretend\s+you\s+are`,
	`act\s+as\s+if`,
	`roleplay\s+as`,
	`override\s+(your|the)\s+(safety|instructions)`,
	`bypass\s+(security|safety|filters)`,
	`jailbreak`,
	`do\s+anything\s+now`,
	`dan\s+mode`,
})

var exfilPatterns = compilePatterns([]string{
	`send\s+(to|via)\s+(http|https|ftp|email)`,
	`curl\s+.*\s+-d`,
	`wget\s+.*--post-data`,
	`upload\s+.*(to|via)\s+(my|external|remote|their)`,
	`upload\s+(to|via)`,
	`exfiltrate`,
	`transfer\s+.*(to|via)\s+(external|remote)`,
})

// Built-in output tier: PII and secret material that must never reach users.
var piiPatterns = []piiPattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN"},
	{regexp.MustCompile(`\b\d{16}\b`), "credit card"},
	{regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "credit card"},
	{regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`), "password"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`), "API key"},
	{regexp.MustCompile(`(?i)secret\s*[:=]\s*\S+`), "secret"},
	{regexp.MustCompile(`(?i)token\s*[:=]\s*\S+`), "token"},
	{regexp.MustCompile(`(?i)-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`), "private key"},
	{regexp.MustCompile(`(?i)aws_secret_access_key\s*=`), "AWS secret"},
}

// NewPatternScreen creates a screen with the built-in tiers plus
// operator-configured blocked and sensitive patterns. Invalid configured
// patterns are skipped rather than failing construction.
func NewPatternScreen(blockedPatterns, sensitivePatterns []string) *PatternScreen {
	return &PatternScreen{
		injection: injectionPatterns,
		exfil:     exfilPatterns,
		blocked:   compileLenient(blockedPatterns),
		sensitive: compileLenient(sensitivePatterns),
		pii:       piiPatterns,
	}
}

// ScreenInput classifies user input. Tiers, in order: prompt injection,
// data exfiltration, configured blocked patterns. Empty or whitespace-only
// text is always safe.
func (p *PatternScreen) ScreenInput(text string) Result {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return safeResult("empty input", 0.7)
	}

	for _, re := range p.injection {
		if re.MatchString(lower) {
			return Result{
				Verdict:     VerdictUnsafe,
				Category:    ThreatPromptInjection,
				Reason:      "detected injection pattern: " + re.String(),
				Confidence:  0.9,
				ShouldBlock: true,
			}
		}
	}

	for _, re := range p.exfil {
		if re.MatchString(lower) {
			return Result{
				Verdict:     VerdictUnsafe,
				Category:    ThreatDataExfiltration,
				Reason:      "detected exfiltration pattern: " + re.String(),
				Confidence:  0.85,
				ShouldBlock: true,
			}
		}
	}

	for _, re := range p.blocked {
		if re.MatchString(lower) {
			return Result{
				Verdict:     VerdictUnsafe,
				Category:    ThreatHarmfulCommand,
				Reason:      "detected blocked pattern: " + re.String(),
				Confidence:  0.9,
				ShouldBlock: true,
			}
		}
	}

	return safeResult("no obvious threats detected", 0.7)
}

// ScreenOutput classifies assistant output for PII exposure.
func (p *PatternScreen) ScreenOutput(text string) Result {
	if strings.TrimSpace(text) == "" {
		return safeResult("empty output", 0.8)
	}

	for _, pat := range p.pii {
		if pat.re.MatchString(text) {
			return Result{
				Verdict:     VerdictUnsafe,
				Category:    ThreatPIIExposure,
				Reason:      "detected potential " + pat.label + " in output",
				Confidence:  0.85,
				ShouldBlock: true,
			}
		}
	}

	return safeResult("no PII detected", 0.8)
}

// MatchSensitive reports whether text matches the warn-only sensitive tier.
// A match records a warning in session state but never blocks.
func (p *PatternScreen) MatchSensitive(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, re := range p.sensitive {
		if re.MatchString(lower) {
			return re.String(), true
		}
	}
	return "", false
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func compileLenient(patterns []string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}
