// Package safety implements the layered content-screening stack for the
// sysadmin agent orchestrator: a fast pattern screen, a structural shell
// command screen, an LLM-as-judge escalation screen, and the pipeline that
// composes them into allow/block decisions.
//
// Architecture:
//
//	PatternScreen  — regex tiers, pure computation, first match wins
//	CommandScreen  — shell-AST screening of tool command arguments
//	Judge          — escalation classifier backed by an external model
//	Pipeline       — composes the screens and synthesizes refusals
package safety

// Verdict is the outcome of a single screening stage.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictUnsafe  Verdict = "UNSAFE"
	VerdictUnknown Verdict = "UNKNOWN"
)

// ThreatCategory classifies what a screening stage detected.
type ThreatCategory string

const (
	ThreatPromptInjection  ThreatCategory = "prompt_injection"
	ThreatJailbreak        ThreatCategory = "jailbreak"
	ThreatHarmfulCommand   ThreatCategory = "harmful_command"
	ThreatDataExfiltration ThreatCategory = "data_exfiltration"
	ThreatPIIExposure      ThreatCategory = "pii_exposure"
	ThreatOffTopic         ThreatCategory = "off_topic"
	ThreatNone             ThreatCategory = "none"
)

// DefaultBlockThreshold is the confidence an UNSAFE verdict needs before the
// pipeline blocks on it. Configurable per Judge/Pipeline; this is the default.
const DefaultBlockThreshold = 0.7

// Result is a single screening verdict. Created fresh by each stage, never
// mutated, consumed immediately by the pipeline.
type Result struct {
	Verdict     Verdict
	Category    ThreatCategory
	Reason      string
	Confidence  float64
	ShouldBlock bool
}

// newResult derives ShouldBlock: only an UNSAFE verdict at or above the
// threshold blocks. UNKNOWN never blocks (fail-open).
func newResult(v Verdict, cat ThreatCategory, reason string, confidence, threshold float64) Result {
	return Result{
		Verdict:     v,
		Category:    cat,
		Reason:      reason,
		Confidence:  confidence,
		ShouldBlock: v == VerdictUnsafe && confidence >= threshold,
	}
}

func safeResult(reason string, confidence float64) Result {
	return Result{
		Verdict:    VerdictSafe,
		Category:   ThreatNone,
		Reason:     reason,
		Confidence: confidence,
	}
}

func unknownResult(reason string) Result {
	return Result{
		Verdict:    VerdictUnknown,
		Category:   ThreatNone,
		Reason:     reason,
		Confidence: 0.0,
	}
}

// parseCategory maps a free-form category token to a ThreatCategory.
// Unrecognized tokens degrade to ThreatNone rather than erroring.
func parseCategory(s string) ThreatCategory {
	switch ThreatCategory(s) {
	case ThreatPromptInjection, ThreatJailbreak, ThreatHarmfulCommand,
		ThreatDataExfiltration, ThreatPIIExposure, ThreatOffTopic:
		return ThreatCategory(s)
	default:
		return ThreatNone
	}
}
