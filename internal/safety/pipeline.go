package safety

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/oversightlab/sysguard/internal/metrics"
)

// RefusalMessage is the only text shown to users when content is blocked.
// It deliberately reveals nothing about which screen or pattern tripped.
const RefusalMessage = "I'm sorry, but I cannot process this request as it may contain unsafe content. " +
	"Please rephrase your request focusing on legitimate system administration tasks. " +
	"If you believe this is an error, please contact support."

// ToolRefusalMessage is the fixed error message substituted for a blocked
// tool call's result.
const ToolRefusalMessage = "This tool call was blocked by safety policy."

// Decision is the pipeline's verdict on one piece of content.
type Decision struct {
	Allow    bool
	Stage    string // which screen decided: "pattern", "command", "judge"
	Category ThreatCategory
	Reason   string
}

func allowed() Decision {
	return Decision{Allow: true, Category: ThreatNone}
}

func blocked(stage string, r Result) Decision {
	return Decision{Allow: false, Stage: stage, Category: r.Category, Reason: r.Reason}
}

// PipelineConfig controls which stages run and how strictly.
type PipelineConfig struct {
	// JudgeEscalation enables the LLM-judge stage after a clean pattern
	// pass. The judge is never consulted when the pattern screen already
	// blocks.
	JudgeEscalation bool

	// EnforceCommandBlocks makes structural command-screen hits block.
	// Outside production they are logged only, keeping testing
	// unrestricted.
	EnforceCommandBlocks bool

	// ReadOnlyPrefixes name tool prefixes that bypass screening entirely.
	ReadOnlyPrefixes []string
}

// Pipeline runs the layered screens and produces allow/block decisions.
// Cheap deterministic screens run first and short-circuit; the judge is the
// expensive last resort.
type Pipeline struct {
	patterns *PatternScreen
	commands *CommandScreen
	judge    *Judge
	cfg      PipelineConfig
	metrics  *metrics.Metrics
}

// NewPipeline assembles the screens. judge may be Disabled(); m may be nil.
func NewPipeline(patterns *PatternScreen, commands *CommandScreen, judge *Judge, cfg PipelineConfig, m *metrics.Metrics) *Pipeline {
	if judge == nil {
		judge = Disabled()
	}
	return &Pipeline{
		patterns: patterns,
		commands: commands,
		judge:    judge,
		cfg:      cfg,
		metrics:  m,
	}
}

// EvaluateInput screens user text before it reaches the model.
func (p *Pipeline) EvaluateInput(ctx context.Context, text string) Decision {
	p.metrics.RecordScreen("input")

	if r := p.patterns.ScreenInput(text); r.ShouldBlock {
		p.metrics.RecordBlock("input", string(r.Category))
		return blocked("pattern", r)
	}

	if p.cfg.JudgeEscalation {
		if r := p.judgeCall(ctx, func(ctx context.Context) Result {
			return p.judge.ScreenInput(ctx, text)
		}); r.ShouldBlock {
			p.metrics.RecordBlock("input", string(r.Category))
			return blocked("judge", r)
		}
	}

	return allowed()
}

// EvaluateOutput screens assistant text before it is shown to users.
func (p *Pipeline) EvaluateOutput(ctx context.Context, text string) Decision {
	p.metrics.RecordScreen("output")

	if r := p.patterns.ScreenOutput(text); r.ShouldBlock {
		p.metrics.RecordBlock("output", string(r.Category))
		return blocked("pattern", r)
	}

	if p.cfg.JudgeEscalation {
		if r := p.judgeCall(ctx, func(ctx context.Context) Result {
			return p.judge.ScreenOutput(ctx, text)
		}); r.ShouldBlock {
			p.metrics.RecordBlock("output", string(r.Category))
			return blocked("judge", r)
		}
	}

	return allowed()
}

// EvaluateToolCall screens a tool invocation. Read-only tools bypass all
// screening: they cannot cause side effects, so judge latency is not worth
// paying for them.
func (p *Pipeline) EvaluateToolCall(ctx context.Context, toolName string, args map[string]any) Decision {
	for _, prefix := range p.cfg.ReadOnlyPrefixes {
		if strings.HasPrefix(toolName, prefix) {
			return allowed()
		}
	}

	p.metrics.RecordScreen("tool")

	if command, ok := args["command"].(string); ok && p.commands != nil {
		if r := p.commands.Screen(command); r.ShouldBlock {
			if p.cfg.EnforceCommandBlocks {
				p.metrics.RecordBlock("tool", string(r.Category))
				return blocked("command", r)
			}
			log.Printf("safety: command screen flagged tool %s (not enforced): %s", toolName, r.Reason)
		}
	}

	if p.cfg.JudgeEscalation {
		// Judge errors must not abort the tool call; Unknown never blocks.
		if r := p.judgeCall(ctx, func(ctx context.Context) Result {
			return p.judge.ScreenToolCall(ctx, toolName, args)
		}); r.ShouldBlock {
			p.metrics.RecordBlock("tool", string(r.Category))
			return blocked("judge", r)
		}
	}

	return allowed()
}

// MatchSensitive exposes the warn-only pattern tier for hooks that record
// security warnings without blocking.
func (p *Pipeline) MatchSensitive(text string) (string, bool) {
	return p.patterns.MatchSensitive(text)
}

func (p *Pipeline) judgeCall(ctx context.Context, call func(context.Context) Result) Result {
	start := time.Now()
	r := call(ctx)
	p.metrics.ObserveJudgeLatency(time.Since(start))
	if r.Verdict == VerdictUnknown {
		p.metrics.RecordJudgeFailure()
	}
	return r
}

// RefusalToolResult builds the structured result substituted for a blocked
// tool call. The category is machine-readable for the calling model; the
// message stays fixed and non-revealing.
func RefusalToolResult(category ThreatCategory) map[string]any {
	return map[string]any{
		"status":          "error",
		"error_message":   ToolRefusalMessage,
		"safety_category": string(category),
	}
}
