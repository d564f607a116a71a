package hooks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oversightlab/sysguard/internal/audit"
	"github.com/oversightlab/sysguard/internal/config"
	"github.com/oversightlab/sysguard/internal/metrics"
	"github.com/oversightlab/sysguard/internal/ratelimit"
	"github.com/oversightlab/sysguard/internal/redact"
	"github.com/oversightlab/sysguard/internal/safety"
	"github.com/oversightlab/sysguard/internal/state"
)

const sessionIDKey = "session_id"

// Deps are the collaborators a Chain needs. Judge, Audit, and Metrics are
// optional; Clock defaults to time.Now and exists for tests.
type Deps struct {
	Judge   *safety.Judge
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Chain wires the rate limiter and guardrail pipeline into the four hook
// points. One Chain serves all sessions; per-session data lives entirely in
// the state manager passed to each hook.
type Chain struct {
	cfg      *config.Config
	pipeline *safety.Pipeline
	limiter  ratelimit.Limiter
	auditLog *audit.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// NewChain assembles the full guardrail chain. includeSafety toggles the
// LLM-judge escalation stage (production hardening); the pattern screens
// always run.
func NewChain(cfg *config.Config, includeSafety bool, deps Deps) *Chain {
	judge := deps.Judge
	escalate := includeSafety && cfg.JudgeEnabled() && judge != nil
	if judge == nil {
		judge = safety.Disabled()
	}

	patterns := safety.NewPatternScreen(cfg.BlockedPatternStrings(), cfg.SensitivePatternStrings())
	pipeline := safety.NewPipeline(patterns, safety.NewCommandScreen(), judge, safety.PipelineConfig{
		JudgeEscalation:      escalate,
		EnforceCommandBlocks: cfg.Production(),
		ReadOnlyPrefixes:     cfg.Tools.ReadOnlyPrefixes,
	}, deps.Metrics)

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Chain{
		cfg:      cfg,
		pipeline: pipeline,
		limiter:  ratelimit.New(cfg.RateLimiting.RequestsPerMinute, cfg.RateWindow()),
		auditLog: deps.Audit,
		metrics:  deps.Metrics,
		clock:    clock,
	}
}

// Pipeline exposes the underlying guardrail pipeline, e.g. for hosts that
// screen assistant output after the model call.
func (c *Chain) Pipeline() *safety.Pipeline { return c.pipeline }

// Callbacks is the hook bundle handed to the orchestration host.
type Callbacks struct {
	BeforeTurn  func(st *state.Manager)
	BeforeModel func(ctx context.Context, st *state.Manager, req *ModelRequest) *ModelResponse
	BeforeTool  func(ctx context.Context, st *state.Manager, call ToolCall) ToolResult
	AfterTool   func(st *state.Manager, call ToolCall, result ToolResult)
}

// Callbacks binds the chain's hooks into host-consumable functions.
func (c *Chain) Callbacks() Callbacks {
	return Callbacks{
		BeforeTurn:  c.BeforeTurn,
		BeforeModel: c.BeforeModel,
		BeforeTool:  c.BeforeTool,
		AfterTool:   c.AfterTool,
	}
}

// BeforeTurn idempotently prepares session state for a conversation turn:
// an investigation context (existing history is never clobbered), a session
// id, a session start stamp, and an allowed-hosts list defaulting to empty,
// meaning unrestricted.
func (c *Chain) BeforeTurn(st *state.Manager) {
	if !st.Has(state.KeyInvestigationContext) {
		inv := &state.InvestigationContext{StartTime: c.nowSecs()}
		state.SaveInvestigation(st, inv)
	}
	if !st.HasUser(state.KeyAllowedHosts) {
		st.SetUser(state.KeyAllowedHosts, []string{})
	}
	if !st.Has(state.KeySessionStart) {
		st.Set(state.KeySessionStart, c.nowSecs())
	}
	if !st.Has(sessionIDKey) {
		st.Set(sessionIDKey, state.NewSessionID())
	}
}

// BeforeModel runs the pre-model stages in fixed order: request
// sanitization, rate limiting, then content screening. Throttled requests
// never reach the screens, bounding judge cost. A non-nil return
// short-circuits the model call.
func (c *Chain) BeforeModel(ctx context.Context, st *state.Manager, req *ModelRequest) *ModelResponse {
	req.sanitize()

	now := c.clock()
	outcome := c.limiter.CheckAndRecord(st, now)
	if !outcome.Proceed {
		waitSecs := outcome.RetryAfterSeconds()
		st.SetTemp(state.KeyRateLimited, true)
		c.metrics.RecordThrottle()
		c.audit(st, audit.Event{
			Stage:    audit.StageRate,
			Decision: audit.DecisionThrottle,
			Reason:   fmt.Sprintf("quota exceeded, retry in %ds", waitSecs),
		})
		return NewTextResponse(fmt.Sprintf(
			"I'm currently processing many requests. Please wait about %d seconds and try again. "+
				"This helps ensure reliable service.", waitSecs))
	}

	userText := req.UserText()

	decision := c.pipeline.EvaluateInput(ctx, userText)
	if !decision.Allow {
		st.SetTemp(state.KeySafetyBlocked, true)
		st.SetTemp(state.KeySafetyReason, decision.Reason)
		st.SetTemp(state.KeySafetyCategory, string(decision.Category))
		c.audit(st, audit.Event{
			Stage:    audit.StageInput,
			Decision: audit.DecisionBlock,
			Category: string(decision.Category),
			Reason:   decision.Reason,
		})
		return NewTextResponse(safety.RefusalMessage)
	}

	if pattern, ok := c.pipeline.MatchSensitive(userText); ok {
		st.SetTemp(state.KeySecurityWarning, "sensitive operation detected: "+pattern)
		c.audit(st, audit.Event{
			Stage:    audit.StageInput,
			Decision: audit.DecisionWarn,
			Reason:   "sensitive pattern: " + pattern,
		})
	}

	return nil
}

// BeforeTool records the tool call in the investigation history, enforces
// the host allowlist, and screens the call. Tracking happens before any
// block decision so even refused calls appear in the audit trail. A non-nil
// return replaces the tool execution.
func (c *Chain) BeforeTool(ctx context.Context, st *state.Manager, call ToolCall) ToolResult {
	inv := state.Investigation(st)
	inv.AddToolUsage(call.Name, c.nowSecs())

	host := ""
	if c.hostAware(call.Name) {
		if host = call.Host(); host != "" {
			inv.AddHost(host)
			st.Set(state.KeyLastHostInvestigated, host)
		}
	}
	state.SaveInvestigation(st, inv)

	if host != "" {
		if allowed := allowedHosts(st); len(allowed) > 0 && !contains(allowed, host) {
			log.Printf("hooks: host %q outside allowlist for tool %s", host, call.Name)
			if c.cfg.Production() {
				c.audit(st, audit.Event{
					Stage:    audit.StageTool,
					Decision: audit.DecisionDeny,
					Tool:     call.Name,
					Host:     host,
					Reason:   "host not in allowed hosts list",
				})
				return ToolResult{
					"status":        "error",
					"error_message": fmt.Sprintf("Host %q is not in the allowed hosts list.", host),
				}
			}
		}
	}

	decision := c.pipeline.EvaluateToolCall(ctx, call.Name, call.Args)
	if !decision.Allow {
		st.SetTemp(state.KeySafetyBlocked, true)
		st.SetTemp(state.KeySafetyReason, decision.Reason)
		st.SetTemp(state.KeySafetyCategory, string(decision.Category))
		c.audit(st, audit.Event{
			Stage:    audit.StageTool,
			Decision: audit.DecisionBlock,
			Category: string(decision.Category),
			Tool:     call.Name,
			ToolArgs: redact.RedactArgs(call.Args),
			Host:     host,
			Reason:   decision.Reason,
		})
		return ToolResult(safety.RefusalToolResult(decision.Category))
	}

	return nil
}

// AfterTool inspects the tool result for disk and memory threshold
// breaches, writing warning records into session state. It never
// short-circuits; the result always passes through.
func (c *Chain) AfterTool(st *state.Manager, call ToolCall, result ToolResult) {
	if result == nil {
		return
	}

	host := call.Host()
	if host == "" {
		host = "unknown"
	}

	if usage, ok := resultPercent(result, "usage_percent"); ok && usage > c.cfg.Thresholds.DiskWarningPercent {
		c.writeWarning(st, state.KeyDiskWarning, host, "usage_percent", usage)
		log.Printf("hooks: high disk usage on %s: %.0f%%", host, usage)
	}

	if used, ok := resultPercent(result, "percent_used"); ok && used > c.cfg.Thresholds.MemoryWarningPercent {
		c.writeWarning(st, state.KeyMemoryWarning, host, "percent_used", used)
		log.Printf("hooks: high memory usage on %s: %.0f%%", host, used)
	}
}

func (c *Chain) writeWarning(st *state.Manager, key, host, field string, value float64) {
	st.Set(key, map[string]any{
		"host":        host,
		field:         value,
		"detected_at": c.nowSecs(),
	})

	inv := state.Investigation(st)
	inv.AddWarning(fmt.Sprintf("%s %.0f%% on %s", field, value, host))
	state.SaveInvestigation(st, inv)

	c.audit(st, audit.Event{
		Stage:    audit.StageTool,
		Decision: audit.DecisionWarn,
		Host:     host,
		Reason:   fmt.Sprintf("%s at %.0f%% exceeds threshold", field, value),
	})
}

func (c *Chain) hostAware(toolName string) bool {
	return contains(c.cfg.HostValidation.HostAwareTools, toolName)
}

func (c *Chain) nowSecs() float64 {
	return float64(c.clock().UnixNano()) / float64(time.Second)
}

func (c *Chain) audit(st *state.Manager, event audit.Event) {
	if c.auditLog == nil {
		return
	}
	if id, ok := st.Get(sessionIDKey); ok {
		if s, ok := id.(string); ok {
			event.SessionID = s
		}
	}
	event.Mode = string(c.cfg.Mode)
	if err := c.auditLog.Log(event); err != nil {
		log.Printf("hooks: audit write failed: %v", err)
	}
}

func allowedHosts(st *state.Manager) []string {
	v, ok := st.GetUser(state.KeyAllowedHosts)
	if !ok {
		return nil
	}
	switch hosts := v.(type) {
	case []string:
		return hosts
	case []any:
		var out []string
		for _, h := range hosts {
			if s, ok := h.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func resultPercent(result ToolResult, key string) (float64, bool) {
	v, ok := result[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
