package state

// ToolUsage is one entry in an investigation's tool history.
type ToolUsage struct {
	Tool string
	Time float64 // unix seconds
}

// InvestigationContext tracks what an investigation has touched across tool
// calls within a turn. Hosts are deduplicated in insertion order; tools,
// warnings, and findings only ever grow.
//
// The context is stored in session state as a plain map and rebuilt on every
// read — there is no long-lived object identity across hook invocations.
type InvestigationContext struct {
	HostsAccessed []string
	ToolsUsed     []ToolUsage
	StartTime     float64
	Warnings      []string
	Findings      []string
}

// AddHost records a host access, keeping HostsAccessed duplicate-free.
func (c *InvestigationContext) AddHost(host string) {
	for _, h := range c.HostsAccessed {
		if h == host {
			return
		}
	}
	c.HostsAccessed = append(c.HostsAccessed, host)
}

// AddToolUsage appends a tool invocation to the history.
func (c *InvestigationContext) AddToolUsage(tool string, ts float64) {
	c.ToolsUsed = append(c.ToolsUsed, ToolUsage{Tool: tool, Time: ts})
}

func (c *InvestigationContext) AddWarning(warning string) {
	c.Warnings = append(c.Warnings, warning)
}

func (c *InvestigationContext) AddFinding(finding string) {
	c.Findings = append(c.Findings, finding)
}

// ToMap serializes the context for state storage.
func (c *InvestigationContext) ToMap() map[string]any {
	tools := make([]any, 0, len(c.ToolsUsed))
	for _, t := range c.ToolsUsed {
		tools = append(tools, map[string]any{"tool": t.Tool, "time": t.Time})
	}
	return map[string]any{
		"hosts_accessed": toAnySlice(c.HostsAccessed),
		"tools_used":     tools,
		"start_time":     c.StartTime,
		"warnings":       toAnySlice(c.Warnings),
		"findings":       toAnySlice(c.Findings),
	}
}

// InvestigationFromMap rebuilds a context from its stored form. Missing or
// malformed fields degrade to empty values.
func InvestigationFromMap(m map[string]any) *InvestigationContext {
	c := &InvestigationContext{}
	if m == nil {
		return c
	}
	c.HostsAccessed = toStringSlice(m["hosts_accessed"])
	c.Warnings = toStringSlice(m["warnings"])
	c.Findings = toStringSlice(m["findings"])
	if f, ok := toFloat(m["start_time"]); ok {
		c.StartTime = f
	}
	if raw, ok := m["tools_used"].([]any); ok {
		for _, entry := range raw {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			usage := ToolUsage{}
			if name, ok := em["tool"].(string); ok {
				usage.Tool = name
			}
			if t, ok := toFloat(em["time"]); ok {
				usage.Time = t
			}
			c.ToolsUsed = append(c.ToolsUsed, usage)
		}
	}
	return c
}

// Investigation loads the turn's investigation context from state, returning
// an empty context when none has been stored yet.
func Investigation(s *Manager) *InvestigationContext {
	v, ok := s.Get(KeyInvestigationContext)
	if !ok {
		return &InvestigationContext{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return &InvestigationContext{}
	}
	return InvestigationFromMap(m)
}

// SaveInvestigation writes the context back to state.
func SaveInvestigation(s *Manager, c *InvestigationContext) {
	s.Set(KeyInvestigationContext, c.ToMap())
}

func toAnySlice(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out
	case []any:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
