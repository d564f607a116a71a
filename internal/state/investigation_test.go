package state

import "testing"

func TestAddHostDeduplicates(t *testing.T) {
	c := &InvestigationContext{}
	c.AddHost("server1")
	c.AddHost("server1")
	c.AddHost("server1")

	if len(c.HostsAccessed) != 1 {
		t.Errorf("HostsAccessed = %v, want exactly one entry", c.HostsAccessed)
	}

	c.AddHost("server2")
	c.AddHost("server1")
	if len(c.HostsAccessed) != 2 {
		t.Errorf("HostsAccessed = %v, want two entries", c.HostsAccessed)
	}
	if c.HostsAccessed[0] != "server1" || c.HostsAccessed[1] != "server2" {
		t.Errorf("insertion order not preserved: %v", c.HostsAccessed)
	}
}

func TestAddToolUsageAppends(t *testing.T) {
	c := &InvestigationContext{}
	c.AddToolUsage("get_disk_usage", 100)
	c.AddToolUsage("get_disk_usage", 101)

	if len(c.ToolsUsed) != 2 {
		t.Errorf("ToolsUsed length = %d, want 2 (tool history is never deduplicated)", len(c.ToolsUsed))
	}
	if c.ToolsUsed[1].Time != 101 {
		t.Errorf("second usage time = %v, want 101", c.ToolsUsed[1].Time)
	}
}

func TestInvestigationMapRoundTrip(t *testing.T) {
	c := &InvestigationContext{StartTime: 1700000000.5}
	c.AddHost("web-01")
	c.AddHost("db-01")
	c.AddToolUsage("run_command", 1700000001)
	c.AddWarning("usage_percent 95% on web-01")
	c.AddFinding("nginx OOM at 03:14")

	got := InvestigationFromMap(c.ToMap())

	if len(got.HostsAccessed) != 2 || got.HostsAccessed[0] != "web-01" {
		t.Errorf("HostsAccessed = %v", got.HostsAccessed)
	}
	if len(got.ToolsUsed) != 1 || got.ToolsUsed[0].Tool != "run_command" {
		t.Errorf("ToolsUsed = %v", got.ToolsUsed)
	}
	if got.StartTime != 1700000000.5 {
		t.Errorf("StartTime = %v", got.StartTime)
	}
	if len(got.Warnings) != 1 || len(got.Findings) != 1 {
		t.Errorf("Warnings = %v, Findings = %v", got.Warnings, got.Findings)
	}
}

func TestInvestigationFromMapMalformed(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"wrong types", map[string]any{
			"hosts_accessed": "not-a-list",
			"tools_used":     42,
			"start_time":     "soon",
		}},
		{"malformed tool entries", map[string]any{
			"tools_used": []any{"bare string", map[string]any{"tool": 5}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := InvestigationFromMap(tt.m)
			if c == nil {
				t.Fatal("must never return nil")
			}
			if len(c.HostsAccessed) != 0 {
				t.Errorf("HostsAccessed = %v, want empty", c.HostsAccessed)
			}
		})
	}
}

func TestInvestigationStateRoundTrip(t *testing.T) {
	st := NewManager(nil)

	// Missing context reads as empty, never nil.
	if c := Investigation(st); c == nil || len(c.HostsAccessed) != 0 {
		t.Fatalf("Investigation on empty state = %v", c)
	}

	c := &InvestigationContext{StartTime: 42}
	c.AddHost("web-01")
	SaveInvestigation(st, c)

	got := Investigation(st)
	if len(got.HostsAccessed) != 1 || got.HostsAccessed[0] != "web-01" {
		t.Errorf("HostsAccessed = %v", got.HostsAccessed)
	}
	if got.StartTime != 42 {
		t.Errorf("StartTime = %v, want 42", got.StartTime)
	}
}
