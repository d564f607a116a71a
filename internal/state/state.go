// Package state implements the conversation-scoped key-value store shared by
// every guardrail stage. Keys are scoped by prefix; callers never touch the
// prefixes directly, only the scope-specific accessors.
//
// Scopes:
//   - no prefix: session state, persists for the conversation
//   - "user:"  : user state, persists across sessions for the same user
//   - "app:"   : application state, shared globally
//   - "temp:"  : ephemeral state, logically discarded after the turn
package state

const (
	prefixUser = "user:"
	prefixApp  = "app:"
	prefixTemp = "temp:"
)

// Well-known state keys. Centralized so hooks, screens, and the limiter
// agree on spelling.
const (
	KeyInvestigationContext = "investigation_context"
	KeySessionStart         = "session_start"
	KeyLastHostInvestigated = "last_host_investigated"
	KeyDiskWarning          = "disk_warning"
	KeyMemoryWarning        = "memory_warning"

	// user: scope
	KeyAllowedHosts = "allowed_hosts"

	// temp: scope
	KeyRateWindowStart  = "timer_start"
	KeyRateRequestCount = "request_count"
	KeyRateLimited      = "rate_limited"
	KeySecurityWarning  = "security_warning"
	KeySafetyBlocked    = "safety_blocked"
	KeySafetyReason     = "safety_reason"
	KeySafetyCategory   = "safety_category"
)

// Manager wraps a session's raw state map with scope-aware accessors.
// The underlying map is owned by the session store; Manager holds no state
// of its own and is cheap to construct per hook invocation.
type Manager struct {
	m map[string]any
}

// NewManager wraps an existing state map. A nil map is replaced with an
// empty one so callers can start from zero.
func NewManager(m map[string]any) *Manager {
	if m == nil {
		m = make(map[string]any)
	}
	return &Manager{m: m}
}

// Raw exposes the underlying map for persistence by the session store.
func (s *Manager) Raw() map[string]any { return s.m }

// Session scope.

func (s *Manager) Get(key string) (any, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *Manager) Set(key string, value any) { s.m[key] = value }

func (s *Manager) Has(key string) bool {
	_, ok := s.m[key]
	return ok
}

func (s *Manager) Delete(key string) { delete(s.m, key) }

// User scope: persists across sessions for the same user.

func (s *Manager) GetUser(key string) (any, bool) {
	v, ok := s.m[prefixUser+key]
	return v, ok
}

func (s *Manager) SetUser(key string, value any) { s.m[prefixUser+key] = value }

func (s *Manager) HasUser(key string) bool {
	_, ok := s.m[prefixUser+key]
	return ok
}

// App scope: shared across all users.

func (s *Manager) GetApp(key string) (any, bool) {
	v, ok := s.m[prefixApp+key]
	return v, ok
}

func (s *Manager) SetApp(key string, value any) { s.m[prefixApp+key] = value }

func (s *Manager) HasApp(key string) bool {
	_, ok := s.m[prefixApp+key]
	return ok
}

// Temp scope: discarded after the turn; must not be relied on across turns.

func (s *Manager) GetTemp(key string) (any, bool) {
	v, ok := s.m[prefixTemp+key]
	return v, ok
}

func (s *Manager) SetTemp(key string, value any) { s.m[prefixTemp+key] = value }

func (s *Manager) HasTemp(key string) bool {
	_, ok := s.m[prefixTemp+key]
	return ok
}

func (s *Manager) DeleteTemp(key string) { delete(s.m, prefixTemp+key) }

// Snapshot accessors. Each returns a copy keyed without the scope prefix.

func (s *Manager) SessionState() map[string]any {
	out := make(map[string]any)
	for k, v := range s.m {
		if !hasScopePrefix(k) {
			out[k] = v
		}
	}
	return out
}

func (s *Manager) UserState() map[string]any { return s.scopedState(prefixUser) }

func (s *Manager) AppState() map[string]any { return s.scopedState(prefixApp) }

func (s *Manager) TempState() map[string]any { return s.scopedState(prefixTemp) }

// ClearTemp drops all ephemeral entries, called by hosts at end of turn.
func (s *Manager) ClearTemp() {
	for k := range s.m {
		if len(k) >= len(prefixTemp) && k[:len(prefixTemp)] == prefixTemp {
			delete(s.m, k)
		}
	}
}

func (s *Manager) scopedState(prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range s.m {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

func hasScopePrefix(k string) bool {
	for _, p := range []string{prefixUser, prefixApp, prefixTemp} {
		if len(k) >= len(p) && k[:len(p)] == p {
			return true
		}
	}
	return false
}

// Typed read helpers. State values survive serialization round-trips, so
// numbers may come back as float64; these normalize.

func (s *Manager) GetFloat(key string) (float64, bool) {
	v, ok := s.m[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (s *Manager) GetTempFloat(key string) (float64, bool) {
	v, ok := s.GetTemp(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (s *Manager) GetTempInt(key string) (int, bool) {
	f, ok := s.GetTempFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
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
