package types

// Complexity grades how much reasoning a task demands. It feeds the backend
// selection table together with the declared type.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid reports whether c is a known complexity grade.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// BackendClass selects the model backend a routed task runs on.
type BackendClass string

const (
	// BackendLocal runs on the local reasoning backend, reserved for
	// high-complexity tasks whose declared type is in the configured
	// needs-local-reasoning list.
	BackendLocal BackendClass = "local"

	// BackendRemote is the default hosted backend.
	BackendRemote BackendClass = "remote"
)

// AgentProfile describes one routable agent persona. Profiles live in the
// registry injected at construction time; they are read-only at request time.
type AgentProfile struct {
	ID                 string   `json:"id"`
	DisplayName        string   `json:"display_name"`
	SpecializationTags []string `json:"specialization_tags"`
	PriorityRank       int      `json:"priority_rank"`
}

// Task is one unit of routable work.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	DeclaredType string     `json:"declared_type"`
	Complexity   Complexity `json:"complexity"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	MissionID    string     `json:"mission_id,omitempty"`
}

// RoutingDecision records which agent and backend a task was assigned to.
// Deterministic is false only when no agent had tag overlap and the engine
// fell back to the default agent.
type RoutingDecision struct {
	TaskID        string       `json:"task_id"`
	SelectedAgent string       `json:"selected_agent"`
	BackendClass  BackendClass `json:"backend_class"`
	Rationale     string       `json:"rationale"`
	Deterministic bool         `json:"deterministic"`
}
