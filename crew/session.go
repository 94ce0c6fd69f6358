package crew

import (
	"time"

	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/types"
)

// SessionState is the lifecycle state of one multi-agent session.
type SessionState string

const (
	StateCreated            SessionState = "created"
	StateFanningOut         SessionState = "fanning_out"
	StateAggregating        SessionState = "aggregating"
	StateCompleted          SessionState = "completed"
	StatePartiallyCompleted SessionState = "partially_completed"
)

// ParticipantResult is one agent's outcome within a session.
type ParticipantResult struct {
	AgentID  string        `json:"agent_id"`
	Response *rag.Response `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Failed   bool          `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SessionResult is the synthesis of one session.
type SessionResult struct {
	SessionID    string            `json:"session_id"`
	Mode         types.SessionMode `json:"mode"`
	State        SessionState      `json:"state"`
	Participants []string          `json:"participants"`

	// IndividualOutputs maps each successful agent to its response.
	IndividualOutputs map[string]*rag.Response `json:"individual_outputs"`

	// Failures maps each failed agent to the failure reason.
	Failures map[string]string `json:"failures,omitempty"`

	ConsensusPoints []string `json:"consensus_points,omitempty"`
	DivergentPoints []string `json:"divergent_points,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	SynthesisRecordID string        `json:"synthesis_record_id,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}
