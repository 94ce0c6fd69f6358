package types

import "time"

// Status values carried by caller-facing results. Callers must check the
// status field; a 200-level transport response alone does not imply success.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AnalysisRequest asks one agent to analyze a piece of content.
type AnalysisRequest struct {
	AgentID   string `json:"agent_id"`
	Content   string `json:"content"`
	MissionID string `json:"mission_id"`
	Focus     string `json:"focus,omitempty"`
}

// AnalysisResult is the outcome of a single-agent analysis.
type AnalysisResult struct {
	Status     string    `json:"status"`
	Agent      string    `json:"agent"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	CacheHit   bool      `json:"cache_hit"`
	Degraded   bool      `json:"degraded,omitempty"`
	SourceIDs  []string  `json:"source_record_ids,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
}

// BatchAnalysisRequest submits multiple contents to the same agent.
type BatchAnalysisRequest struct {
	AgentID  string   `json:"agent_id"`
	Contents []string `json:"contents"`
	Focus    string   `json:"focus,omitempty"`
}

// BatchAnalysisResult summarizes a batch run.
type BatchAnalysisResult struct {
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []AnalysisResult `json:"results"`
}

// SessionMode selects how a multi-agent session executes.
type SessionMode string

const (
	// ModeParallel fans the task out to all participants concurrently.
	ModeParallel SessionMode = "parallel"

	// ModeChained runs participants in order, feeding each agent the
	// outputs of the agents before it.
	ModeChained SessionMode = "chained"
)

// ParticipantsAll requests every registered agent as a session participant.
const ParticipantsAll = "all"

// SessionRequest starts a multi-agent session over a shared task.
type SessionRequest struct {
	SessionID    string      `json:"session_id,omitempty"`
	Participants []string    `json:"participants"`
	Mode         SessionMode `json:"mode"`
	Task         string      `json:"task"`
	Focus        string      `json:"focus,omitempty"`
}
