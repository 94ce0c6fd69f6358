package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crewmind-ai/crewmind/audit"
	"github.com/crewmind-ai/crewmind/crew"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/types"
)

// Handler exposes the service over HTTP.
type Handler struct {
	pipeline     *rag.Pipeline
	orchestrator *crew.Orchestrator
	auditor      *audit.Auditor
	store        memory.Store
	logger       *zap.Logger

	// batchConcurrency bounds parallel items within one batch request.
	batchConcurrency int
}

// HandlerOptions configures the HTTP handler.
type HandlerOptions struct {
	Logger *zap.Logger

	// BatchConcurrency defaults to 4.
	BatchConcurrency int
}

// NewHandler wires the HTTP handler over the service components.
func NewHandler(pipeline *rag.Pipeline, orchestrator *crew.Orchestrator, auditor *audit.Auditor,
	store memory.Store, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Handler{
		pipeline:         pipeline,
		orchestrator:     orchestrator,
		auditor:          auditor,
		store:            store,
		logger:           logger.With(zap.String("component", "api")),
		batchConcurrency: concurrency,
	}
}

// Routes registers all endpoints on a new mux. The metrics handler is
// optional; nil leaves /metrics unregistered.
func (h *Handler) Routes(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /v1/analyze/batch", h.HandleBatchAnalyze)
	mux.HandleFunc("POST /v1/sessions", h.HandleSession)
	mux.HandleFunc("POST /v1/audit", h.HandleAudit)
	mux.HandleFunc("GET /v1/agents", h.HandleListAgents)
	mux.HandleFunc("GET /v1/memory/stats", h.HandleMemoryStats)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// HandleAnalyze answers one analysis request.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.AnalysisRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	resp, err := h.pipeline.Answer(r.Context(), req)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, toAnalysisResult(resp))
}

// HandleBatchAnalyze answers several contents for the same agent, bounded
// by the configured concurrency. Item failures are reported per item and
// never fail the batch.
func (h *Handler) HandleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.BatchAnalysisRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Contents) == 0 {
		WriteError(w, types.NewInvalidRequestError("contents is empty"), h.logger)
		return
	}

	results := make([]types.AnalysisResult, len(req.Contents))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.batchConcurrency)
	for i, content := range req.Contents {
		g.Go(func() error {
			resp, err := h.pipeline.Answer(ctx, types.AnalysisRequest{
				AgentID: req.AgentID,
				Content: content,
				Focus:   req.Focus,
			})
			if err != nil {
				results[i] = types.AnalysisResult{
					Status:    types.StatusError,
					Agent:     req.AgentID,
					ErrorCode: types.GetErrorCode(err),
					Timestamp: time.Now().UTC(),
				}
				return nil
			}
			results[i] = toAnalysisResult(resp)
			return nil
		})
	}
	_ = g.Wait()

	out := types.BatchAnalysisResult{Total: len(results), Results: results}
	for _, res := range results {
		if res.Status == types.StatusSuccess {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	WriteSuccess(w, out)
}

// HandleSession runs a multi-agent session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.orchestrator.Run(r.Context(), req)
	if err != nil {
		// A fully failed session still carries the per-participant
		// failure reasons.
		apiErr := asAPIError(err)
		if result != nil && apiErr.Code == types.ErrPartialFailure {
			WriteJSON(w, http.StatusBadGateway, Response{
				Success: false,
				Data:    result,
				Error: &ErrorInfo{
					Code:    string(apiErr.Code),
					Message: apiErr.Message,
				},
				Timestamp: time.Now().UTC(),
			})
			return
		}
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// AuditRequest scopes a consistency audit.
type AuditRequest struct {
	MissionID string `json:"mission_id,omitempty"`
}

// HandleAudit audits shared memory for contradictions.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	report, err := h.auditor.Audit(r.Context(), req.MissionID)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, report)
}

// agentInfo is the roster entry returned by the API.
type agentInfo struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Tags         []string `json:"tags"`
	PriorityRank int      `json:"priority_rank"`
}

// HandleListAgents lists the registered agents.
func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	profiles := h.pipeline.Engine().Registry().All()
	out := make([]agentInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, agentInfo{
			ID:           p.ID,
			DisplayName:  p.DisplayName,
			Tags:         p.SpecializationTags,
			PriorityRank: p.PriorityRank,
		})
	}
	WriteSuccess(w, out)
}

// memoryStats summarizes the store contents for one scope.
type memoryStats struct {
	Total     int64  `json:"total"`
	Owner     string `json:"owner,omitempty"`
	MissionID string `json:"mission_id,omitempty"`
}

// HandleMemoryStats reports record counts, optionally scoped by the owner
// and mission_id query parameters.
func (h *Handler) HandleMemoryStats(w http.ResponseWriter, r *http.Request) {
	filter := memory.Filter{MissionID: r.URL.Query().Get("mission_id")}
	owner := r.URL.Query().Get("owner")
	if owner != "" {
		filter.Owners = []string{owner}
	}

	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, memoryStats{Total: total, Owner: owner, MissionID: filter.MissionID})
}

// HandleHealth reports liveness and store reachability.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if _, err := h.store.Count(r.Context(), memory.Filter{Limit: 1}); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check store probe failed", zap.Error(err))
	}
	WriteJSON(w, code, map[string]string{"status": status})
}

func toAnalysisResult(resp *rag.Response) types.AnalysisResult {
	return types.AnalysisResult{
		Status:     types.StatusSuccess,
		Agent:      resp.Agent,
		Content:    resp.Content,
		Confidence: resp.Confidence,
		CacheHit:   resp.CacheHit,
		Degraded:   resp.Degraded,
		SourceIDs:  resp.SourceRecordIDs,
		Timestamp:  resp.Timestamp,
	}
}
